package tokenizer

import "unicode/utf8"

// EstimatorTokenizer is a character-count-based token estimator.
// Latin text averages about four characters per token.
type EstimatorTokenizer struct {
	charsPerToken float64
}

// NewEstimatorTokenizer creates a generic estimator.
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{charsPerToken: 4.0}
}

// WithCharsPerToken overrides the default chars-per-token ratio.
func (e *EstimatorTokenizer) WithCharsPerToken(ratio float64) *EstimatorTokenizer {
	if ratio > 0 {
		e.charsPerToken = ratio
	}
	return e
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	estimated := int(float64(utf8.RuneCountInString(text)) / e.charsPerToken)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e *EstimatorTokenizer) Truncate(text string, max int) (string, error) {
	if max <= 0 {
		return text, nil
	}
	limit := int(float64(max) * e.charsPerToken)
	if utf8.RuneCountInString(text) <= limit {
		return text, nil
	}
	runes := []rune(text)
	return string(runes[:limit]), nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}
