package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// 规则标识
const (
	RuleClaimsSystemAccess       = "claims_system_access"
	RuleInventsSpecificData      = "invents_specific_data"
	RuleMentionsURLs             = "mentions_urls"
	RuleUnknownProperNoun        = "unknown_proper_noun"
	RuleExcessiveLength          = "excessive_length"
	RuleAnswersImpossible        = "answers_impossible_question"
	RuleLegalCertainty           = "inappropriate_legal_certainty"
	RuleMissingSensitiveReferral = "missing_sensitive_topic_disclaimer"
)

var (
	systemAccessPatterns = compileAll(
		`según mi base de datos`,
		`en mi sistema`,
		`tengo acceso a`,
		`puedo ver que`,
		`según mis registros`,
		`he verificado que`,
	)

	// 前两个（DNI、日期）也用于“无法回答的问题”检查
	specificDataPatterns = compileAll(
		`\d{7,8}`,
		`\d{2}/\d{2}/\d{4}`,
		`expediente\s+n[úu]mero\s+\d+`,
		`juzgado\s+\d+`,
	)

	urlPattern        = regexp.MustCompile(`https?://[^\s]+`)
	// RE2 的 \b 只认 ASCII，边界用非字母字符代替，名字在第 1 个分组
	properNounPattern = regexp.MustCompile(`(?:^|[^\pL])(\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+)`)

	impossibleQuestionPatterns = compileAll(
		`cuánto (tiempo|demora|tarda)`,
		`cuándo (va a|se va a)`,
		`qué (día|fecha) exacta`,
	)

	hedgingIndicators = []string{
		"posible", "probable", "podría", "quizás", "tal vez",
		"en general", "usualmente", "depende", "puede variar",
	}

	legalCertaintyPatterns = compileAll(
		`te garantizo`,
		`seguro que (va a|vas a)`,
		`siempre funciona`,
		`nunca (falla|pierde)`,
		`definitivamente`,
		`sin duda alguna`,
	)

	sensitiveTopics  = []string{"violencia", "maltrato", "abuso", "menores"}
	referralPhrases  = []string{"recomiendo consultar", "es importante que", "deberías hablar con", "te recomiendo", "consultá con"}
	ruleExplanations = map[string]string{
		RuleClaimsSystemAccess:       "La respuesta afirma tener acceso a sistemas/bases de datos",
		RuleInventsSpecificData:      "La respuesta menciona datos específicos no presentes en el contexto",
		RuleMentionsURLs:             "La respuesta incluye URLs que podrían no existir",
		RuleUnknownProperNoun:        "Menciona nombres propios no verificables",
		RuleExcessiveLength:          "Respuesta excesivamente larga",
		RuleAnswersImpossible:        "Responde con certeza a una pregunta que requiere información no disponible",
		RuleLegalCertainty:           "Promete resultados legales con certeza",
		RuleMissingSensitiveReferral: "Trata un tema sensible sin derivar a un profesional",
		RuleLLMInconsistency:         "El validador LLM detectó inconsistencias",
		RuleLLMInventedData:          "El validador LLM detectó datos inventados",
		RuleLLMInappropriate:         "El validador LLM detectó consejo legal inapropiado",
	}
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// RuleScorerConfig 规则评分配置
type RuleScorerConfig struct {
	// Threshold 有效的最低分
	Threshold float64
	// KnownPlaces 不计入未知专有名词的地名（小写）
	KnownPlaces []string
	// MaxWords 超过则扣分
	MaxWords int
}

// DefaultRuleScorerConfig 返回默认配置
func DefaultRuleScorerConfig() RuleScorerConfig {
	return RuleScorerConfig{
		Threshold:   0.6,
		KnownPlaces: []string{"san rafael", "mendoza", "argentina", "defensoría"},
		MaxWords:    300,
	}
}

// RuleScorer 基于规则的幻觉评分，另含法律建议措辞检查.
type RuleScorer struct {
	config RuleScorerConfig
	known  map[string]bool
	logger *zap.Logger
}

// NewRuleScorer 创建规则评分器
func NewRuleScorer(cfg RuleScorerConfig, logger *zap.Logger) *RuleScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = 300
	}
	known := make(map[string]bool, len(cfg.KnownPlaces))
	for _, p := range cfg.KnownPlaces {
		known[strings.ToLower(p)] = true
	}
	return &RuleScorer{
		config: cfg,
		known:  known,
		logger: logger.With(zap.String("component", "rule_scorer")),
	}
}

// Score implements Scorer.
func (s *RuleScorer) Score(_ context.Context, response, grounding, question string) Verdict {
	score := 1.0
	var flags []string
	lowered := strings.ToLower(response)
	loweredQuestion := strings.ToLower(question)

	// 1. 声称可访问系统
	for _, p := range systemAccessPatterns {
		if p.MatchString(response) {
			flags = append(flags, RuleClaimsSystemAccess)
			score -= 0.5
		}
	}

	// 2. 上下文与问题中都不存在的具体数据
	for _, p := range specificDataPatterns {
		for _, m := range p.FindAllString(response, -1) {
			if strings.Contains(grounding, m) || strings.Contains(question, m) {
				continue
			}
			flags = append(flags, RuleInventsSpecificData+":"+m)
			score -= 0.4
		}
	}

	// 3. URL
	if urlPattern.MatchString(response) {
		flags = append(flags, RuleMentionsURLs)
		score -= 0.2
	}

	// 4. 未知专有名词
	for _, sm := range properNounPattern.FindAllStringSubmatch(response, -1) {
		w := sm[1]
		if s.known[strings.ToLower(w)] || strings.Contains(grounding, w) {
			continue
		}
		flags = append(flags, RuleUnknownProperNoun+":"+w)
		score -= 0.1
	}

	// 5. 适度的不确定表达加分
	for _, h := range hedgingIndicators {
		if strings.Contains(lowered, h) {
			score += 0.1
			break
		}
	}

	// 6. 过长
	if len(strings.Fields(response)) > s.config.MaxWords {
		flags = append(flags, RuleExcessiveLength)
		score -= 0.1
	}

	// 7. 用具体日期/编号回答无法确定的时间问题
	for _, q := range impossibleQuestionPatterns {
		if !q.MatchString(loweredQuestion) {
			continue
		}
		if specificDataPatterns[0].MatchString(response) || specificDataPatterns[1].MatchString(response) {
			flags = append(flags, RuleAnswersImpossible)
			score -= 0.5
		}
	}

	// 8. 法律建议措辞
	for _, p := range legalCertaintyPatterns {
		if p.MatchString(lowered) {
			flags = append(flags, RuleLegalCertainty)
			score -= 0.5
		}
	}
	if containsAny(lowered, sensitiveTopics) && !containsAny(lowered, referralPhrases) {
		flags = append(flags, RuleMissingSensitiveReferral)
		score -= 0.3
	}

	score = clamp01(score)
	// 编造数据或声称访问系统时一票否决，与加分无关
	valid := score >= s.config.Threshold &&
		!hasRule(flags, RuleInventsSpecificData) &&
		!hasRule(flags, RuleClaimsSystemAccess)

	s.logger.Debug("hallucination check",
		zap.Bool("valid", valid),
		zap.Float64("score", score),
		zap.Strings("flags", RuleKeys(flags)))

	return Verdict{
		Allowed:     valid,
		Text:        response,
		Rules:       flags,
		Score:       score,
		Explanation: explain(flags, score),
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// hasRule 规则标识可能带 ":detalle" 后缀
func hasRule(flags []string, rule string) bool {
	for _, f := range flags {
		if ruleKey(f) == rule {
			return true
		}
	}
	return false
}

func ruleKey(flag string) string {
	if i := strings.IndexByte(flag, ':'); i >= 0 {
		return flag[:i]
	}
	return flag
}

func explain(flags []string, score float64) string {
	if len(flags) == 0 {
		return fmt.Sprintf("Confianza: %.0f%%. Respuesta válida sin indicadores de alucinación.", score*100)
	}
	seen := make(map[string]bool)
	var parts []string
	for _, f := range flags {
		key := ruleKey(f)
		text, ok := ruleExplanations[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		parts = flags
	}
	return fmt.Sprintf("Confianza: %.0f%%. %s", score*100, strings.Join(parts, "; "))
}
