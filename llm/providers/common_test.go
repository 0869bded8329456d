package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defensoria-civil/divorcios/llm"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		msg           string
		expectedCode  llm.ErrorCode
		expectedRetry bool
	}{
		{"401", http.StatusUnauthorized, "invalid key", llm.ErrUnauthorized, false},
		{"403", http.StatusForbidden, "blocked", llm.ErrForbidden, false},
		{"429", http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{"400 quota", http.StatusBadRequest, "Resource has been exhausted (e.g. check quota)", llm.ErrQuotaExceeded, false},
		{"400 plain", http.StatusBadRequest, "bad field", llm.ErrInvalidRequest, false},
		{"502", http.StatusBadGateway, "bad gateway", llm.ErrUpstreamError, true},
		{"503", http.StatusServiceUnavailable, "", llm.ErrUpstreamError, true},
		{"529", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"500", http.StatusInternalServerError, "oops", llm.ErrUpstreamError, true},
		{"418", http.StatusTeapot, "teapot", llm.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "gemini")
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.Equal(t, tt.expectedRetry, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "gemini", err.Provider)
			assert.Equal(t, tt.msg, err.Message)
		})
	}
}

// 任意 5xx 状态都必须可重试，任意 4xx（429 除外）都不可重试.
func TestProperty_HTTPStatusRetryability(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("5xx retryable, 4xx not (except 429)", prop.ForAll(
		func(status int, msg string) bool {
			err := MapHTTPError(status, msg, "ollama")
			switch {
			case status >= 500:
				return err.Retryable
			case status == http.StatusTooManyRequests:
				return err.Retryable
			default:
				return !err.Retryable
			}
		},
		gen.IntRange(400, 599),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestMapTransportError(t *testing.T) {
	timeout := MapTransportError(context.DeadlineExceeded, "ollama")
	assert.Equal(t, llm.ErrUpstreamTimeout, timeout.Code)
	assert.True(t, timeout.Retryable)

	refused := MapTransportError(errors.New("connection refused"), "ollama")
	assert.Equal(t, llm.ErrUpstreamError, refused.Code)
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key (type: auth)", ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key","type":"auth"}}`)))
	assert.Equal(t, "model not found", ReadErrorMessage(strings.NewReader(`{"error":"model not found"}`)))
	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader("plain text\n")))
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	msgs := []llm.Message{
		llm.SystemMessage("sos un asistente"),
		{Role: llm.RoleUser, Content: "leé esto", Images: []llm.Image{{MIMEType: "image/png", Data: []byte("png")}}},
	}

	out := ConvertMessagesToOpenAI(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "sos un asistente", out[0].Content)

	raw, err := json.Marshal(out[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"image_url"`)
	assert.Contains(t, string(raw), `data:image/png;base64,cG5n`)
	assert.Contains(t, string(raw), `"text":"leé esto"`)
}

func TestToLLMChatResponse(t *testing.T) {
	var oa OpenAICompatResponse
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","model":"gemini-2.5-flash","choices":[{"index":0,"message":{"role":"assistant","content":"hola"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`), &oa))

	resp := ToLLMChatResponse(oa, "gemini")
	assert.Equal(t, "hola", resp.Content)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, 4, resp.Usage.TotalTokens)

	empty := ToLLMChatResponse(OpenAICompatResponse{}, "gemini")
	assert.Empty(t, empty.Content)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "def"))
	assert.Equal(t, "def", ChooseModel(&llm.ChatRequest{}, "def"))
	assert.Equal(t, "def", ChooseModel(nil, "def"))
}

func TestDataURLDefaultsToJPEG(t *testing.T) {
	assert.True(t, strings.HasPrefix(DataURL(llm.Image{Data: []byte{1}}), "data:image/jpeg;base64,"))
}
