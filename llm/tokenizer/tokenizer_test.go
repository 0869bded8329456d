package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer()

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("hola")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.CountTokens(strings.Repeat("a", 40))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestEstimator_Truncate(t *testing.T) {
	e := NewEstimatorTokenizer()

	out, err := e.Truncate(strings.Repeat("á", 100), 5)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("á", 20), out)

	out, err = e.Truncate("corto", 5)
	require.NoError(t, err)
	assert.Equal(t, "corto", out)

	out, err = e.Truncate("sin límite", 0)
	require.NoError(t, err)
	assert.Equal(t, "sin límite", out)
}

func TestEstimator_WithCharsPerToken(t *testing.T) {
	e := NewEstimatorTokenizer().WithCharsPerToken(2)
	n, err := e.CountTokens("abcdef")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 非正值被忽略
	e.WithCharsPerToken(0)
	n, err = e.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestTiktoken_TruncateWithoutBudget(t *testing.T) {
	// 无预算时不加载编码
	tok := NewTiktokenTokenizer("")
	out, err := tok.Truncate("texto breve", 0)
	require.NoError(t, err)
	assert.Equal(t, "texto breve", out)
	assert.Equal(t, "tiktoken[cl100k_base]", tok.Name())
}
