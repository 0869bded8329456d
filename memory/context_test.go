package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/defensoria-civil/divorcios/llm/tokenizer"
	"github.com/defensoria-civil/divorcios/testutil"
)

func TestBuildContext_EmptySectionsKeepHeaders(t *testing.T) {
	repo := testutil.NewSQLiteStore(t)
	s := NewStore(repo, nil, nil, DefaultConfig(), nil)
	caseID := newCase(t, repo, "a")

	got, err := s.BuildContext(context.Background(), caseID, "hola")
	require.NoError(t, err)
	assert.Equal(t,
		HeaderRecent+"\n\n"+HeaderCaseData+"\n\n"+HeaderEpisodic+"\n\n"+HeaderKnowledge,
		got)
}

func TestBuildContext_FixedOrderAndContent(t *testing.T) {
	s, repo := newIndexedStore(t, newKeywordEmbedder())
	ctx := context.Background()
	caseID := newCase(t, repo, "a")

	require.NoError(t, s.StoreImmediate(ctx, caseID, "Usuario: quiero divorciarme"))
	require.NoError(t, s.StoreImmediate(ctx, caseID, "Asistente: ¿unilateral o conjunto?"))
	require.NoError(t, s.SaveSession(ctx, caseID, SessionState{Name: "Ana Gómez", Type: "unilateral"}))
	_, err := s.StoreEpisodic(ctx, caseID, "La usuaria tiene dos hijos")
	require.NoError(t, err)
	_, err = s.AddKnowledge(ctx, "Alimentos", "Los alimentos de los hijos")
	require.NoError(t, err)

	got, err := s.BuildContext(ctx, caseID, "¿cuánto cobran mis hijos de alimentos?")
	require.NoError(t, err)

	positions := []int{
		strings.Index(got, HeaderRecent),
		strings.Index(got, HeaderCaseData),
		strings.Index(got, HeaderEpisodic),
		strings.Index(got, HeaderKnowledge),
	}
	for i := 1; i < len(positions); i++ {
		assert.Greater(t, positions[i], positions[i-1])
	}
	assert.Contains(t, got, "Usuario: quiero divorciarme")
	assert.Contains(t, got, "- Nombre: Ana Gómez")
	assert.Contains(t, got, "- Tipo de divorcio: unilateral")
	assert.Contains(t, got, "- La usuaria tiene dos hijos")
	assert.Contains(t, got, "### Alimentos\nLos alimentos de los hijos")
}

func TestBuildContext_RecentTurnsLimit(t *testing.T) {
	repo := testutil.NewSQLiteStore(t)
	cfg := DefaultConfig()
	cfg.RecentTurns = 2
	s := NewStore(repo, nil, nil, cfg, nil)
	ctx := context.Background()
	caseID := newCase(t, repo, "a")

	for _, m := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.StoreImmediate(ctx, caseID, m))
	}
	got, err := s.BuildContext(ctx, caseID, "")
	require.NoError(t, err)
	assert.NotContains(t, got, "m1")
	assert.Contains(t, got, HeaderRecent+"\nm2\nm3")
}

func TestBuildContext_TrimsSectionsToBudget(t *testing.T) {
	repo := testutil.NewSQLiteStore(t)
	s := NewStore(repo, nil, nil, DefaultConfig(), nil)
	// 使用估算器避免测试依赖 BPE 下载
	s.tok = estimatorForTest()
	s.config.SectionTokenBudget = 5
	ctx := context.Background()
	caseID := newCase(t, repo, "a")

	require.NoError(t, s.StoreImmediate(ctx, caseID, strings.Repeat("x", 200)))
	got, err := s.BuildContext(ctx, caseID, "")
	require.NoError(t, err)
	assert.Contains(t, got, HeaderRecent+"\n"+strings.Repeat("x", 20)+"\n\n"+HeaderCaseData)
}

func TestProperty_BuildContextAlwaysHasFourHeadersInOrder(t *testing.T) {
	repo := testutil.NewSQLiteStore(t)
	s := NewStore(repo, nil, nil, DefaultConfig(), nil)
	caseID := newCase(t, repo, "a")

	rapid.Check(t, func(rt *rapid.T) {
		msgs := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z ¿?]{0,30}`), 0, 4).Draw(rt, "msgs")
		for _, m := range msgs {
			if err := s.StoreImmediate(context.Background(), caseID, m); err != nil {
				rt.Fatalf("store: %v", err)
			}
		}
		got, err := s.BuildContext(context.Background(), caseID, rapid.String().Draw(rt, "query"))
		if err != nil {
			rt.Fatalf("build: %v", err)
		}
		last := -1
		for _, h := range []string{HeaderRecent, HeaderCaseData, HeaderEpisodic, HeaderKnowledge} {
			i := strings.Index(got, h)
			if i <= last {
				rt.Fatalf("header %q out of order in %q", h, got)
			}
			last = i
		}
	})
}

func estimatorForTest() *tokenizer.EstimatorTokenizer {
	return tokenizer.NewEstimatorTokenizer()
}
