package memory

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/defensoria-civil/divorcios/storage"
)

// 上下文段落标题，顺序固定
const (
	HeaderRecent    = "## Conversación reciente:"
	HeaderCaseData  = "## Datos del caso:"
	HeaderEpisodic  = "## Conversaciones anteriores relevantes:"
	HeaderKnowledge = "## Conocimiento legal aplicable:"
)

// BuildContext 并发读取四个段落并按固定顺序拼接，空段落保留标题.
// 只有持久化失败会返回错误.
func (s *Store) BuildContext(ctx context.Context, caseID uint, query string) (string, error) {
	// 两个检索共用一次查询向量
	queryVec := sync.OnceValue(func() []float32 { return s.embedOne(ctx, query) })

	var (
		recent, caseData, episodic, knowledge []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.Immediate(gctx, caseID)
		if err != nil {
			return err
		}
		if n := s.config.RecentTurns; len(items) > n {
			items = items[len(items)-n:]
		}
		recent = items
		return nil
	})
	g.Go(func() error {
		values, err := s.repo.Memory.ListSession(gctx, caseID)
		if err != nil {
			return err
		}
		caseData = formatSession(values)
		return nil
	})
	g.Go(func() error {
		items, err := s.searchEpisodic(gctx, caseID, s.config.EpisodicK, queryVec)
		if err != nil {
			return err
		}
		episodic = formatItems(items, false)
		return nil
	})
	g.Go(func() error {
		items, err := s.searchSemantic(gctx, s.config.SemanticK, queryVec)
		if err != nil {
			return err
		}
		knowledge = formatItems(items, true)
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	sections := []struct {
		header string
		lines  []string
	}{
		{HeaderRecent, recent},
		{HeaderCaseData, caseData},
		{HeaderEpisodic, episodic},
		{HeaderKnowledge, knowledge},
	}
	var b strings.Builder
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sec.header)
		if body := s.trim(strings.Join(sec.lines, "\n")); body != "" {
			b.WriteString("\n")
			b.WriteString(body)
		}
	}
	return b.String(), nil
}

func (s *Store) trim(body string) string {
	if s.tok == nil || body == "" {
		return body
	}
	out, err := s.tok.Truncate(body, s.config.SectionTokenBudget)
	if err != nil {
		s.logger.Debug("section trim skipped", zap.Error(err))
		return body
	}
	return out
}

func formatItems(items []storage.MemoryItem, withTitle bool) []string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if withTitle && it.Title != nil && *it.Title != "" {
			lines = append(lines, "### "+*it.Title+"\n"+it.Content)
			continue
		}
		lines = append(lines, "- "+it.Content)
	}
	return lines
}
