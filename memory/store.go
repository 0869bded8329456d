package memory

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/llm/tokenizer"
	"github.com/defensoria-civil/divorcios/storage"
)

// Embedder 为文本生成向量. Embed 在所有 Provider 失败时返回空结果与 nil 错误,
// EmbedStrict 则返回错误.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedStrict(ctx context.Context, texts []string) ([][]float32, error)
}

// Config 分层记忆配置
type Config struct {
	ImmediateLimit     int
	RecentTurns        int
	EpisodicK          int
	SemanticK          int
	SectionTokenBudget int
	ChunkSize          int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultMemoryConfig())
}

// ConfigFrom 从全局配置转换
func ConfigFrom(c config.MemoryConfig) Config {
	return Config{
		ImmediateLimit:     c.ImmediateLimit,
		RecentTurns:        c.RecentTurns,
		EpisodicK:          c.EpisodicK,
		SemanticK:          c.SemanticK,
		SectionTokenBudget: c.SectionTokenBudget,
		ChunkSize:          c.ChunkSize,
	}
}

// Store 分层记忆: immediate / session / episodic / semantic.
// 向量索引可选；索引缺失或查询向量不可用时按时间检索，返回形状不变.
type Store struct {
	repo     *storage.Store
	embedder Embedder
	index    VectorIndex
	tok      tokenizer.Tokenizer
	config   Config
	logger   *zap.Logger
}

// NewStore 创建记忆存储. embedder 与 index 均可为 nil.
func NewStore(repo *storage.Store, embedder Embedder, index VectorIndex, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ImmediateLimit <= 0 {
		cfg.ImmediateLimit = 10
	}
	if cfg.RecentTurns <= 0 {
		cfg.RecentTurns = cfg.ImmediateLimit
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	s := &Store{
		repo:     repo,
		embedder: embedder,
		index:    index,
		config:   cfg,
		logger:   logger.With(zap.String("component", "memory")),
	}
	if cfg.SectionTokenBudget > 0 {
		s.tok = tokenizer.New(tokenizer.DefaultEncoding, s.logger)
	}
	return s
}

// WithTx 返回绑定到事务仓储的副本，向量索引与 embedder 共享.
func (s *Store) WithTx(tx *storage.Store) *Store {
	cp := *s
	cp.repo = tx
	return &cp
}

// =============================================================================
// 🎯 immediate / session
// =============================================================================

// StoreImmediate 追加一条即时记忆并裁剪到最近 N 条.
func (s *Store) StoreImmediate(ctx context.Context, caseID uint, text string) error {
	return s.repo.Memory.AppendImmediate(ctx, caseID, text, s.config.ImmediateLimit)
}

// Immediate 返回即时记忆内容，按时间正序.
func (s *Store) Immediate(ctx context.Context, caseID uint) ([]string, error) {
	items, err := s.repo.Memory.ListImmediate(ctx, caseID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Content
	}
	return out, nil
}

// StoreSession 写入单个会话键，最后写入者胜出.
func (s *Store) StoreSession(ctx context.Context, caseID uint, key, value string) error {
	return s.repo.Memory.UpsertSession(ctx, caseID, map[string]string{key: value})
}

// SaveSession 将快照的所有非空字段 upsert.
func (s *Store) SaveSession(ctx context.Context, caseID uint, state SessionState) error {
	return s.repo.Memory.UpsertSession(ctx, caseID, state.Values())
}

// LoadSession 读取会话快照.
func (s *Store) LoadSession(ctx context.Context, caseID uint) (SessionState, error) {
	values, err := s.repo.Memory.ListSession(ctx, caseID)
	if err != nil {
		return SessionState{}, err
	}
	return SessionStateFrom(values), nil
}

// =============================================================================
// 🎯 episodic / semantic
// =============================================================================

// Episode 待写入的对话摘要及其向量（可能为空）
type Episode struct {
	Summary string
	Vector  []float32
}

// PrepareEpisodic 为摘要生成向量. 会访问 Provider，应在事务之外调用.
func (s *Store) PrepareEpisodic(ctx context.Context, summary string) Episode {
	return Episode{Summary: summary, Vector: s.embedOne(ctx, summary)}
}

// SaveEpisodic 只写入仓储，不调用 embedder 也不更新向量索引，可在事务内调用.
// 提交后由 IndexEpisodic 加入索引.
func (s *Store) SaveEpisodic(ctx context.Context, caseID uint, ep Episode) (*storage.MemoryItem, error) {
	return s.repo.Memory.AddEpisodic(ctx, caseID, ep.Summary, ep.Vector)
}

// IndexEpisodic 将已提交的摘要加入向量索引；无索引或无向量时跳过.
func (s *Store) IndexEpisodic(ctx context.Context, item *storage.MemoryItem) {
	s.indexItem(ctx, CollectionEpisodic, item)
}

// StoreEpisodic 保存一条对话摘要. 向量不可用时以空向量保存.
func (s *Store) StoreEpisodic(ctx context.Context, caseID uint, summary string) (*storage.MemoryItem, error) {
	item, err := s.SaveEpisodic(ctx, caseID, s.PrepareEpisodic(ctx, summary))
	if err != nil {
		return nil, err
	}
	s.IndexEpisodic(ctx, item)
	return item, nil
}

// SearchEpisodic 返回与 query 最相关的 k 条摘要；降级时返回最近 k 条.
func (s *Store) SearchEpisodic(ctx context.Context, caseID uint, query string, k int) ([]storage.MemoryItem, error) {
	return s.searchEpisodic(ctx, caseID, k, func() []float32 { return s.embedOne(ctx, query) })
}

// SearchSemantic 在共享知识中检索；降级时返回最近 k 条.
func (s *Store) SearchSemantic(ctx context.Context, query string, k int) ([]storage.MemoryItem, error) {
	return s.searchSemantic(ctx, k, func() []float32 { return s.embedOne(ctx, query) })
}

func (s *Store) searchEpisodic(ctx context.Context, caseID uint, k int, queryVec func() []float32) ([]storage.MemoryItem, error) {
	if k <= 0 {
		return nil, nil
	}
	if items, ok := s.vectorSearch(ctx, CollectionEpisodic, &caseID, k, queryVec); ok {
		return items, nil
	}
	return s.repo.Memory.RecentEpisodic(ctx, caseID, k)
}

func (s *Store) searchSemantic(ctx context.Context, k int, queryVec func() []float32) ([]storage.MemoryItem, error) {
	if k <= 0 {
		return nil, nil
	}
	if items, ok := s.vectorSearch(ctx, CollectionSemantic, nil, k, queryVec); ok {
		return items, nil
	}
	return s.repo.Memory.RecentSemantic(ctx, k)
}

// vectorSearch 返回 ok=false 表示需要按时间回退.
func (s *Store) vectorSearch(ctx context.Context, collection string, caseID *uint, k int, queryVec func() []float32) ([]storage.MemoryItem, bool) {
	if s.index == nil || s.index.Count(collection) == 0 {
		return nil, false
	}
	vec := queryVec()
	if len(vec) == 0 {
		return nil, false
	}
	ids, err := s.index.Query(ctx, collection, vec, k, caseID)
	if err != nil {
		s.logger.Warn("vector query failed, using recency",
			zap.String("collection", collection),
			zap.Error(err))
		return nil, false
	}
	if len(ids) == 0 {
		return nil, false
	}
	items, err := s.repo.Memory.GetByIDs(ctx, ids)
	if err != nil || len(items) == 0 {
		return nil, false
	}
	return items, true
}

// AddKnowledge 切块写入共享知识，返回写入的条目数.
// 知识库必须可检索，因此向量不可用时返回错误且不写入.
func (s *Store) AddKnowledge(ctx context.Context, title, content string) (int, error) {
	chunks := Chunk(content, s.config.ChunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}
	var vecs [][]float32
	if s.embedder != nil {
		var err error
		vecs, err = s.embedder.EmbedStrict(ctx, chunks)
		if err != nil {
			return 0, err
		}
	}

	for i, chunk := range chunks {
		var vec []float32
		if i < len(vecs) {
			vec = vecs[i]
		}
		item, err := s.repo.Memory.AddSemantic(ctx, chunkTitle(title, i, len(chunks)), chunk, vec)
		if err != nil {
			return i, err
		}
		s.indexItem(ctx, CollectionSemantic, item)
	}
	s.logger.Info("knowledge ingested",
		zap.String("title", title),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Warm 从数据库重建向量索引，返回索引的条目数.
func (s *Store) Warm(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	total := 0
	for kind, collection := range map[storage.MemoryKind]string{
		storage.KindEpisodic: CollectionEpisodic,
		storage.KindSemantic: CollectionSemantic,
	} {
		items, err := s.repo.Memory.ListWithEmbeddings(ctx, kind)
		if err != nil {
			return total, err
		}
		for i := range items {
			if s.indexItem(ctx, collection, &items[i]) {
				total++
			}
		}
	}
	s.logger.Info("vector index warmed", zap.Int("items", total))
	return total, nil
}

func (s *Store) indexItem(ctx context.Context, collection string, item *storage.MemoryItem) bool {
	if s.index == nil || len(item.Embedding) == 0 {
		return false
	}
	if err := s.index.Add(ctx, collection, item.ID, item.CaseID, item.Content, item.Embedding); err != nil {
		s.logger.Warn("vector index add failed",
			zap.String("collection", collection),
			zap.Uint("id", item.ID),
			zap.Error(err))
		return false
	}
	return true
}

func (s *Store) embedOne(ctx context.Context, text string) []float32 {
	if s.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) != 1 {
		return nil
	}
	return vecs[0]
}

// =============================================================================
// 🔧 切块
// =============================================================================

// Chunk 按段落切分文本，每块不超过 size 个字符；超长段落按词切分.
func Chunk(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+len(sep)+utf8.RuneCountInString(piece) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= size {
			add(para, "\n\n")
			continue
		}
		flush()
		for _, word := range strings.Fields(para) {
			for utf8.RuneCountInString(word) > size {
				r := []rune(word)
				flush()
				chunks = append(chunks, string(r[:size]))
				word = string(r[size:])
			}
			add(word, " ")
		}
		flush()
	}
	flush()
	return chunks
}

func chunkTitle(title string, i, n int) string {
	if n <= 1 {
		return title
	}
	return title + " (" + FormatInt(int64(i+1)) + "/" + FormatInt(int64(n)) + ")"
}
