package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// 向量集合名
const (
	CollectionEpisodic = "episodic"
	CollectionSemantic = "semantic"
)

// errNoEmbeddingFunc 向量总是由路由器预先计算，索引自身从不嵌入文本.
var errNoEmbeddingFunc = errors.New("vector index: embeddings must be precomputed")

// VectorIndex 是记忆检索使用的向量索引.
type VectorIndex interface {
	// Add 写入（或覆盖）一条向量，caseID 为空表示共享知识.
	Add(ctx context.Context, collection string, id uint, caseID *uint, content string, vec []float32) error
	// Query 按相似度返回最多 k 个记忆 ID，caseID 非空时仅限该案件.
	Query(ctx context.Context, collection string, vec []float32, k int, caseID *uint) ([]uint, error)
	// Count 返回集合中的向量数.
	Count(collection string) int
}

// ChromemConfig chromem-go 索引配置
type ChromemConfig struct {
	// Path 持久化目录，为空则仅内存
	Path string
	// Compress 持久化文件是否 gzip 压缩
	Compress bool
}

// ChromemIndex 基于 chromem-go 的嵌入式向量索引.
type ChromemIndex struct {
	db     *chromem.DB
	logger *zap.Logger
}

// NewChromemIndex 创建向量索引，并预先创建 episodic / semantic 集合.
func NewChromemIndex(cfg ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open vector index at %s: %w", cfg.Path, err)
		}
	}

	idx := &ChromemIndex{
		db:     db,
		logger: logger.With(zap.String("component", "vector_index")),
	}
	for _, name := range []string{CollectionEpisodic, CollectionSemantic} {
		if _, err := idx.collection(name); err != nil {
			return nil, err
		}
	}
	idx.logger.Info("vector index ready",
		zap.Bool("persistent", cfg.Path != ""),
		zap.Int("episodic", idx.Count(CollectionEpisodic)),
		zap.Int("semantic", idx.Count(CollectionSemantic)))
	return idx, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (i *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	c, err := i.db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return c, nil
}

// Add implements VectorIndex.
func (i *ChromemIndex) Add(ctx context.Context, collection string, id uint, caseID *uint, content string, vec []float32) error {
	if len(vec) == 0 {
		return errNoEmbeddingFunc
	}
	c, err := i.collection(collection)
	if err != nil {
		return err
	}
	var meta map[string]string
	if caseID != nil {
		meta = map[string]string{"case_id": strconv.FormatUint(uint64(*caseID), 10)}
	}
	// chromem 会归一化向量，传入副本避免修改调用方的切片
	emb := make([]float32, len(vec))
	copy(emb, vec)
	return c.AddDocument(ctx, chromem.Document{
		ID:        strconv.FormatUint(uint64(id), 10),
		Metadata:  meta,
		Embedding: emb,
		Content:   content,
	})
}

// Query implements VectorIndex.
func (i *ChromemIndex) Query(ctx context.Context, collection string, vec []float32, k int, caseID *uint) ([]uint, error) {
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	c, err := i.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem 要求 nResults <= 文档数
	count := c.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var where map[string]string
	if caseID != nil {
		where = map[string]string{"case_id": strconv.FormatUint(uint64(*caseID), 10)}
	}
	q := make([]float32, len(vec))
	copy(q, vec)
	results, err := c.QueryEmbedding(ctx, q, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	ids := make([]uint, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseUint(r.ID, 10, 64)
		if err != nil {
			i.logger.Warn("skipping foreign document id",
				zap.String("collection", collection),
				zap.String("id", r.ID))
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// Count implements VectorIndex.
func (i *ChromemIndex) Count(collection string) int {
	c := i.db.GetCollection(collection, noEmbedding)
	if c == nil {
		return 0
	}
	return c.Count()
}
