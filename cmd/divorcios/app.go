package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/document"
	"github.com/defensoria-civil/divorcios/guardrails"
	"github.com/defensoria-civil/divorcios/intake"
	"github.com/defensoria-civil/divorcios/internal/cache"
	"github.com/defensoria-civil/divorcios/internal/database"
	"github.com/defensoria-civil/divorcios/internal/dedup"
	"github.com/defensoria-civil/divorcios/internal/metrics"
	"github.com/defensoria-civil/divorcios/internal/migration"
	"github.com/defensoria-civil/divorcios/llm"
	"github.com/defensoria-civil/divorcios/llm/providers/ollama"
	"github.com/defensoria-civil/divorcios/llm/providers/openaicompat"
	"github.com/defensoria-civil/divorcios/memory"
	"github.com/defensoria-civil/divorcios/storage"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// App 持有一次进程生命周期内的全部组件
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db      *gorm.DB
	pool    *database.PoolManager
	store   *storage.Store
	cache   *cache.Manager
	dedup   dedup.Store
	router  *llm.Router
	index   *memory.ChromemIndex
	memory  *memory.Store
	guards  *guardrails.Pipeline
	docs    *document.Service
	engine  *intake.Engine
	metrics *metrics.Collector

	closers []func()
}

// NewApp 打开数据库、构建 Provider 路由与对话引擎。reg 为 nil 时不采集 Prometheus 指标。
func NewApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if reg != nil {
		a.metrics = metrics.NewCollector("divorcios", reg, logger)
	}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildRouter(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildMemory(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.buildDedup()

	a.guards = guardrails.NewPipeline(cfg.Guardrails, a.router, logger)

	var raster document.Rasterizer
	if cfg.Documents.RasterizerPath != "" {
		raster = document.NewPdftoppmRasterizer(cfg.Documents.RasterizerPath, cfg.Documents.RasterizerDPI, cfg.Documents.RasterizerTimeout)
	}
	a.docs = document.NewService(document.NewVisionOCR(a.router, logger), raster, document.ConfigFrom(cfg.Documents), logger)

	engine, err := intake.NewEngine(intake.Deps{
		Store:      a.store,
		Memory:     a.memory,
		Guardrails: a.guards,
		LLM:        a.router,
		Documents:  a.docs,
		Dedup:      a.dedup,
	}, intake.ConfigFrom(cfg.Intake), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	a.observe()
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	db, err := database.Open(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	a.db = db

	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(a.cfg.Database), a.logger)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, func() { _ = pool.Close() })

	if err := ensureSchema(ctx, a.cfg.Database, db, a.logger); err != nil {
		return err
	}
	retries := a.cfg.Database.TxRetries
	a.store = storage.New(db).WithTxRunner(func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return pool.WithTransactionRetry(ctx, retries, fn)
	})
	return nil
}

// ensureSchema sqlite 由 AutoMigrate 建表，其余方言执行内嵌的 SQL 迁移
func ensureSchema(ctx context.Context, cfg config.DatabaseConfig, db *gorm.DB, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(cfg, logger)
	if errors.Is(err, migration.ErrSQLiteUsesAutoMigrate) {
		return storage.AutoMigrate(db)
	}
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	return m.Up(ctx)
}

func (a *App) buildRouter() error {
	routes, embedRoutes := buildRoutes(a.cfg.LLM, a.logger)
	router, err := llm.NewRouter(&llm.RouterConfig{
		AttemptTimeout: a.cfg.LLM.AttemptTimeout,
		VisionTimeout:  a.cfg.LLM.VisionTimeout,
		Temperature:    float32(a.cfg.LLM.Temperature),
		MaxTokens:      a.cfg.LLM.MaxTokens,
	}, routes, embedRoutes, a.logger)
	if err != nil {
		return fmt.Errorf("build provider router: %w", err)
	}
	a.router = router
	return nil
}

// buildRoutes 按 llm.order / llm.embed_order 实例化启用的 Provider
func buildRoutes(cfg config.LLMConfig, logger *zap.Logger) (routes, embedRoutes []llm.Route) {
	byName := make(map[string]llm.Route)
	for _, name := range append(append([]string{}, cfg.Order...), cfg.EmbedOrder...) {
		if _, ok := byName[name]; ok {
			continue
		}
		pc, ok := providerConfig(cfg, name)
		if !ok || !pc.Enabled {
			logger.Info("provider disabled", zap.String("provider", name))
			continue
		}
		byName[name] = llm.Route{
			Provider: newProvider(name, pc, cfg, logger),
			Models:   pc,
			Vision:   name == "gemini" || pc.Models[string(llm.TaskVisionOCR)] != "",
		}
	}
	for _, name := range cfg.Order {
		if rt, ok := byName[name]; ok {
			routes = append(routes, rt)
		}
	}
	for _, name := range cfg.EmbedOrder {
		if rt, ok := byName[name]; ok {
			embedRoutes = append(embedRoutes, rt)
		}
	}
	return routes, embedRoutes
}

func providerConfig(cfg config.LLMConfig, name string) (config.ProviderConfig, bool) {
	switch name {
	case "gemini":
		return cfg.Gemini, true
	case "ollama":
		return cfg.Ollama, true
	case "ollama_cloud":
		return cfg.OllamaCloud, true
	}
	return config.ProviderConfig{}, false
}

func newProvider(name string, pc config.ProviderConfig, cfg config.LLMConfig, logger *zap.Logger) llm.Provider {
	// HTTP 超时取单次尝试上限中较大的一个，实际截止时间由路由器的 context 控制
	timeout := cfg.AttemptTimeout
	if cfg.VisionTimeout > timeout {
		timeout = cfg.VisionTimeout
	}
	if name == "gemini" {
		return openaicompat.New(openaicompat.Config{
			ProviderName:       name,
			APIKey:             pc.APIKey,
			BaseURL:            pc.BaseURL,
			DefaultModel:       pc.DefaultModel,
			Timeout:            timeout,
			InsecureSkipVerify: pc.InsecureSkipVerify,
		}, logger)
	}
	return ollama.New(ollama.Config{
		ProviderName:       name,
		BaseURL:            pc.BaseURL,
		APIKey:             pc.APIKey,
		DefaultModel:       pc.DefaultModel,
		Timeout:            timeout,
		InsecureSkipVerify: pc.InsecureSkipVerify,
	}, logger)
}

func (a *App) buildMemory(ctx context.Context) error {
	var (
		embedder memory.Embedder
		index    memory.VectorIndex
	)
	if a.router.CanEmbed() {
		embedder = a.router
		if a.metrics != nil {
			embedder = &meteredEmbedder{router: a.router, metrics: a.metrics}
		}
	}
	if a.cfg.Memory.VectorEnabled && embedder != nil {
		idx, err := memory.NewChromemIndex(memory.ChromemConfig{Path: a.cfg.Memory.VectorPath}, a.logger)
		if err != nil {
			return err
		}
		a.index = idx
		index = idx
	}
	a.memory = memory.NewStore(a.store, embedder, index, memory.ConfigFrom(a.cfg.Memory), a.logger)

	if index != nil && a.cfg.Memory.VectorPath == "" {
		n, err := a.memory.Warm(ctx)
		if err != nil {
			a.logger.Warn("vector index warm-up failed, searches fall back to recency", zap.Error(err))
		} else {
			a.logger.Info("vector index warmed", zap.Int("items", n))
		}
	}
	return nil
}

// meteredEmbedder 统计向量服务整体不可用的次数
type meteredEmbedder struct {
	router  *llm.Router
	metrics *metrics.Collector
}

func (e *meteredEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.router.Embed(ctx, texts)
	if err == nil && len(vecs) == 0 && len(texts) > 0 {
		e.metrics.RecordEmbeddingsUnavailable()
	}
	return vecs, err
}

func (e *meteredEmbedder) EmbedStrict(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.router.EmbedStrict(ctx, texts)
	if errors.Is(err, llm.ErrEmbeddingsUnavailable) {
		e.metrics.RecordEmbeddingsUnavailable()
	}
	return vecs, err
}

// buildDedup Redis 可用时跨实例去重，否则使用进程内存储
func (a *App) buildDedup() {
	ttl := a.cfg.Intake.DedupTTL
	if a.cfg.Redis.Enabled {
		cc := cache.DefaultConfig()
		cc.Addr = a.cfg.Redis.Addr
		cc.Password = a.cfg.Redis.Password
		cc.DB = a.cfg.Redis.DB
		if a.cfg.Redis.PoolSize > 0 {
			cc.PoolSize = a.cfg.Redis.PoolSize
		}
		cc.MinIdleConns = a.cfg.Redis.MinIdleConns
		cc.DefaultTTL = ttl

		mgr, err := cache.NewManager(cc, a.logger)
		if err == nil {
			a.cache = mgr
			a.closers = append(a.closers, func() { _ = mgr.Close() })
			a.dedup = dedup.NewRedisStore(mgr, a.cfg.Intake.DedupPrefix, ttl, a.logger)
			return
		}
		a.logger.Warn("redis unavailable, using in-process dedup store", zap.Error(err))
	}
	ms := dedup.NewMemoryStore(ttl, ttl)
	a.closers = append(a.closers, ms.Close)
	a.dedup = ms
}

// guardrailObserver 只以规则标识作为标签，细节（证件号、自由文本）不进入指标
func guardrailObserver(m *metrics.Collector) guardrails.Observer {
	return func(stage guardrails.Stage, v guardrails.Verdict) {
		m.RecordGuardrail(string(stage), guardrails.RuleKeys(v.Rules)...)
	}
}

// observe 把各组件的回调接到 Prometheus 指标
func (a *App) observe() {
	if a.metrics == nil {
		return
	}
	m := a.metrics
	a.router.OnOutcome(func(o llm.CallOutcome) {
		m.RecordProviderCall(o.Provider, o.Model, string(o.TaskType), o.Success, o.Latency)
	})
	a.guards.OnVerdict(guardrailObserver(m))
	a.docs.OnClassified(func(cat storage.DocumentCategory, outcome document.Outcome) {
		if outcome == document.OutcomeClassified {
			m.RecordDocument(string(cat))
			return
		}
		m.RecordDocument(string(outcome))
	})
	a.engine.OnTurn(func(ev intake.TurnEvent) {
		if ev.Outcome == intake.OutcomeDuplicate {
			m.RecordDuplicate()
			return
		}
		m.RecordTurn(ev.Phase, string(ev.Outcome), ev.Duration)
	})
}

// Close 按创建的逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
