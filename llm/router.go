package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/types"
)

const instrumentationName = "github.com/defensoria-civil/divorcios/llm"

// Route 是路由表中的一项：一个 Provider 及其任务 → 模型映射.
type Route struct {
	Provider Provider
	Models   ModelSelector
	// Vision 表示该 Provider 的模型可以接收内联图片
	Vision bool
}

// CallOutcome 记录一次 Provider 尝试的结果，用于回退决策、日志和指标.
type CallOutcome struct {
	TaskType TaskType
	Provider string
	Model    string
	Success  bool
	Latency  time.Duration
	Err      error
}

// OutcomeObserver 接收每次尝试的结果.
type OutcomeObserver func(CallOutcome)

// RouterConfig 路由器配置
type RouterConfig struct {
	// AttemptTimeout 每次尝试的超时
	AttemptTimeout time.Duration
	// VisionTimeout vision_ocr 任务每次尝试的超时
	VisionTimeout time.Duration
	// Temperature 生成温度
	Temperature float32
	// MaxTokens 最大输出 Token
	MaxTokens int
	// TaskOrder 按任务覆盖 Provider 顺序（Provider 名称）
	TaskOrder map[TaskType][]string
}

// DefaultRouterConfig 返回默认路由器配置
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		AttemptTimeout: 30 * time.Second,
		VisionTimeout:  90 * time.Second,
		Temperature:    0.3,
		MaxTokens:      1024,
	}
}

// Router 按固定顺序在多个 Provider 之间做级联回退.
// 不做 Provider 内重试：一次失败立即切换到下一个.
type Router struct {
	routes      []Route
	embedRoutes []Route
	cfg         *RouterConfig
	logger      *zap.Logger

	mu        sync.RWMutex
	observers []OutcomeObserver

	tracer        trace.Tracer
	fallbackTotal metric.Int64Counter
	attemptTime   metric.Float64Histogram
}

// NewRouter 创建路由器. routes 为生成任务的顺序，embedRoutes 至多两项（首选 + 一级回退）.
func NewRouter(cfg *RouterConfig, routes, embedRoutes []Route, logger *zap.Logger) (*Router, error) {
	if cfg == nil {
		cfg = DefaultRouterConfig()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.VisionTimeout <= 0 {
		cfg.VisionTimeout = cfg.AttemptTimeout
	}
	if len(routes) == 0 {
		return nil, errors.New("router requires at least one provider")
	}
	if len(embedRoutes) > 2 {
		return nil, fmt.Errorf("embedding routes allow one fallback tier, got %d providers", len(embedRoutes))
	}
	for _, rt := range embedRoutes {
		if _, ok := rt.Provider.(Embedder); !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", rt.Provider.Name())
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := otel.Meter(instrumentationName)
	fallbackTotal, err := meter.Int64Counter("llm.fallback.total",
		metric.WithDescription("Provider attempts that failed over to the next provider"),
		metric.WithUnit("{fallback}"))
	if err != nil {
		return nil, fmt.Errorf("create fallback counter: %w", err)
	}
	attemptTime, err := meter.Float64Histogram("llm.attempt.duration",
		metric.WithDescription("Provider attempt latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create attempt histogram: %w", err)
	}

	return &Router{
		routes:        routes,
		embedRoutes:   embedRoutes,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "llm_router")),
		tracer:        otel.Tracer(instrumentationName),
		fallbackTotal: fallbackTotal,
		attemptTime:   attemptTime,
	}, nil
}

// OnOutcome 注册尝试结果观察者（指标、审计）.
func (r *Router) OnOutcome(fn OutcomeObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Providers 返回生成路由的 Provider 名称（按顺序）.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		names = append(names, rt.Provider.Name())
	}
	return names
}

// GenerateOption 调整单次生成请求.
type GenerateOption func(*ChatRequest)

// WithJSONMode 要求 JSON 输出.
func WithJSONMode() GenerateOption {
	return func(r *ChatRequest) { r.JSONMode = true }
}

// WithMaxTokens 覆盖最大输出 Token.
func WithMaxTokens(n int) GenerateOption {
	return func(r *ChatRequest) { r.MaxTokens = n }
}

// WithTemperature 覆盖生成温度.
func WithTemperature(t float32) GenerateOption {
	return func(r *ChatRequest) { r.Temperature = t }
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Generate 依次尝试各 Provider，返回第一个非空回复.
// 全部失败时返回 types.ErrProviderExhausted，绝不返回空字符串.
func (r *Router) Generate(ctx context.Context, messages []Message, task TaskType, opts ...GenerateOption) (string, error) {
	routes := r.orderFor(task)
	return r.run(ctx, routes, messages, task, opts)
}

// GenerateVision 将 prompt 与一张图片发送给支持视觉的 Provider（vision_ocr 任务）.
func (r *Router) GenerateVision(ctx context.Context, prompt string, image Image, opts ...GenerateOption) (string, error) {
	var routes []Route
	for _, rt := range r.orderFor(TaskVisionOCR) {
		if rt.Vision {
			routes = append(routes, rt)
		}
	}
	msgs := []Message{{Role: RoleUser, Content: prompt, Images: []Image{image}}}
	return r.run(ctx, routes, msgs, TaskVisionOCR, opts)
}

func (r *Router) run(ctx context.Context, routes []Route, messages []Message, task TaskType, opts []GenerateOption) (string, error) {
	ctx, span := r.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.task", string(task)),
		attribute.Int("llm.candidates", len(routes)),
	))
	defer span.End()

	timeout := r.cfg.AttemptTimeout
	if task == TaskVisionOCR {
		timeout = r.cfg.VisionTimeout
	}

	var lastErr error
	for i, rt := range routes {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		model := rt.Models.ModelFor(string(task))
		req := &ChatRequest{
			Model:       model,
			Messages:    messages,
			MaxTokens:   r.cfg.MaxTokens,
			Temperature: r.cfg.Temperature,
			TaskType:    task,
		}
		for _, opt := range opts {
			opt(req)
		}

		start := time.Now()
		resp, err := r.attempt(ctx, rt.Provider, req, timeout)
		latency := time.Since(start)
		if err == nil && strings.TrimSpace(resp.Content) == "" {
			err = &Error{Code: ErrEmptyResponse, Message: "empty completion", Provider: rt.Provider.Name()}
		}

		r.emit(ctx, CallOutcome{
			TaskType: task,
			Provider: rt.Provider.Name(),
			Model:    model,
			Success:  err == nil,
			Latency:  latency,
			Err:      err,
		})

		if err == nil {
			span.SetAttributes(
				attribute.String("llm.provider", rt.Provider.Name()),
				attribute.String("llm.model", model),
				attribute.Int("llm.fallback_level", i),
			)
			return resp.Content, nil
		}

		lastErr = err
		r.fallbackTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", rt.Provider.Name()),
			attribute.String("task", string(task)),
		))
		r.logger.Warn("provider attempt failed, trying next",
			zap.String("task", string(task)),
			zap.String("provider", rt.Provider.Name()),
			zap.String("model", model),
			zap.Duration("latency", latency),
			zap.Error(err))
	}

	if lastErr == nil {
		lastErr = errors.New("no provider configured for task")
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "provider exhausted")
	r.logger.Error("all providers failed",
		zap.String("task", string(task)),
		zap.Int("attempts", len(routes)),
		zap.Error(lastErr))

	return "", types.NewError(types.ErrProviderExhausted,
		fmt.Sprintf("all providers failed for task %s", task)).
		WithCause(lastErr).
		WithRetryable(true)
}

// attempt 在独立超时内执行一次调用. 超时后立即返回，不等待被放弃的调用.
func (r *Router) attempt(ctx context.Context, p Provider, req *ChatRequest, timeout time.Duration) (*ChatResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp *ChatResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: fmt.Errorf("provider %s panicked: %v", p.Name(), rec)}
			}
		}()
		resp, err := p.Completion(attemptCtx, req)
		ch <- result{resp: resp, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp == nil {
			return nil, &Error{Code: ErrEmptyResponse, Message: "nil response", Provider: p.Name()}
		}
		return res.resp, nil
	case <-attemptCtx.Done():
		return nil, &Error{
			Code:      ErrUpstreamTimeout,
			Message:   fmt.Sprintf("attempt timed out after %s: %v", timeout, attemptCtx.Err()),
			Retryable: true,
			Provider:  p.Name(),
		}
	}
}

// =============================================================================
// 🔢 Embedding
// =============================================================================

// Embed 优先使用首选 embedding Provider，失败时回退一级.
// 全部失败时返回空结果和 nil 错误，调用方据此降级到按时间排序.
func (r *Router) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.EmbedStrict(ctx, texts)
	if err != nil {
		r.logger.Warn("embeddings unavailable, degrading to recency", zap.Int("texts", len(texts)), zap.Error(err))
		return nil, nil
	}
	return vecs, nil
}

// EmbedStrict 与 Embed 相同，但全部失败时返回 ErrEmbeddingsUnavailable.
func (r *Router) EmbedStrict(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := r.tracer.Start(ctx, "llm.embed", trace.WithAttributes(attribute.Int("llm.texts", len(texts))))
	defer span.End()

	var lastErr error
	for _, rt := range r.embedRoutes {
		model := rt.Models.ModelFor(string(TaskEmbeddings))
		start := time.Now()
		vecs, err := r.embedAttempt(ctx, rt.Provider.(Embedder), texts, model)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts))
		}
		r.emit(ctx, CallOutcome{
			TaskType: TaskEmbeddings,
			Provider: rt.Provider.Name(),
			Model:    model,
			Success:  err == nil,
			Latency:  time.Since(start),
			Err:      err,
		})
		if err == nil {
			return vecs, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no embedding provider configured")
	}
	span.RecordError(lastErr)
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingsUnavailable, lastErr)
}

func (r *Router) embedAttempt(ctx context.Context, e Embedder, texts []string, model string) ([][]float32, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	type result struct {
		vecs [][]float32
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: fmt.Errorf("embedder panicked: %v", rec)}
			}
		}()
		vecs, err := e.Embed(attemptCtx, texts, model)
		ch <- result{vecs: vecs, err: err}
	}()

	select {
	case res := <-ch:
		return res.vecs, res.err
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}

// CanEmbed 报告是否配置了 embedding Provider.
func (r *Router) CanEmbed() bool { return len(r.embedRoutes) > 0 }

// HealthCheck 检查所有 Provider，返回名称 → 错误（nil 表示健康）.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	out := make(map[string]error, len(r.routes))
	for _, rt := range r.routes {
		_, err := rt.Provider.HealthCheck(ctx)
		out[rt.Provider.Name()] = err
	}
	return out
}

func (r *Router) orderFor(task TaskType) []Route {
	names, ok := r.cfg.TaskOrder[task]
	if !ok || len(names) == 0 {
		return r.routes
	}
	byName := make(map[string]Route, len(r.routes))
	for _, rt := range r.routes {
		byName[rt.Provider.Name()] = rt
	}
	ordered := make([]Route, 0, len(names))
	for _, n := range names {
		if rt, ok := byName[n]; ok {
			ordered = append(ordered, rt)
		}
	}
	return ordered
}

func (r *Router) emit(ctx context.Context, o CallOutcome) {
	r.attemptTime.Record(ctx, o.Latency.Seconds(), metric.WithAttributes(
		attribute.String("provider", o.Provider),
		attribute.String("task", string(o.TaskType)),
		attribute.Bool("success", o.Success),
	))

	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(o)
	}
}
