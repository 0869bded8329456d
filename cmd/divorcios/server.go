package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/api/handlers"
	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/intake"
	"github.com/defensoria-civil/divorcios/memory"
	"github.com/defensoria-civil/divorcios/internal/metrics"
	"github.com/defensoria-civil/divorcios/internal/server"
	"github.com/defensoria-civil/divorcios/internal/telemetry"
	"github.com/defensoria-civil/divorcios/messaging/waha"
)

const routeWebhook = "/webhook/whatsapp"

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 持有 HTTP 与 Metrics 两个监听端口及其依赖
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	app       *App
	telemetry *telemetry.Providers
	registry  *prometheus.Registry

	listeners *server.Group

	healthHandler  *handlers.HealthHandler
	webhookHandler *handlers.WebhookHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器；组件在 Start 中装配
func NewServer(cfg *config.Config, logger *zap.Logger, tp *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: tp,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 装配组件并启动所有监听
func (s *Server) Start(ctx context.Context) error {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := NewApp(ctx, s.cfg, s.registry, s.logger)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	s.app = app

	s.initHandlers()

	s.listeners = server.NewGroup(s.logger)
	s.addHTTPListener()
	s.addMetricsListener()
	// webhook 端口停止后等待已应答的消息回复完毕
	s.listeners.OnDrain(s.webhookHandler.Drain)
	if err := s.listeners.Start(); err != nil {
		return fmt.Errorf("failed to start listeners: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Strings("providers", s.app.router.Providers()),
	)
	return nil
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.cfg.LLM.AttemptTimeout, s.logger)
	// 只有数据库不可用时拒绝流量；Redis 与 Provider 故障时对话降级继续
	s.healthHandler.Register(handlers.PingCheck("database", true, s.app.pool.Ping))
	if s.app.cache != nil {
		s.healthHandler.Register(handlers.PingCheck("redis", false, s.app.cache.Ping))
	}
	s.healthHandler.Register(handlers.ProvidersCheck(s.app.router.HealthCheck))
	s.describeComponents()

	transport := waha.New(waha.ConfigFrom(s.cfg.Messaging), s.logger)
	s.webhookHandler = handlers.NewWebhookHandler(
		&meteredEngine{engine: s.app.engine, metrics: s.app.metrics},
		transport,
		s.cfg.Server.MessageTimeout,
		s.logger,
	)
}

func (s *Server) describeComponents() {
	s.healthHandler.Describe("dedup", func() string {
		if s.app.cache != nil {
			return "redis"
		}
		return "memory"
	})
	s.healthHandler.Describe("vector_index", func() string {
		if s.app.index == nil {
			return "disabled"
		}
		return fmt.Sprintf("episodic=%d semantic=%d",
			s.app.index.Count(memory.CollectionEpisodic),
			s.app.index.Count(memory.CollectionSemantic))
	})
	s.healthHandler.Describe("providers", func() string {
		return strings.Join(s.app.router.Providers(), ",")
	})
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(routeWebhook, s.webhookHandler.HandleWhatsApp)
	mux.HandleFunc("/health", s.healthHandler.HandleLive)
	mux.HandleFunc("/healthz", s.healthHandler.HandleLive)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	return mux
}

func (s *Server) addHTTPListener() {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.app.metrics),
		RequestLogger(s.logger),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		WebhookAuth(s.cfg.Server.WebhookAPIKey, []string{routeWebhook}, s.logger),
	)

	s.listeners.Add("webhook", handler, server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort))
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) addMetricsListener() {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("metrics server disabled")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.listeners.Add("metrics", mux, server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort))
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或监听故障，然后优雅关闭
func (s *Server) WaitForShutdown() {
	if s.listeners != nil {
		if err := s.listeners.Wait(context.Background()); err != nil {
			s.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}
	s.Shutdown()
}

// Shutdown 依次停止接收回调、等待进行中的消息、停止 metrics、释放存储与遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.listeners != nil {
		if err := s.listeners.Shutdown(ctx); err != nil {
			s.logger.Error("listener shutdown error", zap.Error(err))
		}
	}
	if s.app != nil {
		s.app.Close()
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}

// meteredEngine 统计正在处理的入站消息数
type meteredEngine struct {
	engine  handlers.InboundHandler
	metrics *metrics.Collector
}

func (m *meteredEngine) HandleInbound(ctx context.Context, in intake.Inbound) (intake.Reply, error) {
	if m.metrics != nil {
		defer m.metrics.MessageStarted()()
	}
	return m.engine.HandleInbound(ctx, in)
}
