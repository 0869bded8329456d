package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	appconfig "github.com/defensoria-civil/divorcios/config"
)

// =============================================================================
// 🌐 监听组
// =============================================================================

// Config 单个监听的配置
type Config struct {
	// 监听地址
	Addr string `yaml:"addr" json:"addr"`

	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时，同时限制排空钩子
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认监听配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFrom 由全局服务配置构建指定端口的监听配置
func ConfigFrom(c appconfig.ServerConfig, port int) Config {
	cfg := DefaultConfig()
	cfg.Addr = fmt.Sprintf(":%d", port)
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
		cfg.IdleTimeout = 2 * c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.ShutdownTimeout
	}
	return cfg
}

// Listener 组内的一个 HTTP 监听
type Listener struct {
	name   string
	config Config
	server *http.Server
	ln     net.Listener
}

// Addr 返回实际绑定的地址；启动前返回配置地址
func (l *Listener) Addr() string {
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.config.Addr
}

// Group 管理 webhook 与 metrics 两个端口.
// 关闭顺序：先停主监听（第一个 Add 的）不再接收回调，再执行排空钩子
// 等待已应答的消息处理完成，最后停其余监听，使排空期间指标仍可抓取.
type Group struct {
	logger    *zap.Logger
	mu        sync.Mutex
	listeners []*Listener
	drains    []func(ctx context.Context) error
	errCh     chan error
	started   bool
	closed    bool
}

// NewGroup 创建监听组
func NewGroup(logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{
		logger: logger.With(zap.String("component", "http_server")),
		errCh:  make(chan error, 1),
	}
}

// Add 登记一个监听；必须在 Start 之前调用
func (g *Group) Add(name string, handler http.Handler, config Config) *Listener {
	l := &Listener{
		name:   name,
		config: config,
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
		},
	}
	g.mu.Lock()
	g.listeners = append(g.listeners, l)
	g.mu.Unlock()
	return l
}

// OnDrain 登记排空钩子，在主监听停止后按登记顺序执行
func (g *Group) OnDrain(fn func(ctx context.Context) error) {
	g.mu.Lock()
	g.drains = append(g.drains, fn)
	g.mu.Unlock()
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 绑定全部端口后再开始服务（非阻塞）；任一端口绑定失败则全部释放
func (g *Group) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.closed:
		return errors.New("server group is closed")
	case g.started:
		return errors.New("server group already started")
	case len(g.listeners) == 0:
		return errors.New("server group has no listeners")
	}

	for i, l := range g.listeners {
		ln, err := net.Listen("tcp", l.config.Addr)
		if err != nil {
			for _, prev := range g.listeners[:i] {
				_ = prev.ln.Close()
				prev.ln = nil
			}
			return fmt.Errorf("failed to listen %s on %s: %w", l.name, l.config.Addr, err)
		}
		l.ln = ln
	}
	for _, l := range g.listeners {
		g.logger.Info("starting HTTP server", zap.String("listener", l.name), zap.String("addr", l.Addr()))
		go g.serve(l)
	}
	g.started = true
	return nil
}

func (g *Group) serve(l *Listener) {
	if err := l.server.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		g.logger.Error("HTTP server failed", zap.String("listener", l.name), zap.Error(err))
		select {
		case g.errCh <- fmt.Errorf("%s: %w", l.name, err):
		default:
		}
	}
}

// Wait 阻塞到收到 SIGINT/SIGTERM、ctx 结束或某个监听意外退出；
// 后者返回该错误. 不负责关闭，调用方随后执行 Shutdown.
func (g *Group) Wait(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested", zap.Error(context.Cause(ctx)))
		return nil
	case err := <-g.errCh:
		return err
	}
}

// Shutdown 按主监听、排空钩子、其余监听的顺序关闭；可重复调用
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	listeners := g.listeners
	drains := g.drains
	started := g.started
	g.mu.Unlock()

	if !started || len(listeners) == 0 {
		return nil
	}

	var errs []error
	primary := listeners[0]
	errs = append(errs, g.stop(ctx, primary))

	drainCtx, cancel := context.WithTimeout(ctx, primary.config.ShutdownTimeout)
	for _, fn := range drains {
		if err := fn(drainCtx); err != nil {
			g.logger.Warn("drain did not complete", zap.Error(err))
			errs = append(errs, fmt.Errorf("drain: %w", err))
		}
	}
	cancel()

	for _, l := range listeners[1:] {
		errs = append(errs, g.stop(ctx, l))
	}
	return errors.Join(errs...)
}

func (g *Group) stop(ctx context.Context, l *Listener) error {
	g.logger.Info("shutting down HTTP server", zap.String("listener", l.name))
	ctx, cancel := context.WithTimeout(ctx, l.config.ShutdownTimeout)
	defer cancel()
	if err := l.server.Shutdown(ctx); err != nil {
		g.logger.Error("HTTP server shutdown failed", zap.String("listener", l.name), zap.Error(err))
		return fmt.Errorf("%s: %w", l.name, err)
	}
	g.logger.Info("HTTP server stopped", zap.String("listener", l.name))
	return nil
}
