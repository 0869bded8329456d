package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/api"
)

// 服务状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// =============================================================================
// 🏥 存活与就绪
// =============================================================================

// Check 一项就绪检查.
// Critical 失败时 /ready 返回 503；非关键检查失败只把状态降为 degraded，
// 对话仍可按状态机推进（例如 Provider 全部不可用、去重退化为重复处理）.
type Check struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) error
}

// HealthStatus /health 与 /ready 的响应
type HealthStatus struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	Components map[string]string      `json:"components,omitempty"`
}

// CheckResult 单项检查结果
type CheckResult struct {
	Status   string `json:"status"` // pass / fail
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// HealthHandler 提供 /health、/ready 与 /version.
// /health 只报告进程存活与组件概况（去重后端、向量索引规模等），不访问外部依赖.
type HealthHandler struct {
	timeout    time.Duration
	logger     *zap.Logger
	mu         sync.RWMutex
	checks     []Check
	components map[string]func() string
}

// NewHealthHandler 创建处理器；timeout 为一次 /ready 的总时限
func NewHealthHandler(timeout time.Duration, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "health")),
		components: make(map[string]func() string),
	}
}

// Register 注册就绪检查
func (h *HealthHandler) Register(c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Describe 注册组件概况，在 /health 与 /ready 中输出
func (h *HealthHandler) Describe(name string, fn func() string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = fn
}

// HandleLive 处理 /health 与 /healthz
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: h.describe(),
	})
}

// HandleReady 处理 /ready 与 /readyz，各项检查并发执行
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]Check(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.run(ctx, c)
		}()
	}
	wg.Wait()

	status := HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Checks:     make(map[string]CheckResult, len(checks)),
		Components: h.describe(),
	}
	for i, c := range checks {
		res := results[i]
		status.Checks[c.Name] = res
		if res.Status == "pass" {
			continue
		}
		switch {
		case c.Critical:
			status.Status = StatusUnhealthy
		case status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, c Check) (res CheckResult) {
	start := time.Now()
	res = CheckResult{Status: "pass", Critical: c.Critical}
	defer func() {
		if rec := recover(); rec != nil {
			res.Status = "fail"
			res.Message = fmt.Sprintf("panic: %v", rec)
		}
		res.Latency = time.Since(start).String()
	}()
	if err := c.Run(ctx); err != nil {
		res.Status = "fail"
		res.Message = err.Error()
		h.logger.Warn("readiness check failed",
			zap.String("check", c.Name),
			zap.Bool("critical", c.Critical),
			zap.Error(err))
	}
	return res
}

func (h *HealthHandler) describe() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.components) == 0 {
		return nil
	}
	out := make(map[string]string, len(h.components))
	for name, fn := range h.components {
		out[name] = fn()
	}
	return out
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := api.VersionInfo{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置检查
// =============================================================================

// PingCheck 包装数据库或 Redis 的 Ping
func PingCheck(name string, critical bool, ping func(ctx context.Context) error) Check {
	return Check{Name: name, Critical: critical, Run: ping}
}

// ProvidersCheck 至少一个 Provider 可用即通过；check 通常为 Router.HealthCheck.
// 非关键：数据收集不依赖 LLM.
func ProvidersCheck(check func(ctx context.Context) map[string]error) Check {
	return Check{
		Name: "providers",
		Run: func(ctx context.Context) error {
			results := check(ctx)
			if len(results) == 0 {
				return errors.New("no providers configured")
			}
			var failed []string
			for name, err := range results {
				if err == nil {
					return nil
				}
				failed = append(failed, fmt.Sprintf("%s: %v", name, err))
			}
			sort.Strings(failed)
			return fmt.Errorf("all providers unhealthy: %s", strings.Join(failed, "; "))
		},
	}
}
