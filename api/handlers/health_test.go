package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pass(context.Context) error { return nil }

func fail(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func ready(t *testing.T, h *HealthHandler) (int, HealthStatus) {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return w.Code, status
}

// =============================================================================
// 🧪 存活
// =============================================================================

func TestHealthHandler_HandleLive(t *testing.T) {
	h := NewHealthHandler(time.Second, zap.NewNop())
	h.Describe("dedup", func() string { return "memory" })
	h.Describe("vector_index", func() string { return "episodic=3 semantic=12" })
	// 存活不执行就绪检查
	h.Register(Check{Name: "database", Critical: true, Run: fail("down")})

	w := httptest.NewRecorder()
	h.HandleLive(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, StatusHealthy, status.Status)
	assert.False(t, status.Timestamp.IsZero())
	assert.Empty(t, status.Checks)
	assert.Equal(t, "memory", status.Components["dedup"])
	assert.Equal(t, "episodic=3 semantic=12", status.Components["vector_index"])
}

// =============================================================================
// 🧪 就绪
// =============================================================================

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
	}{
		{
			name:       "sin checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "todo ok",
			checks: []Check{
				{Name: "database", Critical: true, Run: pass},
				{Name: "redis", Run: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "redis caido degrada",
			checks: []Check{
				{Name: "database", Critical: true, Run: pass},
				{Name: "redis", Run: fail("connection refused")},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name: "base caida",
			checks: []Check{
				{Name: "database", Critical: true, Run: fail("database is closed")},
				{Name: "redis", Run: fail("connection refused")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(time.Second, zap.NewNop())
			for _, c := range tt.checks {
				h.Register(c)
			}
			code, status := ready(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
		})
	}
}

func TestHealthHandler_ReadyReportsFailureDetail(t *testing.T) {
	h := NewHealthHandler(time.Second, zap.NewNop())
	h.Register(PingCheck("database", true, fail("database is closed")))
	h.Register(PingCheck("redis", false, pass))

	_, status := ready(t, h)
	db := status.Checks["database"]
	assert.Equal(t, "fail", db.Status)
	assert.True(t, db.Critical)
	assert.Equal(t, "database is closed", db.Message)
	assert.NotEmpty(t, db.Latency)

	assert.Equal(t, "pass", status.Checks["redis"].Status)
	assert.False(t, status.Checks["redis"].Critical)
}

func TestHealthHandler_ReadyRunsChecksConcurrently(t *testing.T) {
	h := NewHealthHandler(time.Second, zap.NewNop())
	// 两个检查互相等待，串行执行会超时
	var wg sync.WaitGroup
	wg.Add(2)
	rendezvous := func(ctx context.Context) error {
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.Register(Check{Name: "a", Critical: true, Run: rendezvous})
	h.Register(Check{Name: "b", Critical: true, Run: rendezvous})

	code, status := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, status.Status)
}

func TestHealthHandler_ReadyTimeoutFailsCheck(t *testing.T) {
	h := NewHealthHandler(50*time.Millisecond, zap.NewNop())
	h.Register(Check{Name: "database", Critical: true, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	code, status := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, status.Checks["database"].Message, "deadline")
}

func TestHealthHandler_ReadyRecoversPanickingCheck(t *testing.T) {
	h := NewHealthHandler(time.Second, zap.NewNop())
	h.Register(Check{Name: "vector_index", Run: func(context.Context) error { panic("nil collection") }})

	code, status := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Contains(t, status.Checks["vector_index"].Message, "nil collection")
}

func TestHealthHandler_ConcurrentRequests(t *testing.T) {
	h := NewHealthHandler(time.Second, zap.NewNop())
	for i := 0; i < 10; i++ {
		h.Register(Check{Name: string(rune('a' + i)), Run: pass})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(0, nil)

	w := httptest.NewRecorder()
	h.HandleVersion("1.0.0", "2026-10-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "2026-10-01T00:00:00Z", data["build_time"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestProvidersCheck(t *testing.T) {
	ctx := context.Background()

	ok := ProvidersCheck(func(context.Context) map[string]error {
		return map[string]error{"gemini": errors.New("401"), "ollama": nil}
	})
	assert.Equal(t, "providers", ok.Name)
	assert.False(t, ok.Critical)
	assert.NoError(t, ok.Run(ctx))

	down := ProvidersCheck(func(context.Context) map[string]error {
		return map[string]error{"gemini": errors.New("401"), "ollama": errors.New("connection refused")}
	})
	err := down.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: 401")
	assert.Contains(t, err.Error(), "ollama: connection refused")

	none := ProvidersCheck(func(context.Context) map[string]error { return nil })
	assert.Error(t, none.Run(ctx))
}
