// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、错误注入、延迟与 embedding 场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/defensoria-civil/divorcios/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 与 llm.Embedder 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	name string

	// 响应配置
	response string
	err      error

	// embedding 配置
	embedding []float32
	embedErr  error

	// 调用记录
	calls          []MockProviderCall
	embedCalls     [][]string
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:      "mock",
		response:  "Mock response",
		embedding: []float32{1, 0, 0},
	}
}

// WithName 设置 Provider 名称（路由测试需要区分多个 Provider）
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置响应延迟；延迟期间会响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// WithEmbedding 设置每个文本返回的向量
func (m *MockProvider) WithEmbedding(vec []float32) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedding = vec
	return m
}

// WithEmbedError 设置 Embed 返回的错误
func (m *MockProvider) WithEmbedError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedErr = err
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return &llm.HealthStatus{Healthy: false}, m.err
	}
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	delay := m.delay
	count := m.callCount
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.record(MockProviderCall{Request: req, Error: ctx.Err()})
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	failAfter, presetErr, fn, response, name := m.failAfter, m.err, m.completionFunc, m.response, m.name
	m.mu.RUnlock()

	if failAfter > 0 && count > failAfter {
		err := errors.New("mock provider: configured to fail after N calls")
		m.record(MockProviderCall{Request: req, Error: err})
		return nil, err
	}

	if presetErr != nil {
		m.record(MockProviderCall{Request: req, Error: presetErr})
		return nil, presetErr
	}

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	resp := &llm.ChatResponse{
		ID:        "mock-response-id",
		Provider:  name,
		Model:     req.Model,
		Content:   response,
		CreatedAt: time.Now(),
	}
	m.record(MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// Embed 为每个文本返回同一个预设向量
func (m *MockProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls = append(m.embedCalls, texts)
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, len(m.embedding))
		copy(v, m.embedding)
		out[i] = v
	}
	return out, nil
}

func (m *MockProvider) record(c MockProviderCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// --- 调用记录查询 ---

// Calls 返回所有 Completion 调用记录
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回 Completion 调用次数
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// EmbedCallCount 返回 Embed 调用次数
func (m *MockProvider) EmbedCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embedCalls)
}

// LastRequest 返回最后一次请求
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1].Request
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.embedCalls = nil
	m.callCount = 0
}

// --- 常用预设 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(name, response string) *MockProvider {
	return NewMockProvider().WithName(name).WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(name string, err error) *MockProvider {
	return NewMockProvider().WithName(name).WithError(err).WithEmbedError(err)
}
