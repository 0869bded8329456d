package types

import (
	"errors"
	"fmt"
)

// ErrorCode 表示整个引擎统一的错误码.
type ErrorCode string

// 对话引擎错误码
const (
	ErrValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrProviderExhausted       ErrorCode = "PROVIDER_EXHAUSTED"
	ErrInjectionDetected       ErrorCode = "INJECTION_DETECTED"
	ErrHallucinationRejected   ErrorCode = "HALLUCINATION_REJECTED"
	ErrDocumentLowConfidence   ErrorCode = "DOCUMENT_LOW_CONFIDENCE"
	ErrPersistenceFailure      ErrorCode = "PERSISTENCE_FAILURE"
	ErrEmbeddingsUnavailable   ErrorCode = "EMBEDDINGS_UNAVAILABLE"
	ErrDocumentConversionFails ErrorCode = "DOCUMENT_CONVERSION_FAILED"
)

// 外部依赖错误码
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error 表示带有错误码和元数据的结构化错误.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable 沿错误链查找 *Error 并返回其 Retryable 标记.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode 沿错误链提取错误码, 找不到时返回空字符串.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode 判断错误链中是否包含给定错误码.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// PersistenceFailure 包装存储层错误. 这是唯一会从 HandleInbound 向上传播的错误.
func PersistenceFailure(op string, cause error) *Error {
	return NewError(ErrPersistenceFailure, op).WithCause(cause).WithRetryable(true)
}
