package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode 定义错误代码类型
type ErrorCode string

// 错误代码常量
const (
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConfig     ErrorCode = "CONFIG_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// 上游错误，状态码与响应体原样透传
	ErrCodeUpstreamAuth    ErrorCode = "UPSTREAM_AUTH_ERROR"
	ErrCodeUpstreamRequest ErrorCode = "UPSTREAM_REQUEST_ERROR"

	// 本地持久化失败，只作为警告上报
	ErrCodePersistenceWarning ErrorCode = "PERSISTENCE_WARNING"
)

// ErrorSeverity 定义错误严重程度
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError 应用错误结构
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Violations []string               `json:"violations,omitempty"`
	Severity   ErrorSeverity          `json:"severity"`
	Timestamp  time.Time              `json:"timestamp"`
	RequestID  string                 `json:"request_id,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`

	// UpstreamStatus and UpstreamBody are set for upstream failures only.
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.UpstreamStatus != 0 {
		return fmt.Sprintf("[%s] %s: HTTP %d: %s", e.Code, e.Message, e.UpstreamStatus, e.UpstreamBody)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeUpstreamAuth, ErrCodeUpstreamRequest:
		if e.UpstreamStatus >= 400 && e.UpstreamStatus <= 599 {
			return e.UpstreamStatus
		}
		return http.StatusBadGateway
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError 创建新的应用错误
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  getSeverityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// NewAppErrorWithDetails 创建带详细信息的应用错误
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	err := NewAppError(code, message, cause)
	err.Details = details
	return err
}

// NewConfigError reports missing or malformed settings. Fatal at startup.
func NewConfigError(message string, missing ...string) *AppError {
	err := NewAppError(ErrCodeConfig, message, nil)
	if len(missing) > 0 {
		err.Details = strings.Join(missing, ", ")
		err.Violations = missing
	}
	return err
}

// NewUpstreamAuthError wraps a token endpoint rejection.
func NewUpstreamAuthError(status int, body string) *AppError {
	err := NewAppError(ErrCodeUpstreamAuth, "Token endpoint rejected the request", nil)
	err.UpstreamStatus = status
	err.UpstreamBody = body
	return err
}

// NewUpstreamRequestError wraps a resource endpoint rejection.
func NewUpstreamRequestError(status int, body string) *AppError {
	err := NewAppError(ErrCodeUpstreamRequest, "Upstream request failed", nil)
	err.UpstreamStatus = status
	err.UpstreamBody = body
	return err
}

// NewValidationError 创建输入校验错误
func NewValidationError(message string, violations ...string) *AppError {
	err := NewAppError(ErrCodeValidation, message, nil)
	if len(violations) > 0 {
		err.Details = strings.Join(violations, "; ")
		err.Violations = violations
	}
	return err
}

// NewPersistenceWarning 创建持久化警告
func NewPersistenceWarning(op string, cause error) *AppError {
	err := NewAppError(ErrCodePersistenceWarning, op+" failed", cause)
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// WithContext 添加上下文信息
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRequestID 添加请求ID
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// getSeverityByCode 根据错误代码确定严重程度
func getSeverityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal, ErrCodeConfig:
		return SeverityCritical
	case ErrCodeUpstreamAuth:
		return SeverityHigh
	case ErrCodeUpstreamRequest, ErrCodePersistenceWarning:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsRetryable reports whether the failure is transient. The gateway itself never retries;
// callers may use this to decide whether to resubmit.
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeUpstreamRequest, ErrCodeUpstreamAuth:
		switch e.UpstreamStatus {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	// Detail carries the upstream body verbatim for upstream failures,
	// otherwise the human readable message.
	Detail string `json:"detail"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, path string) *ErrorResponse {
	detail := err.Message
	switch {
	case err.UpstreamStatus != 0:
		detail = err.UpstreamBody
	case err.Details != "":
		detail = err.Message + ": " + err.Details
	}
	return &ErrorResponse{
		Error:     err,
		Success:   false,
		Timestamp: time.Now(),
		Path:      path,
		Detail:    detail,
	}
}

// WrapError 包装标准错误为应用错误
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}
	return NewAppError(code, message, err)
}

// IsAppError 检查是否为应用错误
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError 获取应用错误，支持被 fmt.Errorf("%w") 包装的情况
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
