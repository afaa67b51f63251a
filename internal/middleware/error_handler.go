package middleware

import (
	"encoding/json"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"schwabgw/internal/errors"
	"schwabgw/internal/logger"
)

// ErrorHandler 错误处理中间件，恢复 panic 并返回统一错误响应
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		// 记录panic堆栈
		logger.Error("Panic recovered",
			"error", recovered,
			"stack", string(debug.Stack()),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", GetRequestID(c),
		)

		handleError(c, errors.NewAppError(errors.ErrCodeInternal, "Internal server error", nil))
	})
}

// HandleError 处理 handler 通过 c.Error 上报的错误
func HandleError(c *gin.Context) {
	c.Next()

	if len(c.Errors) > 0 && !c.Writer.Written() {
		handleError(c, c.Errors.Last().Err)
	}
}

// handleError 统一错误处理
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	appErr := errors.WrapError(err, errors.ErrCodeInternal, "Internal server error")

	// 添加请求上下文
	if appErr.RequestID == "" {
		appErr = appErr.WithRequestID(GetRequestID(c))
	}

	logError(c, appErr)

	c.AbortWithStatusJSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, c.Request.URL.Path))
}

// logError 记录错误日志，按严重程度选择级别
func logError(c *gin.Context, err *errors.AppError) {
	fields := []interface{}{
		"error_code", err.Code,
		"message", err.Message,
		"severity", err.Severity,
		"request_id", err.RequestID,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
	}

	if err.Details != "" {
		fields = append(fields, "details", err.Details)
	}
	if err.UpstreamStatus != 0 {
		// 上游响应体可能很大，只记录状态码
		fields = append(fields, "upstream_status", err.UpstreamStatus)
	}
	if len(err.Context) > 0 {
		contextJSON, _ := json.Marshal(err.Context)
		fields = append(fields, "context", string(contextJSON))
	}
	if err.Cause != nil {
		fields = append(fields, "cause", err.Cause.Error())
	}

	switch err.Severity {
	case errors.SeverityCritical:
		logger.Error("Critical error occurred", fields...)
	case errors.SeverityHigh:
		logger.Error("High severity error occurred", fields...)
	case errors.SeverityMedium:
		logger.Warn("Medium severity error occurred", fields...)
	default:
		logger.Info("Low severity error occurred", fields...)
	}
}
