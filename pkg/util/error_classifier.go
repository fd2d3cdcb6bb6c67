package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"notifydecision/pkg/circuitbreaker"
)

// Classifier 业务层错误分类；ok 为 false 时交给通用规则
type Classifier func(err error) (retryable bool, errorType string, ok bool)

// IsRetryableError determines if an error is retryable
// Returns: (isRetryable, errorType)
// classifiers 按顺序先于通用规则执行
func IsRetryableError(err error, classifiers ...Classifier) (bool, string) {
	if err == nil {
		return false, ""
	}

	for _, classify := range classifiers {
		if retryable, errorType, ok := classify(err); ok {
			return retryable, errorType
		}
	}

	// JSON decode errors - 不可重试（数据格式错误）
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false, "json_decode_error"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	// 熔断打开 - 可重试（等待恢复）
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return true, "circuit_open"
	}

	// Context timeout - 可重试
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	// 消费者关闭时取消 - 可重试（重新入队交给其他实例）
	if errors.Is(err, context.Canceled) {
		return true, "context_canceled"
	}

	// Network errors - 可重试
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "connection_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

// ShouldRetry checks if an error should be retried based on retry count
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
