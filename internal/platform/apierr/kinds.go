package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	CodeAlgorithm         = "algorithm_error"
	CodeRecommendation    = "recommendation_error"
	CodeFeedProcessing    = "feed_processing_error"
	CodeDataProcessing    = "data_processing_error"
	CodeContentModeration = "content_moderation_error"
	CodeQuotaExceeded     = "ai_quota_exceeded"
	CodeModelExecution    = "model_execution_error"
	CodeAdPersonalization = "ad_personalization_error"
	CodePredictionTimeout = "prediction_timeout"
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
)

// Kind sentinels for errors.Is comparisons.
var (
	ErrAlgorithm         = &Error{Status: http.StatusInternalServerError, Code: CodeAlgorithm}
	ErrRecommendation    = &Error{Status: http.StatusInternalServerError, Code: CodeRecommendation}
	ErrFeedProcessing    = &Error{Status: http.StatusInternalServerError, Code: CodeFeedProcessing}
	ErrDataProcessing    = &Error{Status: http.StatusInternalServerError, Code: CodeDataProcessing}
	ErrContentModeration = &Error{Status: http.StatusBadRequest, Code: CodeContentModeration}
	ErrQuotaExceeded     = &Error{Status: http.StatusTooManyRequests, Code: CodeQuotaExceeded}
	ErrModelExecution    = &Error{Status: http.StatusInternalServerError, Code: CodeModelExecution}
	ErrAdPersonalization = &Error{Status: http.StatusInternalServerError, Code: CodeAdPersonalization}
	ErrPredictionTimeout = &Error{Status: http.StatusGatewayTimeout, Code: CodePredictionTimeout}
	ErrInvalidRequest    = &Error{Status: http.StatusBadRequest, Code: CodeInvalidRequest}
	ErrNotFound          = &Error{Status: http.StatusNotFound, Code: CodeNotFound}
)

func kind(status int, code, msg string, details map[string]any) *Error {
	if msg == "" {
		msg = code
	}
	return (&Error{Status: status, Code: code, Err: errors.New(msg)}).WithDetails(details)
}

func Algorithm(msg string, details map[string]any) *Error {
	return kind(http.StatusInternalServerError, CodeAlgorithm, msg, details)
}

func Recommendation(msg string, details map[string]any) *Error {
	return kind(http.StatusInternalServerError, CodeRecommendation, msg, details)
}

func FeedProcessing(msg string, details map[string]any) *Error {
	return kind(http.StatusInternalServerError, CodeFeedProcessing, msg, details)
}

func DataProcessing(msg string, details map[string]any) *Error {
	return kind(http.StatusInternalServerError, CodeDataProcessing, msg, details)
}

func ContentModeration(reason string, details map[string]any) *Error {
	if reason == "" {
		reason = "content flagged by moderation"
	}
	return kind(http.StatusBadRequest, CodeContentModeration, reason, details)
}

func AdPersonalization(msg string, details map[string]any) *Error {
	return kind(http.StatusInternalServerError, CodeAdPersonalization, msg, details)
}

// QuotaExceeded carries the wait before the caller may retry.
func QuotaExceeded(retryAfter time.Duration) *Error {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	e := kind(http.StatusTooManyRequests, CodeQuotaExceeded, "AI quota exceeded", map[string]any{
		"retry_after": int(retryAfter.Round(time.Second) / time.Second),
	})
	e.RetryAfter = retryAfter
	return e
}

// ModelExecution wraps a remote model failure with the model name and a
// short failure kind such as "timeout", "http_5xx" or "circuit_open".
func ModelExecution(model, errorType string, err error) *Error {
	if err == nil {
		err = errors.New("model execution failed")
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeModelExecution,
		Err:     fmt.Errorf("model %s: %w", model, err),
		Details: map[string]any{"model": model, "error_type": errorType},
	}
}

func PredictionTimeout(op string, after time.Duration) *Error {
	return kind(http.StatusGatewayTimeout, CodePredictionTimeout,
		fmt.Sprintf("%s timed out after %s", op, after),
		map[string]any{"operation": op, "timeout_seconds": after.Seconds()})
}

func InvalidRequest(msg string, details map[string]any) *Error {
	return kind(http.StatusBadRequest, CodeInvalidRequest, msg, details)
}

func NotFound(what string, details map[string]any) *Error {
	return kind(http.StatusNotFound, CodeNotFound, what+" not found", details)
}
