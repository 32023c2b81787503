package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorReason categorizes why a provider request failed.
type ErrorReason string

const (
	ReasonRateLimit      ErrorReason = "rate_limit"
	ReasonAuth           ErrorReason = "auth"
	ReasonBilling        ErrorReason = "billing"
	ReasonTimeout        ErrorReason = "timeout"
	ReasonServerError    ErrorReason = "server_error"
	ReasonInvalidRequest ErrorReason = "invalid_request"
	ReasonModelNotFound  ErrorReason = "model_not_found"
	ReasonUnknown        ErrorReason = "unknown"
)

// IsRetryable reports whether retrying the same request may succeed.
func (r ErrorReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a classified error from an LLM backend.
type ProviderError struct {
	Reason   ErrorReason
	Provider string
	Model    string
	Status   int
	Cause    error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason), e.Provider}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause with its classification.
func NewProviderError(provider, model string, cause error) *ProviderError {
	reason, status := Classify(cause)
	return &ProviderError{Reason: reason, Provider: provider, Model: model, Status: status, Cause: cause}
}

// Classify maps an error to a reason, preferring the HTTP status reported
// by the OpenAI client over message matching.
func Classify(err error) (ErrorReason, int) {
	if err == nil {
		return ReasonUnknown, 0
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatusCode(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatusCode(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout, 0
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout, 0
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return ReasonRateLimit, 0
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "eof"):
		return ReasonServerError, 0
	}
	return ReasonUnknown, 0
}

func classifyStatusCode(status int) ErrorReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusRequestTimeout:
		return ReasonTimeout
	case status == http.StatusNotFound:
		return ReasonModelNotFound
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Reason.IsRetryable()
	}
	reason, _ := Classify(err)
	return reason.IsRetryable()
}
