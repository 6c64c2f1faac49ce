package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures. Only Timeout and RateLimited are
// retried.
type ErrorKind string

const (
	// KindTimeout covers deadline and transport timeouts
	KindTimeout ErrorKind = "timeout"
	// KindRateLimited maps provider 429 responses
	KindRateLimited ErrorKind = "rate_limited"
	// KindProviderError covers any other provider rejection
	KindProviderError ErrorKind = "provider_error"
	// KindContentFiltered means the provider suppressed the completion
	KindContentFiltered ErrorKind = "content_filtered"
	// KindInvalid means the completion failed structured-output validation
	KindInvalid ErrorKind = "invalid"
)

// ModelError is the typed failure returned by every gateway call.
type ModelError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model gateway %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("model gateway %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ModelError) Unwrap() error { return e.Err }

// Retryable reports whether a retry with backoff is worthwhile.
func (e *ModelError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindRateLimited
}

// NewModelError builds a ModelError.
func NewModelError(kind ErrorKind, message string, err error) *ModelError {
	return &ModelError{Kind: kind, Message: message, Err: err}
}

// AsModelError unwraps err to a *ModelError if there is one.
func AsModelError(err error) (*ModelError, bool) {
	var me *ModelError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// classifyTransport turns low-level HTTP client failures into ModelErrors.
// Context expiry counts as a timeout so the standard retry rules apply;
// explicit caller cancellation is passed through untouched.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewModelError(KindTimeout, "request deadline exceeded", err)
	}
	return NewModelError(KindTimeout, "transport failure", err)
}
