package webpush

import (
	"errors"
	"fmt"
)

// Batch-level errors returned by Dispatcher. Per-subscription failures never
// surface as errors; they are recorded in DeliveryResult.Attempts.
var (
	ErrAuthentication  = errors.New("webpush: authentication failed")
	ErrEventExpired    = errors.New("webpush: event expired before dispatch")
	ErrPayloadTooLarge = errors.New("webpush: notification payload too large")
	ErrInvalidEvent    = errors.New("webpush: invalid event")
)

// Store and validation errors.
var (
	ErrSubscriptionNotFound = errors.New("webpush: subscription not found")
	ErrInvalidSubscription  = errors.New("webpush: invalid subscription")
)

// ErrorCode classifies a failed delivery attempt.
type ErrorCode string

const (
	CodeNetworkError        ErrorCode = "network_error"
	CodeProviderError       ErrorCode = "provider_error"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeExpiredSubscription ErrorCode = "expired_subscription"
	CodeInvalidSubscription ErrorCode = "invalid_subscription"
	CodeEncryptionError     ErrorCode = "encryption_error"
	CodeUnknown             ErrorCode = "unknown"
)

// TransportError describes why a push service call did not succeed.
type TransportError struct {
	Code       ErrorCode
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
