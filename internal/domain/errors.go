package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrConfig marks missing or invalid runtime configuration (signing secret, SMTP relay).
	ErrConfig = errors.New("configuration error")
	// ErrUpstream marks a failure talking to a collaborator: the REST backend, the mail relay, a store.
	ErrUpstream = errors.New("upstream error")
)

// Two-factor verification outcomes.
var (
	ErrCodeNotIssued     = errors.New("no verification code issued")
	ErrCodeInvalid       = errors.New("invalid verification code")
	ErrCodeExpired       = errors.New("verification code expired")
	ErrAttemptsExhausted = errors.New("too many verification attempts")
	ErrResendThrottled   = errors.New("verification code requested too recently")
)
