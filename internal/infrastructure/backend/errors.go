package backend

import "github.com/go-equity-auth/internal/domain"

// RejectedError is a credential rejection carrying the backend's
// human-readable message. It matches domain.ErrUnauthorized.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "credentials rejected: " + e.Message
}

func (e *RejectedError) Unwrap() error { return domain.ErrUnauthorized }
