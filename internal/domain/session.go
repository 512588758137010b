package domain

// SessionPayload is the identity embedded in both access and refresh tokens.
// It is immutable once signed; changing any field requires a new token.
// SessionID is minted per login and survives refresh.
type SessionPayload struct {
	SessionID string `json:"sid,omitempty"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
