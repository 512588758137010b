package domain

// User is the identity returned by the credential backend.
type User struct {
	UserID string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Role   string  `json:"role"`
	Phone  *string `json:"phone,omitempty"`
}

// Payload returns the claim set signed into session and refresh tokens.
func (u *User) Payload() SessionPayload {
	return SessionPayload{UserID: u.UserID, Name: u.Name, Email: u.Email, Role: u.Role}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}
