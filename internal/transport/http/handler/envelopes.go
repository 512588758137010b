package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-equity-auth/internal/domain"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoginEnvelope wraps login responses.
type LoginEnvelope struct {
	User              *domain.User `json:"user,omitempty"`
	Token             string       `json:"token,omitempty"`
	RefreshToken      string       `json:"refresh_token,omitempty"`
	TwoFactorRequired bool         `json:"two_factor_required"`
	CodeSent          bool         `json:"code_sent,omitempty"`
	Error             string       `json:"error,omitempty"`
}

// SessionEnvelope wraps current-session and refresh responses.
type SessionEnvelope struct {
	Session           *domain.SessionPayload `json:"session,omitempty"`
	Token             string                 `json:"token,omitempty"`
	RefreshToken      string                 `json:"refresh_token,omitempty"`
	TwoFactorRequired bool                   `json:"two_factor_required"`
	TwoFactorVerified bool                   `json:"two_factor_verified"`
}

// CodeEnvelope wraps code issuance responses. The code itself never appears.
type CodeEnvelope struct {
	Channel   string `json:"channel"`
	ExpiresAt string `json:"expires_at"`
	Message   string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain errors to status codes. Configuration and upstream
// faults are logged and answered with a generic message.
func httpError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCodeInvalid):
		writeError(w, http.StatusUnauthorized, domain.ErrCodeInvalid.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrCodeExpired),
		errors.Is(err, domain.ErrAttemptsExhausted),
		errors.Is(err, domain.ErrCodeNotIssued):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrResendThrottled):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst) == nil
}
