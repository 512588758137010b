package handler

import (
	"errors"
	"net/http"

	"github.com/go-equity-auth/internal/application/auth"
	"github.com/go-equity-auth/internal/application/twofactor"
	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/transport/http/cookies"
	"go.uber.org/zap"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	auth    auth.Service
	codes   twofactor.Service
	cookies *cookies.Manager
	log     *zap.Logger
}

func NewSessionHandler(svc auth.Service, codes twofactor.Service, cm *cookies.Manager, log *zap.Logger) *SessionHandler {
	return &SessionHandler{auth: svc, codes: codes, cookies: cm, log: log}
}

// Login checks credentials, sets the session cookie and, for roles under the
// two-factor policy, sends the first code. A failed send does not fail the
// login; the client can ask again through the send endpoint.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decode(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpError(w, h.log, err)
		return
	}
	if !result.OK() {
		writeJSON(w, http.StatusUnauthorized, LoginEnvelope{Error: result.Error})
		return
	}

	h.cookies.Create(w, result.Token)
	env := LoginEnvelope{
		User:              result.User,
		Token:             result.Token,
		RefreshToken:      result.RefreshToken,
		TwoFactorRequired: result.TwoFactorRequired,
	}
	if result.TwoFactorRequired {
		_, err := h.codes.RequestCode(r.Context(), twofactor.CodeRequest{
			Email: result.User.Email,
			Name:  result.User.Name,
			Phone: result.User.Phone,
		})
		if err != nil {
			h.log.Warn("send code on login", zap.String("user_id", result.User.UserID), zap.Error(err))
		}
		env.CodeSent = err == nil
	}
	writeJSON(w, http.StatusOK, env)
}

// Get reports the session carried by the request cookie.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.GetSession(r.Context(), h.cookies.Token(r))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "no active session")
			return
		}
		httpError(w, h.log, err)
		return
	}
	required := h.auth.RequiresTwoFactor(sess.Role)
	writeJSON(w, http.StatusOK, SessionEnvelope{
		Session:           sess,
		TwoFactorRequired: required,
		TwoFactorVerified: !required || h.cookies.TwoFactorVerified(r, *sess),
	})
}

// Logout notifies the backend and clears both cookies. It succeeds even
// without a session.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), h.cookies.Token(r))
	h.cookies.Destroy(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// Refresh trades a refresh token for a new pair. The two-factor flag is kept
// since it is bound to the same user id.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpError(w, h.log, err)
		return
	}
	h.cookies.Refresh(w, pair.Token)
	writeJSON(w, http.StatusOK, SessionEnvelope{
		Session:           &pair.Session,
		Token:             pair.Token,
		RefreshToken:      pair.RefreshToken,
		TwoFactorRequired: pair.TwoFactorRequired,
		TwoFactorVerified: !pair.TwoFactorRequired || h.cookies.TwoFactorVerified(r, pair.Session),
	})
}
