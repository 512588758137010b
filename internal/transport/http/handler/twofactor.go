package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-equity-auth/internal/application/twofactor"
	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/pkg/validate"
	"github.com/go-equity-auth/internal/transport/http/cookies"
	"github.com/go-equity-auth/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type sendCodeRequest struct {
	Channel string  `json:"channel" validate:"omitempty,oneof=email sms"`
	Phone   *string `json:"phone" validate:"omitempty,e164"`
}

type verifyCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// TwoFactorHandler serves the code send and verify endpoints. Both run
// behind middleware.Auth.
type TwoFactorHandler struct {
	codes   twofactor.Service
	cookies *cookies.Manager
	log     *zap.Logger
}

func NewTwoFactorHandler(codes twofactor.Service, cm *cookies.Manager, log *zap.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{codes: codes, cookies: cm, log: log}
}

// Send issues a fresh code for the session's email, replacing any pending
// one. The body is optional.
func (h *TwoFactorHandler) Send(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req sendCodeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, h.log, err)
		return
	}

	issued, err := h.codes.RequestCode(r.Context(), twofactor.CodeRequest{
		Email:   sess.Email,
		Name:    sess.Name,
		Phone:   req.Phone,
		Channel: req.Channel,
	})
	if err != nil {
		httpError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, CodeEnvelope{
		Channel:   issued.Channel,
		ExpiresAt: issued.ExpiresAt.UTC().Format(time.RFC3339),
		Message:   "verification code sent",
	})
}

// Verify checks the submitted code and, on success, sets the two-factor
// flag cookie for the session's user.
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req verifyCodeRequest
	if !decode(w, r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, h.log, err)
		return
	}
	if err := h.codes.VerifyCode(r.Context(), sess.Email, req.Code); err != nil {
		httpError(w, h.log, err)
		return
	}
	h.cookies.SetTwoFactorFlag(w, *sess, true, cookies.FlagOptions{})
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "two-factor verification complete"})
}

// Status reports the state of the session's pending code.
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	state, err := h.codes.Status(r.Context(), sess.Email)
	if err != nil {
		httpError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		State    domain.CodeState `json:"state"`
		Verified bool             `json:"verified"`
	}{state, h.cookies.TwoFactorVerified(r, *sess)})
}
