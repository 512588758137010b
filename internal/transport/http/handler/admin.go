package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-equity-auth/internal/application/twofactor"
	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/pkg/validate"
	"go.uber.org/zap"
)

// RolePolicy is one row of the role listing.
type RolePolicy struct {
	Role              string `json:"role"`
	TwoFactorRequired bool   `json:"two_factor_required"`
}

type emailParam struct {
	Email string `json:"email" validate:"required,email"`
}

// AdminHandler handles support endpoints (all admin-only).
type AdminHandler struct {
	codes  twofactor.Service
	policy domain.TwoFactorPolicy
	log    *zap.Logger
}

func NewAdminHandler(codes twofactor.Service, policy domain.TwoFactorPolicy, log *zap.Logger) *AdminHandler {
	return &AdminHandler{codes: codes, policy: policy, log: log}
}

func (h *AdminHandler) ListRoles(w http.ResponseWriter, _ *http.Request) {
	roles := []string{domain.RoleAdmin, domain.RoleFounder, domain.RoleInvestor}
	out := make([]RolePolicy, 0, len(roles))
	for _, r := range roles {
		out = append(out, RolePolicy{Role: r, TwoFactorRequired: h.policy.Requires(r)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) CodeStatus(w http.ResponseWriter, r *http.Request) {
	email, ok := h.email(w, r)
	if !ok {
		return
	}
	state, err := h.codes.Status(r.Context(), email)
	if err != nil {
		httpError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Email string           `json:"email"`
		State domain.CodeState `json:"state"`
	}{domain.NormalizeEmail(email), state})
}

func (h *AdminHandler) InvalidateCode(w http.ResponseWriter, r *http.Request) {
	email, ok := h.email(w, r)
	if !ok {
		return
	}
	if err := h.codes.Invalidate(r.Context(), email); err != nil {
		httpError(w, h.log, err)
		return
	}
	h.log.Info("code invalidated", zap.String("email", email))
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "code invalidated"})
}

func (h *AdminHandler) ResetAttempts(w http.ResponseWriter, r *http.Request) {
	email, ok := h.email(w, r)
	if !ok {
		return
	}
	if err := h.codes.ResetAttempts(r.Context(), email); err != nil {
		httpError(w, h.log, err)
		return
	}
	h.log.Info("code attempts reset", zap.String("email", email))
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "attempts reset"})
}

func (h *AdminHandler) email(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := emailParam{Email: chi.URLParam(r, "email")}
	if err := validate.Struct(p); err != nil {
		httpError(w, h.log, err)
		return "", false
	}
	return p.Email, true
}
