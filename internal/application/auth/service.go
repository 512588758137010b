package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/infrastructure/backend"
	jwtinfra "github.com/go-equity-auth/internal/infrastructure/jwt"
	"github.com/go-equity-auth/internal/metrics"
	"github.com/go-equity-auth/internal/pkg/id"
	"github.com/go-equity-auth/internal/pkg/validate"
	"go.uber.org/zap"
)

const (
	logoutTimeout    = 5 * time.Second
	defaultRejection = "invalid email or password"
)

// Backend checks credentials against the user store.
type Backend interface {
	// Login returns an error matching domain.ErrUnauthorized for rejected
	// credentials and domain.ErrUpstream for transport faults.
	Login(ctx context.Context, email, password string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
}

type TokenIssuer interface {
	Issue(payload domain.SessionPayload) (access, refresh string, err error)
	Verify(token string) (*jwtinfra.Claims, error)
	VerifyRefresh(token string) (*jwtinfra.Claims, error)
}

// ServiceDeps holds all dependencies for the auth service.
type ServiceDeps struct {
	Backend Backend
	Tokens  TokenIssuer
	Policy  domain.TwoFactorPolicy
	Logger  *zap.Logger
}

// LoginResult is either a success carrying User and both tokens, or a
// failure carrying only Error.
type LoginResult struct {
	User              *domain.User `json:"user,omitempty"`
	Token             string       `json:"token,omitempty"`
	RefreshToken      string       `json:"refresh_token,omitempty"`
	TwoFactorRequired bool         `json:"two_factor_required"`
	Error             string       `json:"error,omitempty"`
}

func (r *LoginResult) OK() bool { return r.Error == "" }

// TokenPair is the result of a refresh.
type TokenPair struct {
	Session           domain.SessionPayload `json:"session"`
	Token             string                `json:"token"`
	RefreshToken      string                `json:"refresh_token"`
	TwoFactorRequired bool                  `json:"two_factor_required"`
}

type Service interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string)
	GetSession(ctx context.Context, token string) (*domain.SessionPayload, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	RequiresTwoFactor(role string) bool
}

type service struct {
	backend Backend
	tokens  TokenIssuer
	policy  domain.TwoFactorPolicy
	log     *zap.Logger
}

func NewService(deps ServiceDeps) Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &service{backend: deps.Backend, tokens: deps.Tokens, policy: deps.Policy, log: log}
}

// Login never returns an error for rejected credentials; those come back as
// a LoginResult with Error set. Malformed input wraps domain.ErrBadRequest,
// and backend or signing faults are returned as errors.
func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	req := domain.LoginRequest{Email: domain.NormalizeEmail(email), Password: password}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.backend.Login(ctx, req.Email, req.Password)
	if err != nil {
		var rej *backend.RejectedError
		switch {
		case errors.As(err, &rej):
			metrics.LoginTotal.WithLabelValues("invalid").Inc()
			return &LoginResult{Error: rej.Message}, nil
		case errors.Is(err, domain.ErrUnauthorized):
			metrics.LoginTotal.WithLabelValues("invalid").Inc()
			return &LoginResult{Error: defaultRejection}, nil
		default:
			metrics.LoginTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("login: %w", err)
		}
	}

	payload := u.Payload()
	payload.SessionID = id.New()
	access, refresh, err := s.tokens.Issue(payload)
	if err != nil {
		metrics.LoginTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	metrics.LoginTotal.WithLabelValues("success").Inc()
	s.log.Info("login", zap.String("user_id", u.UserID), zap.String("role", u.Role))
	return &LoginResult{
		User:              u,
		Token:             access,
		RefreshToken:      refresh,
		TwoFactorRequired: s.policy.Requires(u.Role),
	}, nil
}

// Logout notifies the backend. Failures are logged and otherwise ignored;
// clearing cookies is the caller's job.
func (s *service) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	if err := s.backend.Logout(ctx, token); err != nil {
		s.log.Warn("backend logout failed", zap.Error(err))
	}
}

func (s *service) GetSession(_ context.Context, token string) (*domain.SessionPayload, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no session", domain.ErrUnauthorized)
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	p := claims.SessionPayload
	return &p, nil
}

// Refresh trades a valid refresh token for a new pair carrying the same
// payload.
func (s *service) Refresh(_ context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", domain.ErrBadRequest)
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	access, refresh, err := s.tokens.Issue(claims.SessionPayload)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return &TokenPair{
		Session:           claims.SessionPayload,
		Token:             access,
		RefreshToken:      refresh,
		TwoFactorRequired: s.policy.Requires(claims.Role),
	}, nil
}

func (s *service) RequiresTwoFactor(role string) bool {
	return s.policy.Requires(role)
}
