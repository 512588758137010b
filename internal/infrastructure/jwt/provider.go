package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-equity-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the typ claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims holds the JWT payload fields.
type Claims struct {
	domain.SessionPayload
	Kind string `json:"typ"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 JWTs.
type Provider struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewProvider never fails on an empty secret; Sign and Verify report it
// as domain.ErrConfig on every call instead.
func NewProvider(secret string, accessTTL, refreshTTL time.Duration) *Provider {
	return &Provider{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL is the lifetime of session tokens.
func (p *Provider) AccessTTL() time.Duration { return p.accessTTL }

// Issue mints an access and a refresh token for the same payload.
func (p *Provider) Issue(payload domain.SessionPayload) (access, refresh string, err error) {
	if access, err = p.Sign(payload, KindAccess); err != nil {
		return "", "", err
	}
	if refresh, err = p.Sign(payload, KindRefresh); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (p *Provider) Sign(payload domain.SessionPayload, kind string) (string, error) {
	if len(p.secret) == 0 {
		return "", fmt.Errorf("%w: JWT_SECRET is not set", domain.ErrConfig)
	}
	ttl := p.accessTTL
	if kind == KindRefresh {
		ttl = p.refreshTTL
	}
	now := p.now()
	claims := Claims{
		SessionPayload: payload,
		Kind:           kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify accepts only access tokens.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	return p.verify(tokenStr, KindAccess)
}

// VerifyRefresh accepts only refresh tokens.
func (p *Provider) VerifyRefresh(tokenStr string) (*Claims, error) {
	return p.verify(tokenStr, KindRefresh)
}

func (p *Provider) verify(tokenStr, kind string) (*Claims, error) {
	if len(p.secret) == 0 {
		return nil, fmt.Errorf("%w: JWT_SECRET is not set", domain.ErrConfig)
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", domain.ErrUnauthorized, kind)
	}
	return claims, nil
}
