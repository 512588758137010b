package jwtinfra

import (
	"testing"
	"time"

	"github.com/go-equity-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = domain.SessionPayload{UserID: "u1", Name: "Ada", Email: "ada@example.com", Role: "investor"}

func TestIssueAndVerify(t *testing.T) {
	p := NewProvider("secret", 24*time.Hour, 6*time.Hour)

	access, refresh, err := p.Issue(payload)
	require.NoError(t, err)

	claims, err := p.Verify(access)
	require.NoError(t, err)
	assert.Equal(t, payload, claims.SessionPayload)
	assert.Equal(t, KindAccess, claims.Kind)

	rc, err := p.VerifyRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, payload, rc.SessionPayload)
}

func TestVerify_RejectsWrongKind(t *testing.T) {
	p := NewProvider("secret", time.Hour, time.Hour)
	access, refresh, err := p.Issue(payload)
	require.NoError(t, err)

	_, err = p.Verify(refresh)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = p.VerifyRefresh(access)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerify_Expired(t *testing.T) {
	p := NewProvider("secret", time.Hour, time.Hour)
	issued := time.Now()
	p.now = func() time.Time { return issued }
	tok, err := p.Sign(payload, KindAccess)
	require.NoError(t, err)

	p.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = p.Verify(tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerify_WrongSecretAndTampering(t *testing.T) {
	tok, err := NewProvider("secret", time.Hour, time.Hour).Sign(payload, KindAccess)
	require.NoError(t, err)

	_, err = NewProvider("other", time.Hour, time.Hour).Verify(tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = NewProvider("secret", time.Hour, time.Hour).Verify(tok + "x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{SessionPayload: payload, Kind: KindAccess, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewProvider("secret", time.Hour, time.Hour).Verify(tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMissingSecret(t *testing.T) {
	p := NewProvider("", time.Hour, time.Hour)
	_, _, err := p.Issue(payload)
	assert.ErrorIs(t, err, domain.ErrConfig)
	_, err = p.Verify("anything")
	assert.ErrorIs(t, err, domain.ErrConfig)
}
