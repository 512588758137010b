package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-equity-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 2*time.Second)
}

func TestLogin_Success(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		var p loginPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "ada@example.com", p.Email)
		_, _ = w.Write([]byte(`{"user":{"id":"u1","name":"Ada","email":"ada@example.com","role":"investor"},"internal":"ignored"}`))
	})

	u, err := c.Login(context.Background(), "ada@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, "investor", u.Role)
}

func TestLogin_Rejected(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Wrong password","trace":"db row 7"}`))
	})

	_, err := c.Login(context.Background(), "ada@example.com", "nope")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Wrong password", rej.Message)
}

func TestLogin_RejectedWithoutBody(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.Login(context.Background(), "ada@example.com", "nope")
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "invalid email or password", rej.Message)
}

func TestLogin_ServerError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Login(context.Background(), "ada@example.com", "password123")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestLogin_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Login(context.Background(), "a@b.co", "password123")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestLogin_MalformedSuccessBody(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"user":null}`))
	})
	_, err := c.Login(context.Background(), "a@b.co", "password123")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestLogout_SendsBearer(t *testing.T) {
	var auth string
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/logout", r.URL.Path)
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Logout(context.Background(), "tok"))
	assert.Equal(t, "Bearer tok", auth)
}

func TestLogout_Failure(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.ErrorIs(t, c.Logout(context.Background(), "tok"), domain.ErrUpstream)
}
