package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-equity-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{fmt.Errorf("%w: email is required", domain.ErrBadRequest), http.StatusBadRequest, "bad request: email is required"},
		{domain.ErrCodeInvalid, http.StatusUnauthorized, domain.ErrCodeInvalid.Error()},
		{fmt.Errorf("%w: token expired", domain.ErrUnauthorized), http.StatusUnauthorized, "unauthorized"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{domain.ErrCodeExpired, http.StatusBadRequest, domain.ErrCodeExpired.Error()},
		{domain.ErrAttemptsExhausted, http.StatusBadRequest, domain.ErrAttemptsExhausted.Error()},
		{domain.ErrCodeNotIssued, http.StatusBadRequest, domain.ErrCodeNotIssued.Error()},
		{domain.ErrResendThrottled, http.StatusTooManyRequests, domain.ErrResendThrottled.Error()},
		{fmt.Errorf("%w: smtp relay not configured", domain.ErrConfig), http.StatusInternalServerError, "internal server error"},
		{fmt.Errorf("%w: dial tcp 10.0.0.1:587", domain.ErrUpstream), http.StatusInternalServerError, "internal server error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			httpError(rr, zap.NewNop(), tt.err)
			assert.Equal(t, tt.status, rr.Code)
			var env MessageEnvelope
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
			assert.Equal(t, tt.message, env.Error)
		})
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct{ base, rest, want string }{
		{"", "", "/"},
		{"/api", "", "/api"},
		{"/api", "/deals", "/api/deals"},
		{"/api/", "/deals", "/api/deals"},
		{"/api", "deals", "/api/deals"},
		{"", "/deals", "/deals"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinPath(tt.base, tt.rest), "%q + %q", tt.base, tt.rest)
	}
}
