package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/transport/http/cookies"
)

type contextKey string

const sessionKey contextKey = "session"

// Auth resolves the session from the session cookie, falling back to a
// Bearer token, and injects the payload into the context.
func Auth(cm *cookies.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := cm.ReadServer(r)
			if !ok {
				sess, ok = fromBearer(cm, r)
			}
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing session")
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func fromBearer(cm *cookies.Manager, r *http.Request) (*domain.SessionPayload, bool) {
	tok, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return nil, false
	}
	return cm.Session(tok)
}

// SessionFromContext extracts the session payload from the request context.
func SessionFromContext(ctx context.Context) (*domain.SessionPayload, bool) {
	s, ok := ctx.Value(sessionKey).(*domain.SessionPayload)
	return s, ok
}

// WithSession returns ctx carrying sess.
func WithSession(ctx context.Context, sess *domain.SessionPayload) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}
