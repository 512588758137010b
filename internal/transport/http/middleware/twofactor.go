package middleware

import (
	"net/http"

	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/transport/http/cookies"
)

// RequireTwoFactor must run after Auth. Sessions whose role is covered by
// policy pass only with a valid two-factor flag for the same user.
func RequireTwoFactor(policy domain.TwoFactorPolicy, cm *cookies.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if policy.Requires(sess.Role) && !cm.TwoFactorVerified(r, *sess) {
				writeJSONError(w, http.StatusForbidden, "two-factor verification required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
