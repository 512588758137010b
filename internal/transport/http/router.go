package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-equity-auth/internal/config"
	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-equity-auth/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const backendPrefix = "/api/v1"

// NewRouter builds and returns the application router. ctx bounds background
// work started by middleware.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(appmiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(log, deps.TrustedProxies))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, deps.TrustedProxies)
	authMw := appmiddleware.Auth(deps.Cookies)

	healthH := handler.NewHealthHandler(deps.Checks, log)
	sessionH := handler.NewSessionHandler(deps.Auth, deps.TwoFactor, deps.Cookies, log)
	twoFactorH := handler.NewTwoFactorHandler(deps.TwoFactor, deps.Cookies, log)
	adminH := handler.NewAdminHandler(deps.TwoFactor, deps.Policy, log)

	r.Get("/health-check/{action}", healthH.Ping)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.With(sensitiveRL.Limit).Post("/session", sessionH.Login)
		r.Get("/session", sessionH.Get)
		r.Delete("/session", sessionH.Logout)
		r.With(sensitiveRL.Limit).Post("/session/refresh", sessionH.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Get("/2fa", twoFactorH.Status)
			r.With(sensitiveRL.Limit).Post("/2fa/send", twoFactorH.Send)
			r.With(sensitiveRL.Limit).Post("/2fa/verify", twoFactorH.Verify)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireTwoFactor(deps.Policy, deps.Cookies))
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/admin/roles", adminH.ListRoles)
				r.Get("/admin/codes/{email}", adminH.CodeStatus)
				r.Delete("/admin/codes/{email}", adminH.InvalidateCode)
				r.Post("/admin/codes/{email}/reset", adminH.ResetAttempts)
			})
		})
	})

	if deps.Backend != nil {
		proxy := handler.NewBackendProxy(deps.Backend, backendPrefix, deps.Cookies, log)
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireTwoFactor(deps.Policy, deps.Cookies))
			r.Handle(backendPrefix+"/*", proxy)
		})
	}

	return r
}
