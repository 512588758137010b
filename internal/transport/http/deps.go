package http

import (
	"net/url"

	"github.com/go-equity-auth/internal/application/auth"
	"github.com/go-equity-auth/internal/application/twofactor"
	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/transport/http/cookies"
	"github.com/go-equity-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-equity-auth/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// Deps holds the services and collaborators the router wires into handlers.
type Deps struct {
	Auth      auth.Service
	TwoFactor twofactor.Service
	Cookies   *cookies.Manager
	Policy    domain.TwoFactorPolicy
	Logger    *zap.Logger

	// Backend is the upstream proxied under /api/v1. Nil disables the proxy.
	Backend *url.URL
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies appmiddleware.TrustedProxies
	// Checks run on /health-check/ready, keyed by dependency name.
	Checks map[string]handler.Check
}
