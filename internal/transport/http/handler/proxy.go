package handler

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-equity-auth/internal/transport/http/cookies"
	"go.uber.org/zap"
)

// NewBackendProxy forwards requests under prefix to target with the prefix
// stripped. The session cookie is replaced by a Bearer header and the
// two-factor flag never leaves the gateway.
func NewBackendProxy(target *url.URL, prefix string, cm *cookies.Manager, log *zap.Logger) http.Handler {
	opts := cm.Options()
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.URL.Path = joinPath(target.Path, strings.TrimPrefix(pr.In.URL.Path, prefix))
			pr.Out.URL.RawPath = ""

			tok := cm.Token(pr.In)
			pr.Out.Header.Del("Cookie")
			for _, c := range pr.In.Cookies() {
				if c.Name == opts.SessionName || c.Name == opts.TwoFactorName {
					continue
				}
				pr.Out.AddCookie(c)
			}
			if tok != "" {
				pr.Out.Header.Set("Authorization", "Bearer "+tok)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("backend proxy", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusBadGateway, "backend unavailable")
		},
	}
}

func joinPath(base, rest string) string {
	switch {
	case rest == "":
		if base == "" {
			return "/"
		}
		return base
	case strings.HasSuffix(base, "/") && strings.HasPrefix(rest, "/"):
		return base + rest[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(rest, "/"):
		return base + "/" + rest
	default:
		return base + rest
	}
}
