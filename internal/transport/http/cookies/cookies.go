// Package cookies owns the two session cookies: the signed session token and
// the two-factor-verified flag. Writes only affect later requests.
package cookies

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/go-equity-auth/internal/domain"
	jwtinfra "github.com/go-equity-auth/internal/infrastructure/jwt"
)

const (
	DefaultSessionName   = "session_token"
	DefaultTwoFactorName = "two_factor_verified"
	DefaultMaxAge        = 7 * 24 * time.Hour

	flagPrefix = "v2."
)

type Options struct {
	SessionName   string
	TwoFactorName string
	Path          string
	Domain        string
	MaxAge        time.Duration
	Secure        bool
	SameSite      http.SameSite
}

func (o Options) withDefaults() Options {
	if o.SessionName == "" {
		o.SessionName = DefaultSessionName
	}
	if o.TwoFactorName == "" {
		o.TwoFactorName = DefaultTwoFactorName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// FlagOptions override the manager's path and lifetime for one flag write.
// Zero values keep the manager defaults.
type FlagOptions struct {
	Path   string
	MaxAge time.Duration
}

// Verifier validates session tokens.
type Verifier interface {
	Verify(token string) (*jwtinfra.Claims, error)
}

// Manager reads and writes the session cookie set. The flag cookie holds an
// HMAC of the user id and the login session id, so it cannot be forged,
// carried across accounts or replayed into a later login.
type Manager struct {
	tokens Verifier
	key    []byte
	opts   Options
}

func NewManager(tokens Verifier, secret string, opts Options) *Manager {
	return &Manager{tokens: tokens, key: []byte(secret), opts: opts.withDefaults()}
}

func (m *Manager) Options() Options { return m.opts }

// Create stores token as the session cookie and clears any earlier flag.
func (m *Manager) Create(w http.ResponseWriter, token string) {
	http.SetCookie(w, m.cookie(m.opts.SessionName, token, m.opts.MaxAge))
	http.SetCookie(w, m.expired(m.opts.TwoFactorName))
}

// Refresh replaces the session cookie and leaves the flag untouched.
func (m *Manager) Refresh(w http.ResponseWriter, token string) {
	http.SetCookie(w, m.cookie(m.opts.SessionName, token, m.opts.MaxAge))
}

// Token returns the raw session cookie value, or "".
func (m *Manager) Token(r *http.Request) string {
	c, err := r.Cookie(m.opts.SessionName)
	if err != nil {
		return ""
	}
	return c.Value
}

// ReadServer verifies the session cookie. Missing, corrupt or expired
// tokens read as absent.
func (m *Manager) ReadServer(r *http.Request) (*domain.SessionPayload, bool) {
	return m.Session(m.Token(r))
}

// Session verifies a raw session token taken from any carrier.
func (m *Manager) Session(token string) (*domain.SessionPayload, bool) {
	if token == "" {
		return nil, false
	}
	claims, err := m.tokens.Verify(token)
	if err != nil {
		return nil, false
	}
	p := claims.SessionPayload
	return &p, true
}

// SetTwoFactorFlag writes the flag for sess, or clears it when value is
// false. Sessions without a session id cannot carry a flag.
func (m *Manager) SetTwoFactorFlag(w http.ResponseWriter, sess domain.SessionPayload, value bool, opts FlagOptions) {
	path := m.opts.Path
	if opts.Path != "" {
		path = opts.Path
	}
	if !value || len(m.key) == 0 || !bindable(sess) {
		c := m.expired(m.opts.TwoFactorName)
		c.Path = path
		http.SetCookie(w, c)
		return
	}
	maxAge := m.opts.MaxAge
	if opts.MaxAge > 0 {
		maxAge = opts.MaxAge
	}
	c := m.cookie(m.opts.TwoFactorName, m.flag(sess), maxAge)
	c.Path = path
	http.SetCookie(w, c)
}

// TwoFactorVerified reports whether the request carries a valid flag for
// the same user and login session as sess.
func (m *Manager) TwoFactorVerified(r *http.Request, sess domain.SessionPayload) bool {
	if len(m.key) == 0 || !bindable(sess) {
		return false
	}
	c, err := r.Cookie(m.opts.TwoFactorName)
	if err != nil || !strings.HasPrefix(c.Value, flagPrefix) {
		return false
	}
	return hmac.Equal([]byte(c.Value), []byte(m.flag(sess)))
}

func bindable(sess domain.SessionPayload) bool {
	return sess.UserID != "" && sess.SessionID != ""
}

// Destroy clears both cookies.
func (m *Manager) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, m.expired(m.opts.SessionName))
	http.SetCookie(w, m.expired(m.opts.TwoFactorName))
}

func (m *Manager) flag(sess domain.SessionPayload) string {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte("two-factor:" + sess.UserID + ":" + sess.SessionID))
	return flagPrefix + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.opts.Path,
		Domain:   m.opts.Domain,
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		Secure:   m.opts.Secure,
		HttpOnly: true,
		SameSite: m.opts.SameSite,
	}
}

func (m *Manager) expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     m.opts.Path,
		Domain:   m.opts.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   m.opts.Secure,
		HttpOnly: true,
		SameSite: m.opts.SameSite,
	}
}
