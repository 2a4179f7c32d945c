package session

import (
	"context"
	"net/http"
	"time"

	"github.com/swfrench/kvsession/config"
	"github.com/swfrench/kvsession/internal/token"
)

// contextKey is the type used to represent keys identifying values stored in
// the request Context.
type contextKey string

const contextKeyHandles = contextKey("handles")

// Handles bundles the per-request document stores. Both share the request's
// key, but are backed by distinct namespaces.
type Handles struct {
	Session       *Manager
	Notifications *Notifications
	// Resolver is the request's key resolver, shared by both handles.
	Resolver *CookieResolver
}

// MiddlewareOptions represents tunable knobs that control the behavior of
// Middleware.
type MiddlewareOptions struct {
	// CookieName is the name of the key cookie.
	// Default if unspecified: DefaultKeyCookieName
	CookieName string
	// Cookie controls the attributes of the key cookie.
	// Default if unspecified: a browser-session cookie with no attributes.
	Cookie CookieOptions
	// MaxAge bounds the age of an accepted key cookie value.
	// Default if unspecified: 31 days
	MaxAge time.Duration
}

// Middleware attaches Handles to each request it wraps.
type Middleware struct {
	backend *Backend
	signer  *token.Signer
	name    string
	cookie  CookieOptions
}

// NewMiddleware returns a new Middleware serving documents from b, with key
// cookies authenticated with HMAC-SHA256 using the provided key. A nil opts
// selects defaults.
func NewMiddleware(b *Backend, key []byte, opts *MiddlewareOptions) *Middleware {
	if opts == nil {
		opts = &MiddlewareOptions{}
	}
	s := token.NewSigner(key)
	s.MaxAge = opts.MaxAge
	return &Middleware{backend: b, signer: s, name: opts.CookieName, cookie: opts.Cookie}
}

// NewMiddlewareFromConfig returns a new Middleware with cookie options taken
// from cfg.
func NewMiddlewareFromConfig(b *Backend, key []byte, cfg *config.Config) (*Middleware, error) {
	co, err := CookieOptionsFromConfig(cfg.Cookies)
	if err != nil {
		return nil, err
	}
	return NewMiddleware(b, key, &MiddlewareOptions{
		CookieName: cfg.Cookies.Name,
		Cookie:     co,
		MaxAge:     cfg.Cookies.MaxAge,
	}), nil
}

// Handles returns new Handles for the provided request and response. The key
// cookie is read (or set) only once a handle is first used.
func (m *Middleware) Handles(w http.ResponseWriter, r *http.Request) *Handles {
	cr := NewCookieResolver(newHTTPCookies(w, r, m.signer), m.name, m.cookie)
	return &Handles{
		Session:       m.backend.Sessions(cr),
		Notifications: m.backend.Notifications(cr),
		Resolver:      cr,
	}
}

// Manage is a chi-compatible middleware that stores Handles for the request
// in its Context (which can be retrieved via FromContext).
//
// Note: the key cookie is set lazily, so handlers must use a handle before
// writing the response headers if the request may be the first of a session.
func (m *Middleware) Manage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyHandles, m.Handles(w, r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the Handles stored in ctx by Manage, or nil if none.
func FromContext(ctx context.Context) *Handles {
	h, _ := ctx.Value(contextKeyHandles).(*Handles)
	return h
}
