package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultKeyCookieName is the name of the cookie carrying the document key.
const DefaultKeyCookieName = "kvsession_id"

// KeyResolver provides the key identifying the caller's documents.
type KeyResolver interface {
	ResolveKey(ctx context.Context) (string, error)
}

// StaticKey is a KeyResolver always returning the same key, for ad-hoc use
// outside of a request (e.g., administrative tools, tests).
type StaticKey string

// ResolveKey returns k.
func (k StaticKey) ResolveKey(context.Context) (string, error) {
	return string(k), nil
}

// CookieOptions controls the attributes of the key cookie. When neither
// Expires nor ExpiresDays is set, the cookie expires when the browser session
// ends.
type CookieOptions struct {
	// Expires is an absolute expiration time. Takes precedence over
	// ExpiresDays.
	Expires time.Time
	// ExpiresDays sets expiration this many days from now.
	ExpiresDays int
	Path        string
	Domain      string
	Secure      bool
	HTTPOnly    bool
	SameSite    http.SameSite
}

// Cookies is the collaborator that reads and writes signed cookies on behalf
// of CookieResolver. See HTTPCookies for the net/http implementation.
type Cookies interface {
	// SignedCookie returns the verified value of the named cookie, or false if
	// the cookie is absent or fails verification.
	SignedCookie(name string) ([]byte, bool)
	// SetSignedCookie signs value and persists it under name.
	SetSignedCookie(name string, value []byte, opts CookieOptions)
}

// CookieResolver is a KeyResolver that reads the key from a signed cookie,
// minting (and persisting) a new random key when the cookie is absent.
//
// The resolved key is memoized: a CookieResolver is meant to live for one
// request. Multiple goroutines may use a given CookieResolver concurrently.
type CookieResolver struct {
	cookies Cookies
	name    string
	opts    CookieOptions
	// newKey can be overridden in tests.
	newKey func() string

	mu  sync.Mutex
	key string
}

// NewCookieResolver returns a new CookieResolver using the provided cookie
// collaborator. An empty name selects DefaultKeyCookieName.
func NewCookieResolver(c Cookies, name string, opts CookieOptions) *CookieResolver {
	if name == "" {
		name = DefaultKeyCookieName
	}
	return &CookieResolver{
		cookies: c,
		name:    name,
		opts:    opts,
		newKey:  uuid.NewString,
	}
}

// ResolveKey returns the key carried by the cookie, or mints and persists a
// new one.
func (cr *CookieResolver) ResolveKey(ctx context.Context) (string, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.key != "" {
		return cr.key, nil
	}
	if v, ok := cr.cookies.SignedCookie(cr.name); ok && len(v) > 0 {
		cr.key = string(v)
		return cr.key, nil
	}
	key := cr.newKey()
	cr.cookies.SetSignedCookie(cr.name, []byte(key), cr.opts)
	cr.key = key
	return key, nil
}
