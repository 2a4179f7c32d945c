package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/swfrench/kvsession/config"
	"github.com/swfrench/kvsession/internal/token"
	"golang.org/x/exp/slog"
)

// HTTPCookies implements Cookies over a single request/response pair. Values
// are authenticated with HMAC-SHA256, bound to the cookie name, and rejected
// once older than the signer's maximum age.
type HTTPCookies struct {
	// Clock can be used to override measurement of time in tests.
	Clock  func() time.Time
	w      http.ResponseWriter
	r      *http.Request
	signer *token.Signer
}

func newHTTPCookies(w http.ResponseWriter, r *http.Request, signer *token.Signer) *HTTPCookies {
	return &HTTPCookies{
		Clock:  func() time.Time { return time.Now() },
		w:      w,
		r:      r,
		signer: signer,
	}
}

// NewHTTPCookies returns a new HTTPCookies for the provided request and
// response, authenticating values with key. A zero maxAge selects the default
// (31 days).
func NewHTTPCookies(w http.ResponseWriter, r *http.Request, key []byte, maxAge time.Duration) *HTTPCookies {
	s := token.NewSigner(key)
	s.MaxAge = maxAge
	return newHTTPCookies(w, r, s)
}

// SignedCookie returns the verified value of the named request cookie.
func (hc *HTTPCookies) SignedCookie(name string) ([]byte, bool) {
	c, err := hc.r.Cookie(name)
	if err != nil {
		return nil, false
	}
	v, err := hc.signer.Verify(name, c.Value)
	if err != nil {
		// Expired or tampered cookies are replaced by the caller, so this is
		// not an error for the request.
		slog.Debug("Ignoring unverifiable cookie", "name", name, "error", err)
		return nil, false
	}
	return v, true
}

// SetSignedCookie signs value and adds the cookie to the response.
func (hc *HTTPCookies) SetSignedCookie(name string, value []byte, opts CookieOptions) {
	c := &http.Cookie{
		Name:     name,
		Value:    hc.signer.Sign(name, value),
		Path:     opts.Path,
		Domain:   opts.Domain,
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: opts.SameSite,
	}
	switch {
	case !opts.Expires.IsZero():
		c.Expires = opts.Expires
	case opts.ExpiresDays > 0:
		c.Expires = hc.Clock().AddDate(0, 0, opts.ExpiresDays)
	}
	http.SetCookie(hc.w, c)
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("unrecognized SameSite mode %q: %w", s, config.ErrConfiguration)
}

// CookieOptionsFromConfig converts configured cookie settings to
// CookieOptions.
func CookieOptionsFromConfig(c config.Cookies) (CookieOptions, error) {
	ss, err := parseSameSite(c.SameSite)
	if err != nil {
		return CookieOptions{}, err
	}
	return CookieOptions{
		Expires:     c.Expires,
		ExpiresDays: c.ExpiresDays,
		Path:        c.Path,
		Domain:      c.Domain,
		Secure:      c.Secure,
		HTTPOnly:    c.HTTPOnly,
		SameSite:    ss,
	}, nil
}
