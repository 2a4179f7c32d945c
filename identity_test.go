package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/swfrench/kvsession/config"
	"github.com/swfrench/kvsession/internal/token"
)

type fakeCookies struct {
	values map[string][]byte
	opts   map[string]CookieOptions
	sets   int
}

func newFakeCookies() *fakeCookies {
	return &fakeCookies{
		values: make(map[string][]byte),
		opts:   make(map[string]CookieOptions),
	}
}

func (fc *fakeCookies) SignedCookie(name string) ([]byte, bool) {
	v, ok := fc.values[name]
	return v, ok
}

func (fc *fakeCookies) SetSignedCookie(name string, value []byte, opts CookieOptions) {
	fc.sets++
	fc.values[name] = value
	fc.opts[name] = opts
}

func TestCookieResolverMintsOnce(t *testing.T) {
	fc := newFakeCookies()
	opts := CookieOptions{Path: "/", ExpiresDays: 7}
	cr := NewCookieResolver(fc, "", opts)
	minted := 0
	cr.newKey = func() string {
		minted++
		return "c0ffee"
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		key, err := cr.ResolveKey(ctx)
		if err != nil {
			t.Fatalf("ResolveKey() returned unexpected error: %v", err)
		}
		if key != "c0ffee" {
			t.Errorf("ResolveKey() = %q, want %q", key, "c0ffee")
		}
	}
	if minted != 1 || fc.sets != 1 {
		t.Errorf("ResolveKey() minted %d keys and set %d cookies, want 1 and 1", minted, fc.sets)
	}
	if got := string(fc.values[DefaultKeyCookieName]); got != "c0ffee" {
		t.Errorf("Cookie %q = %q, want %q", DefaultKeyCookieName, got, "c0ffee")
	}
	if diff := cmp.Diff(opts, fc.opts[DefaultKeyCookieName]); diff != "" {
		t.Errorf("Cookie set with incorrect options (+got, -want):\n%s", diff)
	}
}

func TestCookieResolverReusesCookie(t *testing.T) {
	fc := newFakeCookies()
	fc.values["sid"] = []byte("existing")
	cr := NewCookieResolver(fc, "sid", CookieOptions{})
	cr.newKey = func() string {
		t.Error("ResolveKey() unexpectedly minted a key")
		return "unexpected"
	}
	key, err := cr.ResolveKey(context.Background())
	if err != nil {
		t.Fatalf("ResolveKey() returned unexpected error: %v", err)
	}
	if key != "existing" {
		t.Errorf("ResolveKey() = %q, want %q", key, "existing")
	}
	if fc.sets != 0 {
		t.Errorf("ResolveKey() set %d cookies, want 0", fc.sets)
	}
}

func TestCookieResolverReplacesEmptyCookie(t *testing.T) {
	fc := newFakeCookies()
	fc.values["sid"] = []byte{}
	cr := NewCookieResolver(fc, "sid", CookieOptions{})
	cr.newKey = func() string { return "fresh" }
	key, err := cr.ResolveKey(context.Background())
	if err != nil {
		t.Fatalf("ResolveKey() returned unexpected error: %v", err)
	}
	if key != "fresh" || fc.sets != 1 {
		t.Errorf("ResolveKey() = %q with %d cookies set, want %q with 1", key, fc.sets, "fresh")
	}
}

func TestCookieResolverDefaultKeys(t *testing.T) {
	cr := NewCookieResolver(newFakeCookies(), "", CookieOptions{})
	k1, err := cr.ResolveKey(context.Background())
	if err != nil {
		t.Fatalf("ResolveKey() returned unexpected error: %v", err)
	}
	k2, err := NewCookieResolver(newFakeCookies(), "", CookieOptions{}).ResolveKey(context.Background())
	if err != nil {
		t.Fatalf("ResolveKey() returned unexpected error: %v", err)
	}
	if k1 == k2 {
		t.Errorf("ResolveKey() minted the same key twice: %q", k1)
	}
	if len(k1) != 36 {
		t.Errorf("ResolveKey() minted key %q, want a UUID string", k1)
	}
}

func TestHTTPCookiesSet(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name        string
		opts        CookieOptions
		wantExpires time.Time
	}{
		{
			name: "browser session",
			opts: CookieOptions{},
		},
		{
			name:        "expires days",
			opts:        CookieOptions{ExpiresDays: 30},
			wantExpires: now.AddDate(0, 0, 30),
		},
		{
			name:        "absolute expiry wins",
			opts:        CookieOptions{Expires: now.Add(time.Hour), ExpiresDays: 30},
			wantExpires: now.Add(time.Hour),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			hc := NewHTTPCookies(rec, req, []byte("secret"), 0)
			hc.Clock = func() time.Time { return now }
			hc.SetSignedCookie("sid", []byte("value"), tc.opts)
			cookies := rec.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("SetSignedCookie() set %d cookies, want 1", len(cookies))
			}
			c := cookies[0]
			if !c.Expires.Equal(tc.wantExpires) {
				t.Errorf("Cookie expires at %v, want %v", c.Expires, tc.wantExpires)
			}
			if !strings.HasPrefix(c.Value, token.Version+"!") {
				t.Errorf("Cookie value %q is not a %s token", c.Value, token.Version)
			}
		})
	}
}

func TestHTTPCookiesAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	hc := NewHTTPCookies(rec, req, []byte("secret"), 0)
	hc.SetSignedCookie("sid", []byte("value"), CookieOptions{
		Path:     "/app",
		Domain:   "example.com",
		Secure:   true,
		HTTPOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	c := rec.Result().Cookies()[0]
	got := []any{c.Path, c.Domain, c.Secure, c.HttpOnly, c.SameSite}
	want := []any{"/app", "example.com", true, true, http.SameSiteStrictMode}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Cookie has incorrect attributes (+got, -want):\n%s", diff)
	}
}

func TestHTTPCookiesRoundTrip(t *testing.T) {
	key := []byte("secret")
	rec := httptest.NewRecorder()
	NewHTTPCookies(rec, httptest.NewRequest(http.MethodGet, "/", nil), key, 0).
		SetSignedCookie("sid", []byte("value"), CookieOptions{})
	signed := rec.Result().Cookies()[0].Value

	testCases := []struct {
		name   string
		value  string
		key    []byte
		want   []byte
		wantOK bool
	}{
		{name: "valid", value: signed, key: key, want: []byte("value"), wantOK: true},
		{name: "wrong key", value: signed, key: []byte("other"), wantOK: false},
		{name: "signed for another name", value: token.NewSigner(key).Sign("other", []byte("value")), key: key, wantOK: false},
		{name: "unsigned", value: "value", key: key, wantOK: false},
		{name: "absent", key: key, wantOK: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.value != "" {
				req.AddCookie(&http.Cookie{Name: "sid", Value: tc.value})
			}
			got, ok := NewHTTPCookies(httptest.NewRecorder(), req, tc.key, 0).SignedCookie("sid")
			if ok != tc.wantOK {
				t.Fatalf("SignedCookie() ok = %v, want %v", ok, tc.wantOK)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("SignedCookie() returned incorrect value (+got, -want):\n%s", diff)
			}
		})
	}
}

func TestCookieOptionsFromConfig(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := CookieOptionsFromConfig(config.Cookies{
		Expires:     expires,
		ExpiresDays: 3,
		Path:        "/",
		Domain:      "example.com",
		Secure:      true,
		HTTPOnly:    true,
		SameSite:    "Lax",
	})
	if err != nil {
		t.Fatalf("CookieOptionsFromConfig() returned unexpected error: %v", err)
	}
	want := CookieOptions{
		Expires:     expires,
		ExpiresDays: 3,
		Path:        "/",
		Domain:      "example.com",
		Secure:      true,
		HTTPOnly:    true,
		SameSite:    http.SameSiteLaxMode,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CookieOptionsFromConfig() returned incorrect options (+got, -want):\n%s", diff)
	}
	if _, err := CookieOptionsFromConfig(config.Cookies{SameSite: "sideways"}); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("CookieOptionsFromConfig() returned unexpected error - got: %v, want: %v", err, config.ErrConfiguration)
	}
}
