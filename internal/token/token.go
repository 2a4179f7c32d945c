// Package token creates and verifies authenticated, timestamped cookie
// values.
//
// v1 tokens are defined by:
//   - MAC: HMAC-SHA256 over the cookie name, a NUL byte, and the token body
//   - Format:
//     <version>!<base64url payload>.<unix seconds>.<base64url MAC>
//     [<--        body (MAC'd with the name)      -->]
//
// Binding the cookie name into the MAC prevents a value minted for one cookie
// from being replayed under another.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Version is the version identifier prefix for tokens created by Signer.
const Version = "v1"

const (
	versionSeparator = "!"
	fieldSeparator   = "."
	// Length of a base64url-encoded 32 byte MAC.
	base64MACLen = 44
)

// DefaultMaxAge is the maximum token age accepted by Verify when the Signer
// does not set one.
const DefaultMaxAge = 31 * 24 * time.Hour

var (
	// ErrUnsupportedVersion indicates that the version identifier embedded in
	// the token string is not supported by this implementation.
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrBadToken indicates that the token string is structurally invalid.
	ErrBadToken = errors.New("bad token")
	// ErrInvalidToken indicates that the token string fails authenticity checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates that the token is authentic but older than the
	// accepted maximum age (or dated in the future).
	ErrExpiredToken = errors.New("expired token")
)

// Signer creates and verifies tokens with a fixed key. Multiple goroutines
// may use a given Signer concurrently.
type Signer struct {
	// Clock can be used to override measurement of time in tests.
	Clock func() time.Time
	// MaxAge is the maximum accepted token age.
	// Default if unspecified: DefaultMaxAge
	MaxAge time.Duration
	key    []byte
}

// NewSigner returns a new Signer using the provided key to compute token MACs.
func NewSigner(key []byte) *Signer {
	return &Signer{
		Clock: func() time.Time { return time.Now() },
		key:   key,
	}
}

func (s *Signer) mac(name, body string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return h.Sum(nil)
}

// Sign returns an authenticated token string binding value to the cookie
// name, timestamped with the current time.
func (s *Signer) Sign(name string, value []byte) string {
	body := Version + versionSeparator +
		base64.URLEncoding.EncodeToString(value) + fieldSeparator +
		strconv.FormatInt(s.Clock().Unix(), 10)
	return body + fieldSeparator + base64.URLEncoding.EncodeToString(s.mac(name, body))
}

// Verify checks the authenticity and age of token for the cookie name, and
// extracts the payload therein.
func (s *Signer) Verify(name, token string) ([]byte, error) {
	version, rest, ok := strings.Cut(token, versionSeparator)
	if !ok {
		return nil, fmt.Errorf("failed to parse version header from raw token: %w", ErrBadToken)
	}
	if version != Version {
		return nil, fmt.Errorf("failed to parse raw token (version %q): %w", version, ErrUnsupportedVersion)
	}
	fields := strings.Split(rest, fieldSeparator)
	if len(fields) != 3 {
		return nil, fmt.Errorf("failed to parse raw token (%d fields): %w", len(fields), ErrBadToken)
	}
	if len(fields[2]) != base64MACLen {
		return nil, fmt.Errorf("failed to parse raw token (incorrect MAC footer length): %w", ErrBadToken)
	}
	mac, err := base64.URLEncoding.DecodeString(fields[2])
	if err != nil {
		return nil, fmt.Errorf("failed to decode MAC footer (error: %v): %w", err, ErrBadToken)
	}
	body := token[:len(token)-len(fields[2])-len(fieldSeparator)]
	if !hmac.Equal(s.mac(name, body), mac) {
		return nil, fmt.Errorf("token MAC verification failed: %w", ErrInvalidToken)
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp (error: %v): %w", err, ErrBadToken)
	}
	maxAge := s.MaxAge
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}
	issued := time.Unix(ts, 0)
	now := s.Clock()
	if issued.After(now.Add(time.Minute)) || now.Sub(issued) > maxAge {
		return nil, fmt.Errorf("token issued at %v is outside the accepted window: %w", issued, ErrExpiredToken)
	}
	data, err := base64.URLEncoding.DecodeString(fields[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode data segment (error: %v): %w", err, ErrBadToken)
	}
	return data, nil
}
