package testutil

import (
	"encoding/hex"
	"testing"
)

// MustDecodeKey decodes a hex-encoded signing key, as accepted by the demo
// server's --secret flag.
func MustDecodeKey(t *testing.T, encoded string) []byte {
	t.Helper()
	key, err := hex.DecodeString(encoded)
	if err != nil {
		t.Fatalf("Unexpected error decoding key %q: %v", encoded, err)
	}
	return key
}
