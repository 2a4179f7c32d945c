package codec_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/swfrench/kvsession/driver"
	"github.com/swfrench/kvsession/internal/codec"
)

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		doc  driver.Document
		want driver.Document
	}{
		{
			name: "nil",
			doc:  nil,
			want: driver.Document{},
		},
		{
			name: "scalars",
			doc: driver.Document{
				"s": "hello",
				"i": 42,
				"n": -7,
				"f": 1.5,
				"b": true,
				"z": nil,
			},
			want: driver.Document{
				"s": "hello",
				"i": int64(42),
				"n": int64(-7),
				"f": 1.5,
				"b": true,
				"z": nil,
			},
		},
		{
			name: "nested",
			doc: driver.Document{
				"user": map[string]any{
					"name":  "ada",
					"roles": []string{"admin", "dev"},
				},
			},
			want: driver.Document{
				"user": map[string]any{
					"name":  "ada",
					"roles": []any{"admin", "dev"},
				},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := codec.Encode(tc.doc)
			if err != nil {
				t.Fatalf("Encode() returned unexpected error: %v", err)
			}
			got, err := codec.Decode(raw)
			if err != nil {
				t.Fatalf("Decode() returned unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Decode() returned incorrect document (+got, -want):\n%s", diff)
			}
		})
	}
}

func TestRoundTripTime(t *testing.T) {
	testCases := []struct {
		name string
		when time.Time
	}{
		{name: "utc with nanoseconds", when: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)},
		{name: "offset", when: time.Date(2024, 6, 30, 23, 59, 59, 999, time.FixedZone("", 2*60*60))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := codec.Encode(driver.Document{"at": tc.when})
			if err != nil {
				t.Fatalf("Encode() returned unexpected error: %v", err)
			}
			doc, err := codec.Decode(raw)
			if err != nil {
				t.Fatalf("Decode() returned unexpected error: %v", err)
			}
			got, ok := doc["at"].(time.Time)
			if !ok {
				t.Fatalf("Decode() returned %T for a time, want time.Time", doc["at"])
			}
			if !got.Equal(tc.when) {
				t.Errorf("Decode() returned time %v, want %v", got, tc.when)
			}
			if _, gotOff := got.Zone(); gotOff != zoneOffset(tc.when) {
				t.Errorf("Decode() returned zone offset %d, want %d", gotOff, zoneOffset(tc.when))
			}
		})
	}
}

func zoneOffset(t time.Time) int {
	_, off := t.Zone()
	return off
}

func TestDecodeEmpty(t *testing.T) {
	got, err := codec.Decode(nil)
	if err != nil {
		t.Fatalf("Decode() returned unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Decode(nil) = %v, want empty document", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := codec.Decode([]byte("invalid")); !errors.Is(err, driver.ErrInvalidStoredDocument) {
		t.Errorf("Decode() returned unexpected error - got: %v, want: %v", err, driver.ErrInvalidStoredDocument)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	testCases := []struct {
		name string
		doc  driver.Document
	}{
		{name: "channel", doc: driver.Document{"ch": make(chan int)}},
		{name: "integer map keys", doc: driver.Document{"m": map[int]string{1: "a"}}},
		{name: "nested integer map keys", doc: driver.Document{"m": map[string]any{"inner": map[int]bool{1: true}}}},
		{name: "unsigned beyond int64", doc: driver.Document{"n": uint64(math.MaxUint64)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := codec.Encode(tc.doc); !errors.Is(err, driver.ErrInvalidDocument) {
				t.Errorf("Encode() returned unexpected error - got: %v, want: %v", err, driver.ErrInvalidDocument)
			}
		})
	}
}

func TestEncodeLargestSigned(t *testing.T) {
	raw, err := codec.Encode(driver.Document{"n": uint64(math.MaxInt64)})
	if err != nil {
		t.Fatalf("Encode() returned unexpected error: %v", err)
	}
	doc, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() returned unexpected error: %v", err)
	}
	if got, want := doc["n"], int64(math.MaxInt64); got != want {
		t.Errorf("Decode() returned %v (%T), want %v", got, got, want)
	}
}
