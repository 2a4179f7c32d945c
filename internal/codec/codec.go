// Package codec serializes documents to and from CBOR.
//
// Decoded documents use map[string]any for nested maps, []any for arrays,
// int64 for integers, float64 for floating point values and time.Time for
// times (tagged RFC 3339 strings, so nanoseconds and offsets survive), so that
// values come back in a predictable shape regardless of backend.
//
// Encode only accepts documents that Decode can read back: a document whose
// stored form could not be decoded would lock its key until it expired.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/swfrench/kvsession/driver"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TimeTag = cbor.EncTagRequired
	encMode, err = opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid CBOR encoding options: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
		TimeTagToAny:   cbor.TimeTagToTime,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid CBOR decoding options: %v", err))
	}
}

// Encode serializes doc. A nil document encodes as an empty map. Documents
// holding values that do not decode (e.g., maps with non-string keys, or
// unsigned integers beyond the int64 range) are rejected.
func Encode(doc driver.Document) ([]byte, error) {
	if doc == nil {
		doc = driver.Document{}
	}
	b, err := encMode.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document (error: %v): %w", err, driver.ErrInvalidDocument)
	}
	var m map[string]any
	if err := decMode.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("document would not decode (error: %v): %w", err, driver.ErrInvalidDocument)
	}
	return b, nil
}

// Decode deserializes raw into a document. Empty input decodes to an empty
// document.
func Decode(raw []byte) (driver.Document, error) {
	doc := driver.Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	var m map[string]any
	if err := decMode.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode document (error: %v): %w", err, driver.ErrInvalidStoredDocument)
	}
	for k, v := range m {
		doc[k] = v
	}
	return doc, nil
}
