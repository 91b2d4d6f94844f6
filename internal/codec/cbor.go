// Package codec is the single binary encoding used for manifests, remote
// API bodies and peer messages.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// manifest always produces the same bytes, and therefore the same hash.
var encMode cbor.EncMode

// decMode ignores unknown fields. Maps decoded into any-typed targets use
// string keys.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an undecoded CBOR value, used to defer decoding of
// tagged-union payloads until the variant is known.
type RawMessage = cbor.RawMessage

// Major types of the first byte of an encoded item.
const (
	MajorTypeByteString = 2
	MajorTypeTextString = 3
	MajorTypeMap        = 5
)

// MajorType returns the CBOR major type of the first item in data, or -1
// when data is empty.
func MajorType(data []byte) int {
	if len(data) == 0 {
		return -1
	}
	return int(data[0] >> 5)
}
