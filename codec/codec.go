// Package codec provides the serializers used for request bodies, response
// payloads and cache key derivation.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Content types for the body codecs the transport can send.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
	ContentTypeCBOR    = "application/cbor"
)

// ForBody returns the request body codec registered under name and its
// content type. The empty name selects JSON.
func ForBody(name string) (Codec[any], string, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON[any]{}, ContentTypeJSON, nil
	case "msgpack":
		return Msgpack[any]{}, ContentTypeMsgpack, nil
	case "cbor":
		c, err := NewCBOR[any](false)
		if err != nil {
			return nil, "", err
		}
		return c, ContentTypeCBOR, nil
	default:
		return nil, "", fmt.Errorf("codec: unknown body encoding %q", name)
	}
}
