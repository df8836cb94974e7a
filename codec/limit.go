package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Limit.Decode for payloads over MaxDecode.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit caps the size of payloads handed to Inner.Decode. Encode is
// forwarded unchanged. MaxDecode <= 0 disables the check.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
