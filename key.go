package tagcache

import (
	"fmt"
	"strings"

	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/internal/util"
)

// Key identifies one cache entry: "<resource>:<hash of operation and args>".
type Key string

// Resource returns the resource part of the key.
func (k Key) Resource() string {
	if i := strings.LastIndexByte(string(k), ':'); i >= 0 {
		return string(k[:i])
	}
	return string(k)
}

// Query is what a consumer subscribes to.
type Query struct {
	Resource  string
	Operation string
	Args      Args
}

// Core deterministic CBOR sorts map keys and encodes every integer width the
// same way, so {"page":1,"role":"user"} and {"role":"user","page":int64(1)}
// produce identical bytes.
var argsCodec = codec.MustCBOR[Args](true)

// DeriveKey returns the Key for q. Operation defaults to OpList.
func DeriveKey(q Query) (Key, error) {
	if q.Resource == "" {
		return "", &ValidationError{Operation: q.Operation, Reason: "resource is required"}
	}
	if strings.ContainsRune(q.Resource, ':') {
		return "", &ValidationError{Resource: q.Resource, Operation: q.Operation, Reason: "resource must not contain ':'"}
	}
	op := q.Operation
	if op == "" {
		op = OpList
	}
	var args []byte
	if len(q.Args) > 0 {
		b, err := argsCodec.Encode(q.Args)
		if err != nil {
			return "", &ValidationError{Resource: q.Resource, Operation: op, Reason: "args not serializable", Err: err}
		}
		args = b
	}
	return Key(util.HashKey(q.Resource, []byte(op), args)), nil
}

// Tag labels cache entries that are invalidated together.
type Tag string

// ListTag labels every list query of resource; invalidate it when membership changes.
func ListTag(resource string) Tag { return Tag(resource + ":LIST") }

// IDTag labels every entry holding record id of resource.
func IDTag(resource string, id any) Tag { return Tag(fmt.Sprintf("%s:%v", resource, id)) }
