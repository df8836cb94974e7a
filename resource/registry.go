package resource

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/unkn0wn-root/tagcache"
	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/transport"
)

// DefaultMaxPayload caps the data part of one response.
const DefaultMaxPayload = 4 << 20

type kind struct {
	decode func(operation string, raw []byte) (any, error)
	tags   tagcache.TagFunc
}

// Registry narrows raw response data into the typed payload of each
// resource and knows which tags a query result carries. It implements
// transport.Decoder.
type Registry struct {
	maxPayload int
	kinds      map[string]kind
}

var _ transport.Decoder = (*Registry)(nil)

// NewRegistry returns an empty registry; maxPayload <= 0 selects DefaultMaxPayload.
func NewRegistry(maxPayload int) *Registry {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Registry{maxPayload: maxPayload, kinds: make(map[string]kind)}
}

// Default returns a registry with every console resource registered.
func Default(maxPayload int) *Registry {
	r := NewRegistry(maxPayload)
	Register[Ad](r, Ads)
	Register[Provider](r, Providers)
	Register[Customer](r, Customers)
	Register[FAQ](r, FAQs)
	Register[CMSDocument](r, CMS)
	Register[Transaction](r, Transactions)
	Register[Notification](r, Notifications)
	Register[Bid](r, Bids)
	Register[Order](r, Orders)
	Register[Discount](r, Discounts)
	return r
}

// Register binds resource to T: list operations decode to []T, every other
// operation to T (scalar data decodes to nil). Query results are tagged with
// ListTags.
func Register[T Record](r *Registry, resource string) {
	list := codec.Limit[[]T]{Inner: codec.JSON[[]T]{}, MaxDecode: r.maxPayload}
	one := codec.Limit[T]{Inner: codec.JSON[T]{}, MaxDecode: r.maxPayload}
	r.kinds[resource] = kind{
		decode: func(operation string, raw []byte) (any, error) {
			shape := gjson.ParseBytes(raw)
			if operation == tagcache.OpList {
				if !shape.IsArray() {
					return nil, fmt.Errorf("%s.%s: want an array, got %s", resource, operation, shape.Type)
				}
				return list.Decode(raw)
			}
			switch {
			case shape.IsObject():
				return one.Decode(raw)
			case shape.IsArray():
				return nil, fmt.Errorf("%s.%s: want an object, got an array", resource, operation)
			}
			// writes often answer with a bare status value; there is no record to narrow
			return nil, nil
		},
		tags: ListTags[T](resource),
	}
}

// Decode implements transport.Decoder. Responses without data decode to nil.
func (r *Registry) Decode(resource, operation string, raw []byte) (any, error) {
	k, ok := r.kinds[resource]
	if !ok {
		return nil, fmt.Errorf("no payload type registered for %q", resource)
	}
	if raw == nil {
		return nil, nil
	}
	return k.decode(operation, raw)
}

// Tags returns the TagFunc of every registered resource, for tagcache.Options.Tags.
func (r *Registry) Tags() map[string]tagcache.TagFunc {
	out := make(map[string]tagcache.TagFunc, len(r.kinds))
	for name, k := range r.kinds {
		out[name] = k.tags
	}
	return out
}

// Names lists the registered resources, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
