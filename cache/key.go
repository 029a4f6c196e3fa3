package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/huykn/dataquery/types"
)

// KeyVersion is the first segment of every key. Bump it when the
// serialization of params changes so persisted entries are not misread.
const KeyVersion = "v1"

// Key namespaces.
const (
	namespaceData   = "data"
	namespaceCustom = "custom"
)

// Key identifies a cache entry. It is an ordered list of segments:
//
//	v1/data/<provider>/<resource>/<operation>[/<id>]/<params-json>
//	v1/custom/<method>/<url>/<config-json>
//
// Segments are path-escaped in the string form. Params are encoded as JSON:
// slices keep their order and map keys are sorted, so the same filters in a
// different order give a different key.
type Key []string

// DataKey builds the key of a resource request. Trailing parts are appended
// as segments: strings and IDs verbatim, anything else as JSON.
func DataKey(providerName, resource string, op types.Operation, parts ...any) Key {
	k := Key{KeyVersion, namespaceData, providerName, resource, string(op)}
	return append(k, encodeParts(parts)...)
}

// ResourcePrefix matches every key of resource on one provider.
func ResourcePrefix(providerName, resource string) Key {
	return Key{KeyVersion, namespaceData, providerName, resource}
}

// CustomKey builds the key of a custom request.
func CustomKey(method, url string, config any) Key {
	k := Key{KeyVersion, namespaceCustom, strings.ToLower(method), url}
	return append(k, encodeParts([]any{config})...)
}

func encodeParts(parts []any) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			out = append(out, v)
		case types.ID:
			out = append(out, string(v))
		default:
			b, err := json.Marshal(v)
			if err != nil {
				// Values that cannot be encoded still get a deterministic segment.
				b = []byte(strconv.Quote(fmt.Sprintf("%#v", v)))
			}
			out = append(out, string(b))
		}
	}
	return out
}

// String returns the stable serialized form of the key.
func (k Key) String() string {
	escaped := make([]string, len(k))
	for i, s := range k {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return nil, fmt.Errorf("empty cache key")
	}
	raw := strings.Split(s, "/")
	k := make(Key, len(raw))
	for i, seg := range raw {
		u, err := url.PathUnescape(seg)
		if err != nil {
			return nil, fmt.Errorf("invalid cache key %q: %w", s, err)
		}
		k[i] = u
	}
	return k, nil
}

// HasPrefix reports whether every segment of prefix equals the segment of k
// at the same position.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Hash returns the xxhash of the serialized key.
func (k Key) Hash() uint64 {
	return xxhash.Sum64String(k.String())
}

// Resource returns the resource segment of a data key.
func (k Key) Resource() string {
	if len(k) > 3 && k[1] == namespaceData {
		return k[3]
	}
	return ""
}

// Operation returns the operation segment of a data key.
func (k Key) Operation() types.Operation {
	switch {
	case len(k) > 4 && k[1] == namespaceData:
		return types.Operation(k[4])
	case len(k) > 1 && k[1] == namespaceCustom:
		return types.OperationCustom
	}
	return ""
}

func matchesAny(k Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if k.HasPrefix(p) {
			return true
		}
	}
	return false
}
