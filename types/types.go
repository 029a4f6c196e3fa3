package types

import "fmt"

// ID identifies a record within a resource.
type ID string

// String returns the identifier as a string.
func (id ID) String() string {
	return string(id)
}

// IDOf converts an arbitrary identifier value (string, number) into an ID.
func IDOf(v any) ID {
	switch t := v.(type) {
	case nil:
		return ""
	case ID:
		return t
	case string:
		return ID(t)
	case float64:
		if t == float64(int64(t)) {
			return ID(fmt.Sprintf("%d", int64(t)))
		}
		return ID(fmt.Sprintf("%v", t))
	default:
		return ID(fmt.Sprintf("%v", t))
	}
}

// Record is a single row returned by a data provider.
type Record = map[string]any

// Meta is an opaque key-value bag passed through to data providers.
type Meta map[string]any

// Operation names the kind of request issued against a resource.
type Operation string

// Read operations.
const (
	OperationList   Operation = "list"
	OperationOne    Operation = "one"
	OperationMany   Operation = "many"
	OperationCustom Operation = "custom"
)

// Mutation operations.
const (
	OperationCreate     Operation = "create"
	OperationUpdate     Operation = "update"
	OperationDeleteOne  Operation = "deleteOne"
	OperationDeleteMany Operation = "deleteMany"
)

// IsMutation reports whether the operation writes data.
func (o Operation) IsMutation() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDeleteOne, OperationDeleteMany:
		return true
	}
	return false
}

// MutationDescriptor describes what a successful write changed. It is built
// when a mutation resolves and consumed immediately to drive invalidation.
type MutationDescriptor struct {
	Resource         string
	DataProviderName string
	Operation        Operation
	AffectedIDs      []ID
	// Invalidates holds serialized cache-key prefixes.
	Invalidates []string
}

// Action is a synchronization action carried by an InvalidationEvent.
type Action string

// Action constants for cache synchronization.
const (
	Invalidate Action = "invalidate"
	Remove     Action = "remove"
	Clear      Action = "clear"
)

// InvalidationEvent represents a cache synchronization event exchanged
// between processes sharing one backend.
type InvalidationEvent struct {
	Sender   string   `json:"sender"`
	Action   Action   `json:"action"`
	Prefixes []string `json:"prefixes,omitempty"` // serialized cache-key prefixes
}
