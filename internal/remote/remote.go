// Package remote defines the document-collection service the daemon syncs
// against: filtered live queries with continuous change notifications, plus
// one-shot writes. The concrete client lives in client.go; tests and the
// binding layer depend only on the Source interface.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable indicates the remote service could not be reached.
var ErrUnavailable = errors.New("remote service unavailable")

// Document is a single record in a remote collection. Data holds the raw
// field set; consumers decode it into their own types.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Op is a query filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Where is one filter clause of a query.
type Where struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value string `json:"value"`
}

// Query describes a filtered, ordered live query over a named collection.
type Query struct {
	Collection string  `json:"collection"`
	Where      []Where `json:"where,omitempty"`
	OrderBy    string  `json:"orderBy,omitempty"`
	Descending bool    `json:"descending,omitempty"`
	Limit      int     `json:"limit,omitempty"`
}

// Patch is a partial update of a document. SetAdd appends a value to a
// set-valued field only if absent (used for group membership joins).
type Patch struct {
	Set    map[string]any `json:"set,omitempty"`
	SetAdd map[string]any `json:"setAdd,omitempty"`
}

// UpdateFunc receives the full current matching set on every change.
type UpdateFunc func(docs []Document)

// ErrorFunc receives subscription failures.
type ErrorFunc func(err error)

// Subscription is a handle to a live query. Close is idempotent.
type Subscription interface {
	Close()
}

// Source is the remote collection service consumed by sync bindings.
type Source interface {
	// Subscribe opens a live query. onUpdate is called with the full current
	// matching set on every change; onError on failure. Callbacks are never
	// invoked synchronously from Subscribe itself. The subscription stays
	// open until Close or ctx cancellation.
	Subscribe(ctx context.Context, q Query, onUpdate UpdateFunc, onError ErrorFunc) (Subscription, error)

	// Insert appends a new document to a collection and returns the
	// server-assigned id.
	Insert(ctx context.Context, collection string, data any) (string, error)

	// Update applies a partial update to a document by id.
	Update(ctx context.Context, collection, id string, patch Patch) error
}
