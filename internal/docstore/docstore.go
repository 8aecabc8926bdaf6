// Package docstore defines the document store capability the engine is
// built on: JSON documents grouped into collections, store-assigned keys,
// server-assigned write timestamps, and live-query subscriptions.
//
// Two embedded backends implement it: sqlitestore and badgerstore. Both
// share the predicate matcher and ordering rules defined here, so the
// engine behaves identically regardless of which one is configured.
package docstore

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names used by the engine.
const (
	Users          = "users"
	Chats          = "chats"
	Messages       = "messages"
	FriendRequests = "friendRequests"
)

// ServerTimestamp is a sentinel field value. Backends replace it with the
// store-assigned write timestamp during Create and Update, so callers can
// request a server clock without ever holding one.
const ServerTimestamp = "__serverTimestamp__"

// ReplaceSentinels substitutes every ServerTimestamp occurrence in a
// decoded JSON value with ts. Shared by the backends.
func ReplaceSentinels(v any, ts time.Time) any {
	switch x := v.(type) {
	case string:
		if x == ServerTimestamp {
			return ts.Format(time.RFC3339Nano)
		}
	case map[string]any:
		for k, el := range x {
			x[k] = ReplaceSentinels(el, ts)
		}
	case []any:
		for i, el := range x {
			x[i] = ReplaceSentinels(el, ts)
		}
	}
	return v
}

// Doc is a stored document. Data holds the JSON body; the store assigns
// ID and Timestamp at creation and never lets callers supply either.
type Doc struct {
	ID         string
	Collection string
	Timestamp  time.Time
	Data       []byte
}

// Decode unmarshals the document body into v.
func (d Doc) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// value decodes the body into a generic map for predicate evaluation.
func (d Doc) value() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(d.Data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type Op string

const (
	OpEq            Op = "=="
	OpNeq           Op = "!="
	OpGt            Op = ">"
	OpLt            Op = "<"
	OpArrayContains Op = "array-contains"
)

// Cond is a single predicate on a document field. Field may be a dotted
// path into nested objects, e.g. "lastMessage.timestamp".
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from a collection. A nil Where matches all.
// OrderBy is a dotted field path; documents missing the field sort after
// all documents that have it. Equal values tie-break by document ID
// ascending, so ordering is always deterministic.
type Query struct {
	Where   []Cond
	OrderBy string
	Desc    bool
}

func Where(field string, op Op, value any) Query {
	return Query{Where: []Cond{{Field: field, Op: op, Value: value}}}
}

// Snapshot is a point-in-time ordered view of a live query. Seq increases
// monotonically per subscription: consumers must drop any snapshot whose
// Seq is lower than one already applied.
type Snapshot struct {
	Seq  uint64
	Docs []Doc
}

// Subscription is a live query handle. Cancel is synchronous: once it
// returns, nothing more is delivered on Snapshots and the channel is
// closed. Failing to cancel leaks a watcher in the store.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Cancel()
}

// Store is the document store capability. Implementations assign keys and
// write timestamps on Create; callers never supply an ordering-relevant
// clock of their own.
type Store interface {
	// Get returns the document with the given key, or a NOT_FOUND error.
	Get(ctx context.Context, collection, id string) (Doc, error)

	// Query returns all matching documents, ordered per the query.
	Query(ctx context.Context, collection string, q Query) ([]Doc, error)

	// Create stores v as a new document and returns it with the assigned
	// key and server timestamp.
	Create(ctx context.Context, collection string, v any) (Doc, error)

	// Update merges fields into an existing document. Missing documents
	// return a NOT_FOUND error. A nil value deletes the field.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Subscribe establishes a live query. The first snapshot reflects the
	// current state and is delivered as soon as the consumer reads it;
	// later ones follow every change to the collection. The subscription
	// stops when Cancel is called or ctx is done.
	Subscribe(ctx context.Context, collection string, q Query) (Subscription, error)

	Close() error
}
