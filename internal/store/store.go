package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MaxInValues is the remote-enforced cap on multi-value filter sets. Larger
// id sets must be chunked into one query per slice of at most this size.
const MaxInValues = 10

// Op enumerates the filter predicates the store supports.
type Op string

const (
	OpEqual            Op = "=="
	OpArrayContains    Op = "array-contains"
	OpArrayContainsAny Op = "array-contains-any"
	OpIn               Op = "in"
)

// Filter is a single predicate on a document field.
type Filter struct {
	Field  string        `json:"field"`
	Op     Op            `json:"op"`
	Value  interface{}   `json:"value,omitempty"`
	Values []interface{} `json:"values,omitempty"`
}

// Eq matches documents whose field equals value.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// ArrayContains matches documents whose array field contains value.
func ArrayContains(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

// ArrayContainsAny matches documents whose array field contains any of values.
func ArrayContainsAny(field string, values []string) Filter {
	return Filter{Field: field, Op: OpArrayContainsAny, Values: toAny(values)}
}

// In matches documents whose field equals any of values.
func In(field string, values []string) Filter {
	return Filter{Field: field, Op: OpIn, Values: toAny(values)}
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Cursor is an opaque position after the last document of a fetched page.
type Cursor struct {
	OrderValue time.Time `json:"order_value"`
	ID         string    `json:"id"`
}

// Query describes a filtered, ordered, limited collection read.
type Query struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
	OrderBy    string   `json:"order_by,omitempty"`
	Desc       bool     `json:"desc,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	StartAfter *Cursor  `json:"start_after,omitempty"`
}

// Digest returns a stable key identifying the query, used to address the
// cache tier. Cursored queries share the digest of their first page on
// purpose: only first pages are served from cache.
func (q Query) Digest() string {
	base := q
	base.StartAfter = nil
	raw, err := json.Marshal(base)
	if err != nil {
		return fmt.Sprintf("%s:%d", q.Collection, q.Limit)
	}
	sum := sha256.Sum256(raw)
	return q.Collection + ":" + hex.EncodeToString(sum[:8])
}

// Scope hints where a query should execute.
type Scope int

const (
	// ScopeDefault lets the store pick its own strategy.
	ScopeDefault Scope = iota
	// ScopeCache restricts the read to the local cache tier.
	ScopeCache
	// ScopeNetwork bypasses the cache tier entirely.
	ScopeNetwork
)

// Document is a raw record as returned by the store.
type Document struct {
	Collection string                 `json:"collection"`
	ID         string                 `json:"id"`
	Data       map[string]interface{} `json:"data"`
	CreatedAt  time.Time              `json:"created_at"`
}

// WriteKind enumerates batched write operations.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteMerge
	WriteIncrement
	WriteDelete
)

// WriteOp is one element of an atomic batch.
type WriteOp struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       map[string]interface{}
	Field      string
	Delta      float64
}

// Set replaces the full document.
func Set(collection, id string, data map[string]interface{}) WriteOp {
	return WriteOp{Kind: WriteSet, Collection: collection, ID: id, Data: data}
}

// Merge upserts only the provided fields, leaving the rest untouched. This
// is the only legal way to mutate shared maps such as the achievement
// unlocked map; full-document overwrites lose concurrent updates.
func Merge(collection, id string, data map[string]interface{}) WriteOp {
	return WriteOp{Kind: WriteMerge, Collection: collection, ID: id, Data: data}
}

// Increment atomically adds delta to a numeric field.
func Increment(collection, id, field string, delta float64) WriteOp {
	return WriteOp{Kind: WriteIncrement, Collection: collection, ID: id, Field: field, Delta: delta}
}

// Delete removes the document.
func Delete(collection, id string) WriteOp {
	return WriteOp{Kind: WriteDelete, Collection: collection, ID: id}
}

// Subscription is a live query producing full result snapshots. Updates
// delivers a fresh snapshot whenever the underlying data may have changed;
// Close tears the listener down and closes the channel.
type Subscription interface {
	Updates() <-chan []Document
	Close()
}

// Tx exposes read-then-write atomicity inside RunTransaction.
type Tx interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error
	Merge(ctx context.Context, collection, id string, data map[string]interface{}) error
	Increment(ctx context.Context, collection, id, field string, delta float64) error
}

// Querier executes collection reads with an execution-scope hint.
type Querier interface {
	Query(ctx context.Context, q Query, scope Scope) ([]Document, error)
}

// Subscriber opens cancelable live queries.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query) (Subscription, error)
}

// Transactor runs fn with read-then-write atomicity over the documents it
// touches. The transaction aborts and the fn's error surfaces unchanged.
type Transactor interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// BatchWriter applies ops atomically, with no partial application.
type BatchWriter interface {
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// Store is the full remote document store contract consumed by the sync
// layer.
type Store interface {
	Querier
	Subscriber
	Transactor
	BatchWriter
	Close() error
}
