// Package docstore is the document store access layer. Services talk to a
// Store; the memory, sql and firestore backends share query and field
// operator semantics.
package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/cinesync/backend/internal/errors"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = apierrors.New(apierrors.ErrNotFound, "document not found")
	// ErrAlreadyExists is returned by Create when the document exists
	ErrAlreadyExists = apierrors.New(apierrors.ErrAlreadyExists, "document already exists")
	// ErrTxConflict is returned when a transaction keeps losing to concurrent writers
	ErrTxConflict = apierrors.New(apierrors.ErrConflict, "transaction conflict, retries exhausted")
	// ErrInvalidArgument is returned for malformed queries, refs and field values
	ErrInvalidArgument = apierrors.New(apierrors.ErrBadRequest, "invalid document store argument")
)

const maxTxAttempts = 5

// DocRef addresses a single document. Collection may be a nested path such as
// "reviews/abc/comments".
type DocRef struct {
	Collection string
	ID         string
}

// Doc builds a reference from a collection path and a document id
func Doc(collection, id string) DocRef {
	return DocRef{Collection: collection, ID: id}
}

// ParseRef splits a full document path ("users/u1" or
// "reviews/r1/comments/c1") into a DocRef.
func ParseRef(path string) (DocRef, error) {
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return DocRef{}, ErrInvalidArgument
	}
	for _, p := range parts {
		if p == "" {
			return DocRef{}, ErrInvalidArgument
		}
	}
	return DocRef{
		Collection: strings.Join(parts[:len(parts)-1], "/"),
		ID:         parts[len(parts)-1],
	}, nil
}

// Path returns the full slash separated document path
func (r DocRef) Path() string {
	return r.Collection + "/" + r.ID
}

// Sub returns the path of a subcollection under this document
func (r DocRef) Sub(name string) string {
	return r.Path() + "/" + name
}

// Root returns the top level collection name ("reviews" for "reviews/r1/comments")
func (r DocRef) Root() string {
	if i := strings.Index(r.Collection, "/"); i >= 0 {
		return r.Collection[:i]
	}
	return r.Collection
}

// Parent returns the document owning this document's collection, if any
func (r DocRef) Parent() (DocRef, bool) {
	parent, err := ParseRef(r.Collection)
	if err != nil {
		return DocRef{}, false
	}
	return parent, true
}

func (r DocRef) valid() bool {
	return r.ID != "" && r.Collection != "" && !strings.Contains(r.ID, "/") &&
		strings.Count(r.Collection, "/")%2 == 0
}

// NewID returns a random document id
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Snapshot is the state of one document at read time. Data holds normalized
// values (see Normalize).
type Snapshot struct {
	Ref        DocRef
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// DataTo decodes the snapshot into v using v's json tags
func (s *Snapshot) DataTo(v any) error {
	return Decode(s.Data, v)
}

// Field returns the value at a dotted field path
func (s *Snapshot) Field(path string) (any, bool) {
	return getPath(s.Data, path)
}

// Page is one page of query results. Next is nil when the page is empty so
// callers keep their previous cursor.
type Page struct {
	Docs []*Snapshot
	Next *Cursor
	Full bool
}

// Update sets one dotted field path. Value may be a field operator.
type Update struct {
	Path  string
	Value any
}

// SetOption changes Set semantics
type SetOption int

const (
	// MergeAll merges the given fields into the existing document instead of replacing it
	MergeAll SetOption = iota + 1
)

func hasMerge(opts []SetOption) bool {
	for _, o := range opts {
		if o == MergeAll {
			return true
		}
	}
	return false
}

// Tx is the read-modify-write handle passed to RunTransaction. All reads must
// happen before the first write.
type Tx interface {
	Get(ref DocRef) (*Snapshot, error)
	Create(ref DocRef, data any) error
	Set(ref DocRef, data any, opts ...SetOption) error
	Update(ref DocRef, updates ...Update) error
	Delete(ref DocRef) error
}

// Subscription is a live listener. Stop must be called when the consumer is done.
type Subscription interface {
	Stop()
}

// Store is implemented by every backend
type Store interface {
	Get(ctx context.Context, ref DocRef) (*Snapshot, error)
	Query(ctx context.Context, q Query) (*Page, error)
	Count(ctx context.Context, q Query) (int64, error)

	Create(ctx context.Context, ref DocRef, data any) error
	Set(ctx context.Context, ref DocRef, data any, opts ...SetOption) error
	Update(ctx context.Context, ref DocRef, updates ...Update) error
	Delete(ctx context.Context, ref DocRef) error

	Batch() *WriteBatch
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	SubscribeDoc(ctx context.Context, ref DocRef, fn func(*Snapshot, error)) Subscription
	SubscribeQuery(ctx context.Context, q Query, fn func([]*Snapshot, error)) Subscription

	Close() error
}
