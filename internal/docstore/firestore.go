package docstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cinesync/backend/internal/logger"
)

// FirestoreStore is the production backend. Change events are delivered by
// Firestore triggers (see DecodeFirestoreEvent), not by this type.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore opens a Firestore client from an initialized firebase app
func NewFirestoreStore(ctx context.Context, app *firebase.App) (*FirestoreStore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// NewFirestoreStoreFromClient wraps an existing client
func NewFirestoreStoreFromClient(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) doc(ref DocRef) (*firestore.DocumentRef, error) {
	if !ref.valid() {
		return nil, ErrInvalidArgument
	}
	dr := s.client.Doc(ref.Path())
	if dr == nil {
		return nil, ErrInvalidArgument
	}
	return dr, nil
}

func (s *FirestoreStore) Get(ctx context.Context, ref DocRef) (*Snapshot, error) {
	dr, err := s.doc(ref)
	if err != nil {
		return nil, err
	}
	snap, err := dr.Get(ctx)
	if err != nil {
		return nil, mapFirestoreErr(fmt.Sprintf("get %s", ref.Path()), err)
	}
	return fromFirestoreSnapshot(ref.Collection, snap)
}

func (s *FirestoreStore) query(q Query) (firestore.Query, error) {
	nq, err := q.normalized()
	if err != nil {
		return firestore.Query{}, err
	}
	col := s.client.Collection(nq.Collection)
	if col == nil {
		return firestore.Query{}, ErrInvalidArgument
	}
	fq := col.Query
	for _, f := range nq.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}

	dir := firestore.Asc
	if nq.Dir == Desc {
		dir = firestore.Desc
	}
	if nq.OrderField != "" {
		fq = fq.OrderBy(nq.OrderField, dir)
	}
	fq = fq.OrderBy(firestore.DocumentID, dir)

	if nq.After != nil {
		if nq.OrderField != "" {
			fq = fq.StartAfter(nq.After.Value, nq.After.ID)
		} else {
			fq = fq.StartAfter(nq.After.ID)
		}
	}
	if nq.LimitN > 0 {
		fq = fq.Limit(nq.LimitN)
	}
	return fq, nil
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) (*Page, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}
	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	page := &Page{Docs: make([]*Snapshot, 0, len(snaps))}
	for _, fs := range snaps {
		snap, err := fromFirestoreSnapshot(q.Collection, fs)
		if err != nil {
			return nil, err
		}
		page.Docs = append(page.Docs, snap)
	}
	page.Full = q.LimitN > 0 && len(page.Docs) == q.LimitN
	if n := len(page.Docs); n > 0 {
		page.Next = q.cursorFor(page.Docs[n-1])
	}
	return page, nil
}

func (s *FirestoreStore) Count(ctx context.Context, q Query) (int64, error) {
	q.LimitN = 0
	q.After = nil
	fq, err := s.query(q)
	if err != nil {
		return 0, err
	}
	res, err := fq.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, err)
	}
	v, ok := res["count"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected aggregation result", q.Collection)
	}
	return v.GetIntegerValue(), nil
}

func (s *FirestoreStore) Create(ctx context.Context, ref DocRef, data any) error {
	return s.Batch().Create(ref, data).Commit(ctx)
}

func (s *FirestoreStore) Set(ctx context.Context, ref DocRef, data any, opts ...SetOption) error {
	return s.Batch().Set(ref, data, opts...).Commit(ctx)
}

func (s *FirestoreStore) Update(ctx context.Context, ref DocRef, updates ...Update) error {
	return s.Batch().Update(ref, updates...).Commit(ctx)
}

func (s *FirestoreStore) Delete(ctx context.Context, ref DocRef) error {
	return s.Batch().Delete(ref).Commit(ctx)
}

// Batch commits through a write-only transaction
func (s *FirestoreStore) Batch() *WriteBatch {
	return newBatch(func(ctx context.Context, writes []write) error {
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for _, w := range writes {
				if err := s.applyTx(tx, w); err != nil {
					return err
				}
			}
			return nil
		})
		return mapFirestoreErr("commit", err)
	})
}

func (s *FirestoreStore) applyTx(tx *firestore.Transaction, w write) error {
	dr, err := s.doc(w.ref)
	if err != nil {
		return err
	}
	switch w.kind {
	case writeCreate:
		return tx.Create(dr, toFirestoreValue(w.data))
	case writeSet:
		if w.merge {
			return tx.Set(dr, toFirestoreValue(w.data), firestore.MergeAll)
		}
		return tx.Set(dr, toFirestoreValue(w.data))
	case writeUpdate:
		updates := make([]firestore.Update, len(w.updates))
		for i, u := range w.updates {
			updates[i] = firestore.Update{Path: u.Path, Value: toFirestoreValue(u.Value)}
		}
		return tx.Update(dr, updates)
	case writeDelete:
		return tx.Delete(dr)
	}
	return ErrInvalidArgument
}

func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		tx := &firestoreTx{store: s, tx: ftx}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.err
	})
	return mapFirestoreErr("transaction", err)
}

func (s *FirestoreStore) SubscribeDoc(ctx context.Context, ref DocRef, fn func(*Snapshot, error)) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	dr, err := s.doc(ref)
	if err != nil {
		go fn(nil, err)
		return cancelSubscription(cancel)
	}

	go func() {
		it := dr.Snapshots(ctx)
		defer it.Stop()
		for {
			fs, err := it.Next()
			if ctx.Err() != nil || errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				fn(nil, err)
				return
			}
			if !fs.Exists() {
				fn(nil, nil)
				continue
			}
			fn(fromFirestoreSnapshot(ref.Collection, fs))
		}
	}()
	return cancelSubscription(cancel)
}

func (s *FirestoreStore) SubscribeQuery(ctx context.Context, q Query, fn func([]*Snapshot, error)) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	fq, err := s.query(q)
	if err != nil {
		go fn(nil, err)
		return cancelSubscription(cancel)
	}

	go func() {
		it := fq.Snapshots(ctx)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if ctx.Err() != nil || errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				fn(nil, err)
				return
			}
			fsnaps, err := qs.Documents.GetAll()
			if err != nil {
				fn(nil, err)
				continue
			}
			docs := make([]*Snapshot, 0, len(fsnaps))
			for _, fs := range fsnaps {
				snap, err := fromFirestoreSnapshot(q.Collection, fs)
				if err != nil {
					logger.Log.Warn("Skipping undecodable document", zap.String("collection", q.Collection), zap.Error(err))
					continue
				}
				docs = append(docs, snap)
			}
			fn(docs, nil)
		}
	}()
	return cancelSubscription(cancel)
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type cancelSubscription context.CancelFunc

func (c cancelSubscription) Stop() {
	c()
}

type firestoreTx struct {
	store *FirestoreStore
	tx    *firestore.Transaction
	err   error
}

func (t *firestoreTx) Get(ref DocRef) (*Snapshot, error) {
	dr, err := t.store.doc(ref)
	if err != nil {
		return nil, err
	}
	fs, err := t.tx.Get(dr)
	if err != nil {
		return nil, mapFirestoreErr(fmt.Sprintf("get %s", ref.Path()), err)
	}
	return fromFirestoreSnapshot(ref.Collection, fs)
}

func (t *firestoreTx) Create(ref DocRef, data any) error {
	return t.apply(newDataWrite(writeCreate, ref, data, false))
}

func (t *firestoreTx) Set(ref DocRef, data any, opts ...SetOption) error {
	return t.apply(newDataWrite(writeSet, ref, data, hasMerge(opts)))
}

func (t *firestoreTx) Update(ref DocRef, updates ...Update) error {
	return t.apply(newUpdateWrite(ref, updates))
}

func (t *firestoreTx) Delete(ref DocRef) error {
	return t.apply(write{kind: writeDelete, ref: ref}, nil)
}

func (t *firestoreTx) apply(w write, err error) error {
	if err == nil {
		err = t.store.applyTx(t.tx, w)
	}
	if err != nil && t.err == nil {
		t.err = err
	}
	return err
}

func mapFirestoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	case codes.Aborted:
		return fmt.Errorf("%s: %w", op, ErrTxConflict)
	}
	return err
}

func fromFirestoreSnapshot(collection string, fs *firestore.DocumentSnapshot) (*Snapshot, error) {
	data, err := normalizeValue(fromFirestoreValue(fs.Data()))
	if err != nil {
		return nil, err
	}
	m, _ := data.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return &Snapshot{
		Ref:        DocRef{Collection: collection, ID: fs.Ref.ID},
		Data:       m,
		CreateTime: fs.CreateTime,
		UpdateTime: fs.UpdateTime,
	}, nil
}

func fromFirestoreValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = fromFirestoreValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromFirestoreValue(e)
		}
		return out
	case *firestore.DocumentRef:
		if x == nil {
			return nil
		}
		if i := strings.Index(x.Path, "/documents/"); i >= 0 {
			return x.Path[i+len("/documents/"):]
		}
		return x.Path
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	}
	return v
}

func toFirestoreValue(v any) any {
	switch x := v.(type) {
	case incrementOp:
		return firestore.Increment(x.n)
	case arrayUnionOp:
		return firestore.ArrayUnion(x.values...)
	case arrayRemoveOp:
		return firestore.ArrayRemove(x.values...)
	case serverTimestampOp:
		return firestore.ServerTimestamp
	case deleteFieldOp:
		return firestore.Delete
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = toFirestoreValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toFirestoreValue(e)
		}
		return out
	}
	return v
}
