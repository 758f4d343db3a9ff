package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is the row layout of the sql backend: one row per document with a
// JSON payload. Queries are evaluated in process over a collection's rows.
type Document struct {
	Path       string    `gorm:"primaryKey;size:768"`
	Collection string    `gorm:"size:512;not null;index"`
	DocID      string    `gorm:"column:doc_id;size:255;not null"`
	Data       string    `gorm:"type:text;not null"`
	Version    int64     `gorm:"not null;default:1"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName pins the table name
func (Document) TableName() string {
	return "documents"
}

// SQLStore persists documents through gorm (postgres or sqlite). Realtime
// listeners only observe writes made through this process.
type SQLStore struct {
	db        *gorm.DB
	now       func() time.Time
	hooks     hookList
	listeners *listenerSet
}

// NewSQLStore wraps a migrated gorm connection
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now, listeners: newListenerSet()}
}

// OnChange registers a hook for committed writes
func (s *SQLStore) OnChange(hook ChangeHook) {
	s.hooks.add(hook)
}

func (s *SQLStore) Get(ctx context.Context, ref DocRef) (*Snapshot, error) {
	if !ref.valid() {
		return nil, ErrInvalidArgument
	}
	var row Document
	err := s.db.WithContext(ctx).Where("path = ?", ref.Path()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get %s: %w", ref.Path(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref.Path(), err)
	}
	return row.snapshot()
}

func (s *SQLStore) Query(ctx context.Context, q Query) (*Page, error) {
	nq, err := q.normalized()
	if err != nil {
		return nil, err
	}
	var rows []Document
	if err := s.db.WithContext(ctx).Where("collection = ?", nq.Collection).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", nq.Collection, err)
	}
	docs := make([]*Snapshot, 0, len(rows))
	for i := range rows {
		snap, err := rows[i].snapshot()
		if err != nil {
			return nil, err
		}
		docs = append(docs, snap)
	}
	return evaluate(docs, nq), nil
}

func (s *SQLStore) Count(ctx context.Context, q Query) (int64, error) {
	q.LimitN = 0
	q.After = nil
	page, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return int64(len(page.Docs)), nil
}

func (s *SQLStore) Create(ctx context.Context, ref DocRef, data any) error {
	return s.Batch().Create(ref, data).Commit(ctx)
}

func (s *SQLStore) Set(ctx context.Context, ref DocRef, data any, opts ...SetOption) error {
	return s.Batch().Set(ref, data, opts...).Commit(ctx)
}

func (s *SQLStore) Update(ctx context.Context, ref DocRef, updates ...Update) error {
	return s.Batch().Update(ref, updates...).Commit(ctx)
}

func (s *SQLStore) Delete(ctx context.Context, ref DocRef) error {
	return s.Batch().Delete(ref).Commit(ctx)
}

func (s *SQLStore) Batch() *WriteBatch {
	return newBatch(func(ctx context.Context, writes []write) error {
		return s.commit(ctx, writes, nil)
	})
}

func (s *SQLStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &sqlTx{ctx: ctx, store: s, memTx: memTx{reads: make(map[string]int64)}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}
		err := s.commit(ctx, tx.writes, tx.reads)
		if errors.Is(err, errStaleRead) {
			continue
		}
		return err
	}
	return ErrTxConflict
}

func (s *SQLStore) locking(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *SQLStore) commit(ctx context.Context, writes []write, reads map[string]int64) error {
	now := s.now().UTC()
	var events []ChangeEvent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for path, version := range reads {
			var row Document
			err := s.locking(tx).Select("path", "version").Where("path = ?", path).Take(&row).Error
			current := int64(0)
			if err == nil {
				current = row.Version
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if current != version {
				return errStaleRead
			}
		}

		staged, err := stageWrites(writes, func(ref DocRef) (docState, error) {
			var row Document
			err := s.locking(tx).Where("path = ?", ref.Path()).Take(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return docState{}, nil
			}
			if err != nil {
				return docState{}, err
			}
			data, err := unmarshalData(row.Data)
			if err != nil {
				return docState{}, err
			}
			return docState{data: data, exists: true, created: row.CreatedAt, version: row.Version}, nil
		}, now)
		if err != nil {
			return err
		}

		for _, st := range staged {
			if err := s.persist(tx, st, now); err != nil {
				return err
			}
			if e, ok := st.event(now); ok {
				events = append(events, e)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.hooks.emit(events)
	s.listeners.notify(events)
	return nil
}

func (s *SQLStore) persist(tx *gorm.DB, st *stagedDoc, now time.Time) error {
	path := st.ref.Path()
	switch {
	case st.deleted:
		if !st.before.exists {
			return nil
		}
		return tx.Where("path = ?", path).Delete(&Document{}).Error

	case !st.before.exists:
		payload, err := marshalData(st.after)
		if err != nil {
			return err
		}
		return tx.Create(&Document{
			Path:       path,
			Collection: st.ref.Collection,
			DocID:      st.ref.ID,
			Data:       payload,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}).Error

	default:
		payload, err := marshalData(st.after)
		if err != nil {
			return err
		}
		res := tx.Model(&Document{}).
			Where("path = ? AND version = ?", path, st.before.version).
			Updates(map[string]any{
				"data":       payload,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStaleRead
		}
		return nil
	}
}

func (s *SQLStore) SubscribeDoc(ctx context.Context, ref DocRef, fn func(*Snapshot, error)) Subscription {
	path := ref.Path()
	return s.listeners.add(ctx, func(r DocRef) bool { return r.Path() == path }, func() {
		snap, err := s.Get(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			fn(nil, nil)
			return
		}
		fn(snap, err)
	})
}

func (s *SQLStore) SubscribeQuery(ctx context.Context, q Query, fn func([]*Snapshot, error)) Subscription {
	return s.listeners.add(ctx, func(r DocRef) bool { return r.Collection == q.Collection }, func() {
		page, err := s.Query(ctx, q)
		if err != nil {
			fn(nil, err)
			return
		}
		fn(page.Docs, nil)
	})
}

func (s *SQLStore) Close() error {
	s.listeners.closeAll()
	return nil
}

func (d *Document) snapshot() (*Snapshot, error) {
	data, err := unmarshalData(d.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", d.Path, err)
	}
	return &Snapshot{
		Ref:        DocRef{Collection: d.Collection, ID: d.DocID},
		Data:       data,
		CreateTime: d.CreatedAt,
		UpdateTime: d.UpdatedAt,
	}, nil
}

// sqlTx reads outside the database transaction and validates read versions
// at commit, like the in-memory backend.
type sqlTx struct {
	memTx
	ctx   context.Context
	store *SQLStore
}

func (t *sqlTx) Get(ref DocRef) (*Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, fmt.Errorf("%w: transaction reads must precede writes", ErrInvalidArgument)
	}
	if !ref.valid() {
		return nil, ErrInvalidArgument
	}
	var row Document
	err := t.store.db.WithContext(t.ctx).Where("path = ?", ref.Path()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t.reads[ref.Path()] = 0
		return nil, fmt.Errorf("get %s: %w", ref.Path(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.reads[ref.Path()] = row.Version
	return row.snapshot()
}

// Typed JSON payload. Timestamps and integral floats are tagged so they
// survive the round trip with their type.

const (
	timeTag  = "$time"
	floatTag = "$float"
)

func marshalData(data map[string]any) (string, error) {
	raw, err := json.Marshal(tagValue(data))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func unmarshalData(payload string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out, _ := untagValue(raw).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func tagValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{timeTag: x.UTC().Format(time.RFC3339Nano)}
	case float64:
		if x == float64(int64(x)) {
			return map[string]any{floatTag: x}
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = tagValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = tagValue(e)
		}
		return out
	}
	return v
}

func untagValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		if len(x) == 1 {
			if s, ok := x[timeTag].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return normalizeTime(t)
				}
			}
			if n, ok := x[floatTag].(json.Number); ok {
				f, _ := n.Float64()
				return f
			}
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = untagValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = untagValue(e)
		}
		return out
	}
	return v
}
