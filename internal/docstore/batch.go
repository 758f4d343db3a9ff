package docstore

import "context"

type writeKind int

const (
	writeCreate writeKind = iota
	writeSet
	writeUpdate
	writeDelete
)

type write struct {
	kind    writeKind
	ref     DocRef
	data    map[string]any
	merge   bool
	updates []Update
}

// WriteBatch collects unconditional writes that commit atomically
type WriteBatch struct {
	commit func(ctx context.Context, writes []write) error
	writes []write
	err    error
}

func newBatch(commit func(ctx context.Context, writes []write) error) *WriteBatch {
	return &WriteBatch{commit: commit}
}

// Create adds a create; Commit fails with ErrAlreadyExists if the document exists
func (b *WriteBatch) Create(ref DocRef, data any) *WriteBatch {
	w, err := newDataWrite(writeCreate, ref, data, false)
	return b.add(w, err)
}

// Set adds an overwrite (or merge with MergeAll)
func (b *WriteBatch) Set(ref DocRef, data any, opts ...SetOption) *WriteBatch {
	w, err := newDataWrite(writeSet, ref, data, hasMerge(opts))
	return b.add(w, err)
}

// Update adds a field update; Commit fails with ErrNotFound if the document is missing
func (b *WriteBatch) Update(ref DocRef, updates ...Update) *WriteBatch {
	w, err := newUpdateWrite(ref, updates)
	return b.add(w, err)
}

// Delete adds a delete; deleting a missing document is not an error
func (b *WriteBatch) Delete(ref DocRef) *WriteBatch {
	if !ref.valid() {
		return b.add(write{}, ErrInvalidArgument)
	}
	return b.add(write{kind: writeDelete, ref: ref}, nil)
}

// Len returns the number of queued writes
func (b *WriteBatch) Len() int {
	return len(b.writes)
}

// Commit applies every queued write or none of them
func (b *WriteBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.writes) == 0 {
		return nil
	}
	return b.commit(ctx, b.writes)
}

func (b *WriteBatch) add(w write, err error) *WriteBatch {
	if b.err != nil {
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	b.writes = append(b.writes, w)
	return b
}

func newDataWrite(kind writeKind, ref DocRef, data any, merge bool) (write, error) {
	if !ref.valid() {
		return write{}, ErrInvalidArgument
	}
	encoded, err := Encode(data)
	if err != nil {
		return write{}, err
	}
	return write{kind: kind, ref: ref, data: encoded, merge: merge}, nil
}

func newUpdateWrite(ref DocRef, updates []Update) (write, error) {
	if !ref.valid() || len(updates) == 0 {
		return write{}, ErrInvalidArgument
	}
	normalized := make([]Update, len(updates))
	for i, u := range updates {
		if u.Path == "" {
			return write{}, ErrInvalidArgument
		}
		v, err := normalizeValue(u.Value)
		if err != nil {
			return write{}, err
		}
		normalized[i] = Update{Path: u.Path, Value: v}
	}
	return write{kind: writeUpdate, ref: ref, updates: normalized}, nil
}
