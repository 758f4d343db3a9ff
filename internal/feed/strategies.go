package feed

import (
	"context"
	"time"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

// CursorPage reads the next page of a stored source in descending timestamp
// order, resuming after the source's cursor.
type CursorPage struct {
	Kind       string
	Collection string
	Size       int
}

type sourceResult struct {
	kind  string
	items []Item
	next  string
	full  bool
	err   error
}

// Fetch runs the page query. authors restricts results to those owners when
// non-empty.
func (p CursorPage) Fetch(ctx context.Context, store docstore.Store, cursor string, authors []string) sourceResult {
	res := sourceResult{kind: p.Kind, next: cursor}
	after, err := docstore.DecodeCursor(cursor)
	if err != nil {
		res.err = err
		return res
	}
	q := docstore.From(p.Collection).OrderBy("timestamp", docstore.Desc).Limit(p.Size).StartAfter(after)
	if len(authors) > 0 {
		q = q.Where("uidAutor", docstore.OpIn, authors)
	}
	page, err := store.Query(ctx, q)
	if err != nil {
		res.err = err
		return res
	}
	for _, snap := range page.Docs {
		res.items = append(res.items, itemFromSnapshot(p.Kind, snap))
	}
	if page.Next != nil {
		res.next = page.Next.Encode()
	}
	res.full = page.Full
	return res
}

// Synthesizer creates a battle that is not read from the store
type Synthesizer interface {
	Synthesize(ctx context.Context) (*models.Battle, error)
}

// RandomSample draws a brand new battle from random catalog pages
type RandomSample struct {
	Synth Synthesizer
}

// Draw returns a synthetic battle card
func (r RandomSample) Draw(ctx context.Context) (*Item, error) {
	b, err := r.Synth.Synthesize(ctx)
	if err != nil {
		return nil, err
	}
	item := battleItem(b)
	item.Synthetic = true
	return &item, nil
}

func itemFromSnapshot(kind string, snap *docstore.Snapshot) Item {
	data := make(map[string]any, len(snap.Data)+1)
	for k, v := range snap.Data {
		data[k] = v
	}
	data["id"] = snap.Ref.ID
	author, _ := snap.Data["uidAutor"].(string)
	return Item{
		Key:       itemKey(kind, snap.Ref.ID),
		Kind:      kind,
		ID:        snap.Ref.ID,
		AuthorID:  author,
		Timestamp: epochSeconds(snap.Data["timestamp"]),
		Data:      data,
	}
}

func battleItem(b *models.Battle) Item {
	return Item{
		Key:       itemKey(KindBattle, b.ID),
		Kind:      KindBattle,
		ID:        b.ID,
		Timestamp: b.Timestamp.Unix(),
		Battle:    b,
	}
}

// epochSeconds reads a timestamp field; anything else sorts as epoch 0
func epochSeconds(v any) int64 {
	if t, ok := v.(time.Time); ok && !t.IsZero() {
		return t.Unix()
	}
	return 0
}
