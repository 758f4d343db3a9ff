package search

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
)

// Index is the write side of the user index
type Index interface {
	IndexUser(ctx context.Context, doc UserDocument) error
	DeleteUser(ctx context.Context, uid string) error
}

// Fields whose change requires a reindex. Counters like xp are refreshed
// along with them rather than on every award.
var searchableFields = []string{"username", "nome", "sobrenome", "foto", "seguidores"}

// Indexer mirrors users/{uid} writes into the index
type Indexer struct {
	index Index
}

// NewIndexer creates an indexer writing to index
func NewIndexer(index Index) *Indexer {
	return &Indexer{index: index}
}

// Handle is a trigger handler. Events for other collections are ignored.
func (ix *Indexer) Handle(ctx context.Context, ev docstore.ChangeEvent) error {
	if ev.Ref.Collection != models.CollUsers {
		return nil
	}
	switch ev.Kind {
	case docstore.Deleted:
		return ix.index.DeleteUser(ctx, ev.Ref.ID)
	case docstore.Updated:
		if !searchableChanged(ev.Before, ev.After) {
			return nil
		}
	}

	var u models.User
	if err := docstore.Decode(ev.After, &u); err != nil {
		return err
	}
	u.UID = ev.Ref.ID
	if u.UsernameLower == "" {
		// Not a finished profile yet.
		return nil
	}
	return ix.index.IndexUser(ctx, UserToDocument(&u))
}

func searchableChanged(before, after map[string]any) bool {
	for _, f := range searchableFields {
		if !reflect.DeepEqual(before[f], after[f]) {
			return true
		}
	}
	return false
}

// Reindex rebuilds the index from every user document and returns how many
// were written. Failures are logged and skipped.
func Reindex(ctx context.Context, store docstore.Store, index Index) (int, error) {
	const pageSize = 200
	indexed := 0
	cursor := ""
	for {
		q := docstore.From(models.CollUsers).OrderBy("usernameLower", docstore.Asc).Limit(pageSize)
		if cursor != "" {
			q = q.Where("usernameLower", docstore.OpGreater, cursor)
		}
		page, err := store.Query(ctx, q)
		if err != nil {
			return indexed, err
		}
		for _, snap := range page.Docs {
			var u models.User
			if err := snap.DataTo(&u); err != nil {
				continue
			}
			u.UID = snap.Ref.ID
			cursor = u.UsernameLower
			if err := index.IndexUser(ctx, UserToDocument(&u)); err != nil {
				logger.Log.Warn("Reindex failed for user", logger.WithUserID(u.UID), zap.Error(err))
				continue
			}
			indexed++
		}
		if len(page.Docs) < pageSize {
			return indexed, nil
		}
	}
}
