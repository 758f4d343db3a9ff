// Package feed merges reviews, lists, achievements and battles into one
// reverse-chronological, cursor-paginated stream.
package feed

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
)

var tracer = otel.Tracer("github.com/cinesync/backend/internal/feed")

// Aggregator builds feed pages. It is safe for concurrent use; all per-view
// state lives in the Session.
type Aggregator struct {
	store    docstore.Store
	sources  []CursorPage
	battles  CursorPage
	sample   RandomSample
	coin     func() bool
	inMax    int
	pageSize int
}

// NewAggregator creates an aggregator. synth may be nil, in which case only
// stored battles are injected.
func NewAggregator(store docstore.Store, synth Synthesizer) *Aggregator {
	a := &Aggregator{
		store:    store,
		coin:     func() bool { return rand.IntN(2) == 0 },
		inMax:    docstore.MaxInValues,
		pageSize: PageSize,
		sample:   RandomSample{Synth: synth},
	}
	a.setPageSize(PageSize)
	return a
}

func (a *Aggregator) setPageSize(n int) {
	a.pageSize = n
	a.sources = []CursorPage{
		{Kind: KindReview, Collection: models.CollReviews, Size: n},
		{Kind: KindList, Collection: models.CollLists, Size: n},
		{Kind: KindAchievement, Collection: models.CollAchievements, Size: n},
	}
	a.battles = CursorPage{Kind: KindBattle, Collection: models.CollBattles, Size: 1}
}

// SetCoin replaces the stored-vs-synthetic battle coin flip. true picks a
// stored battle.
func (a *Aggregator) SetCoin(coin func() bool) {
	a.coin = coin
}

// SetInLimit caps how many followed ids are used in the author filter
func (a *Aggregator) SetInLimit(n int) {
	if n > 0 && n <= docstore.MaxInValues {
		a.inMax = n
	}
}

// LoadMore fetches the next page for the session and advances its cursors.
// Failures are logged and produce a partial or empty page; they are never
// returned.
func (a *Aggregator) LoadMore(ctx context.Context, sess *Session) *Page {
	ctx, span := tracer.Start(ctx, "feed.LoadMore")
	defer span.End()
	span.SetAttributes(attribute.String("feed.mode", sess.Mode), attribute.String("feed.session", sess.ID))

	start := time.Now()
	page := &Page{SessionID: sess.ID, Mode: sess.Mode, HasMore: sess.HasMore}
	defer func() {
		metrics.RecordFeedPage(sess.Mode, time.Since(start), len(page.Items))
	}()

	var authors []string
	if sess.Mode == ModeFollowed {
		following, err := a.following(ctx, sess.ViewerID)
		if err != nil {
			logger.Log.Warn("Feed: failed to resolve followed ids",
				logger.WithUserID(sess.ViewerID), logger.WithSource("users"), zap.Error(err))
			return page
		}
		if len(following) == 0 {
			sess.HasMore = false
			page.HasMore = false
			return page
		}
		authors = following
	}

	for ctx.Err() == nil {
		items, hasMore, clean := a.cycle(ctx, sess, authors)
		sess.HasMore = hasMore
		page.HasMore = hasMore
		if len(items) > 0 || !hasMore || !clean {
			page.Items = items
			break
		}
		logger.Log.Debug("Feed: cycle yielded nothing new, continuing", zap.String("session", sess.ID))
	}
	sess.Pages++
	sess.UpdatedAt = time.Now().UTC()
	span.SetAttributes(attribute.Int("feed.items", len(page.Items)), attribute.Bool("feed.has_more", page.HasMore))
	return page
}

// following returns up to inMax ids the viewer follows
func (a *Aggregator) following(ctx context.Context, viewerID string) ([]string, error) {
	snap, err := a.store.Get(ctx, docstore.Doc(models.CollUsers, viewerID))
	if err != nil {
		return nil, err
	}
	var viewer models.User
	if err := snap.DataTo(&viewer); err != nil {
		return nil, err
	}
	ids := viewer.Seguindo
	if len(ids) > a.inMax {
		ids = ids[:a.inMax]
	}
	return ids, nil
}

// cycle runs one fetch-merge round. It returns the new items, whether the
// gating sources report more data, and whether every source answered.
func (a *Aggregator) cycle(ctx context.Context, sess *Session, authors []string) ([]Item, bool, bool) {
	results := make(chan sourceResult, len(a.sources))
	for _, src := range a.sources {
		cursor := sess.Cursors[src.Kind]
		go func(src CursorPage) {
			results <- src.Fetch(ctx, a.store, cursor, authors)
		}(src)
	}

	battleCursor := sess.Cursors[KindBattle]
	battleCh := make(chan battlePick, 1)
	go func() {
		battleCh <- a.pickBattle(ctx, battleCursor)
	}()

	clean := true
	hasMore := false
	var batch []Item
	for range a.sources {
		res := <-results
		if res.err != nil {
			clean = false
			logger.Log.Warn("Feed source failed", logger.WithSource(res.kind), zap.Error(res.err))
			if res.kind == KindReview || res.kind == KindList {
				// keep paging once the source recovers
				hasMore = hasMore || sess.HasMore
			}
			continue
		}
		sess.Cursors[res.kind] = res.next
		if res.full && (res.kind == KindReview || res.kind == KindList) {
			hasMore = true
		}
		batch = append(batch, res.items...)
	}
	pick := <-battleCh

	seen := sess.seenSet()
	fresh := make([]Item, 0, len(batch))
	for _, it := range batch {
		if sess.Mode == ModeEveryone && it.AuthorID == sess.ViewerID {
			continue
		}
		if seen[it.Key] {
			continue
		}
		seen[it.Key] = true
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return nil, hasMore, clean
	}

	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Timestamp > fresh[j].Timestamp })

	fresh = a.enrich(ctx, fresh)
	if len(fresh) == 0 {
		return nil, hasMore, clean
	}
	for _, it := range fresh {
		sess.SeenKeys = append(sess.SeenKeys, it.Key)
	}

	if pick.stored {
		sess.Cursors[KindBattle] = pick.cursor
	}
	if pick.item != nil && !seen[pick.item.Key] {
		sess.SeenKeys = append(sess.SeenKeys, pick.item.Key)
		fresh = splice(fresh, *pick.item, BattleSlot)
	}
	return fresh, hasMore, clean
}

type battlePick struct {
	item   *Item
	cursor string
	stored bool
}

// pickBattle flips the coin between the stored battle source and a
// synthesized battle. An exhausted stored source falls back to synthesis.
func (a *Aggregator) pickBattle(ctx context.Context, cursor string) battlePick {
	if a.coin() {
		res := a.battles.Fetch(ctx, a.store, cursor, nil)
		if res.err != nil {
			logger.Log.Warn("Feed source failed", logger.WithSource(KindBattle), zap.Error(res.err))
		} else if len(res.items) > 0 {
			var b models.Battle
			if err := docstore.Decode(res.items[0].Data, &b); err == nil {
				b.ID = res.items[0].ID
				item := battleItem(&b)
				return battlePick{item: &item, cursor: res.next, stored: true}
			}
		}
	}
	if a.sample.Synth == nil {
		return battlePick{}
	}
	item, err := a.sample.Draw(ctx)
	if err != nil {
		logger.Log.Warn("Feed: battle synthesis failed, skipping battle", logger.WithSource("catalog"), zap.Error(err))
		return battlePick{}
	}
	return battlePick{item: item}
}

// enrich attaches author snapshots with one lookup per unique author and
// drops items whose author could not be loaded
func (a *Aggregator) enrich(ctx context.Context, items []Item) []Item {
	unique := make(map[string]struct{})
	for _, it := range items {
		if it.AuthorID != "" {
			unique[it.AuthorID] = struct{}{}
		}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	authors := make(map[string]models.UserSnapshot, len(unique))
	for uid := range unique {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			snap, err := a.store.Get(ctx, docstore.Doc(models.CollUsers, uid))
			if err != nil {
				logger.Log.Warn("Feed: author lookup failed, dropping items",
					logger.WithUserID(uid), logger.WithSource("users"), zap.Error(err))
				return
			}
			var u models.User
			if err := snap.DataTo(&u); err != nil {
				return
			}
			if u.UID == "" {
				u.UID = uid
			}
			mu.Lock()
			authors[uid] = u.Snapshot()
			mu.Unlock()
		}(uid)
	}
	wg.Wait()

	out := items[:0]
	for _, it := range items {
		author, ok := authors[it.AuthorID]
		if !ok {
			continue
		}
		it.Author = &author
		out = append(out, it)
	}
	return out
}

// splice inserts the battle at index slot, or appends it when the batch is
// shorter than slot
func splice(items []Item, battle Item, slot int) []Item {
	if len(items) < slot {
		return append(items, battle)
	}
	out := make([]Item, 0, len(items)+1)
	out = append(out, items[:slot]...)
	out = append(out, battle)
	return append(out, items[slot:]...)
}
