// Package gamification awards experience points and unlocks badges in
// reaction to committed document writes.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/progression"
)

// Result describes one award transaction
type Result struct {
	UID       string
	Reason    string
	Points    int64
	NewBadges []models.Badge
	// Duplicate is set when the event key was already processed
	Duplicate bool
}

// Engine maps change events to award transactions
type Engine struct {
	store   docstore.Store
	catalog []models.Badge
	now     func() time.Time
	onAward func(Result)
}

// NewEngine creates an engine over the default badge catalog
func NewEngine(store docstore.Store) *Engine {
	return &Engine{store: store, catalog: models.BadgeCatalog, now: time.Now}
}

// SetClock overrides the award timestamp source
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// OnAward registers a callback invoked after every committed award
func (e *Engine) OnAward(fn func(Result)) {
	e.onAward = fn
}

// Handle processes one change event. Events no rule reacts to are ignored.
func (e *Engine) Handle(ctx context.Context, ev docstore.ChangeEvent) ([]Result, error) {
	switch {
	case ev.Ref.Collection == models.CollReviews && ev.Kind == docstore.Created:
		return e.onReviewCreated(ctx, ev)
	case ev.Ref.Collection == models.CollReviews && ev.Kind == docstore.Updated:
		return e.onReviewReactionsChanged(ctx, ev)
	case ev.Ref.Collection == models.CollLists && ev.Kind == docstore.Created:
		return e.onListCreated(ctx, ev)
	case isClubPost(ev.Ref) && ev.Kind == docstore.Created:
		return e.onClubPostCreated(ctx, ev)
	case ev.Ref.Collection == models.CollUsers && ev.Kind == docstore.Updated:
		return e.onFollowersChanged(ctx, ev)
	}
	return nil, nil
}

func isClubPost(ref docstore.DocRef) bool {
	parts := strings.Split(ref.Collection, "/")
	return len(parts) == 3 && parts[0] == models.CollGroups && parts[2] == models.SubPosts
}

func (e *Engine) onReviewCreated(ctx context.Context, ev docstore.ChangeEvent) ([]Result, error) {
	owner, _ := ev.After["uidAutor"].(string)
	if owner == "" {
		return nil, nil
	}
	observed, err := e.countOwned(ctx, models.CollReviews, owner)
	if err != nil {
		return nil, err
	}
	res, err := e.grant(ctx, owner, Awards[ReasonReviewCreated], "review_"+ev.Ref.ID, observed, 0)
	return single(res, err)
}

func (e *Engine) onListCreated(ctx context.Context, ev docstore.ChangeEvent) ([]Result, error) {
	owner, _ := ev.After["uidAutor"].(string)
	if owner == "" {
		return nil, nil
	}
	observed, err := e.countOwned(ctx, models.CollLists, owner)
	if err != nil {
		return nil, err
	}
	res, err := e.grant(ctx, owner, Awards[ReasonListCreated], "list_"+ev.Ref.ID, observed, 0)
	return single(res, err)
}

func (e *Engine) onClubPostCreated(ctx context.Context, ev docstore.ChangeEvent) ([]Result, error) {
	author, _ := ev.After["authorId"].(string)
	if author == "" {
		return nil, nil
	}
	groupID := strings.Split(ev.Ref.Collection, "/")[1]
	// the triggering post itself counts, whatever the stored counter says
	res, err := e.grant(ctx, author, Awards[ReasonClubPostCreated], "post_"+groupID+"_"+ev.Ref.ID, 1, 0)
	return single(res, err)
}

// onFollowersChanged awards once per follower present after the update but
// not before, each in its own transaction. Step i judges badges against the
// follower count as it stood after the i-th new follower.
func (e *Engine) onFollowersChanged(ctx context.Context, ev docstore.ChangeEvent) ([]Result, error) {
	added := addedValues(ev.Before["seguidores"], ev.After["seguidores"])
	total := int64(len(addedValues(nil, ev.After["seguidores"])))
	var results []Result
	for i, follower := range added {
		step := total - int64(len(added)-1-i)
		res, err := e.grant(ctx, ev.Ref.ID, Awards[ReasonFollowerAdded], "follower_"+follower, step, step)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// onReviewReactionsChanged awards the review owner once per new voter
func (e *Engine) onReviewReactionsChanged(ctx context.Context, ev docstore.ChangeEvent) ([]Result, error) {
	owner, _ := ev.After["uidAutor"].(string)
	if owner == "" {
		return nil, nil
	}
	before := voters(ev.Before["reactions"])
	var results []Result
	for _, voter := range sortedKeys(voters(ev.After["reactions"])) {
		if before[voter] {
			continue
		}
		res, err := e.grant(ctx, owner, Awards[ReasonLikeReceived], "like_"+ev.Ref.ID+"_"+voter, 0, 0)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) countOwned(ctx context.Context, collection, owner string) (int64, error) {
	n, err := e.store.Count(ctx, docstore.From(collection).Where("uidAutor", docstore.OpEqual, owner))
	if err != nil {
		return 0, fmt.Errorf("count %s of %s: %w", collection, owner, err)
	}
	return n, nil
}

// grant runs one award transaction for uid. eventKey makes the award
// exactly-once; observed is a lower bound for the award's stat and ceiling,
// when positive, an upper bound.
func (e *Engine) grant(ctx context.Context, uid string, award Award, eventKey string, observed, ceiling int64) (Result, error) {
	userRef := docstore.Doc(models.CollUsers, uid)
	ledgerRef := docstore.Doc(userRef.Sub(models.SubAwards), eventKey)

	var result Result
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result = Result{UID: uid, Reason: award.Reason}

		snap, err := tx.Get(userRef)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ledgerRef); err == nil {
			result.Duplicate = true
			return nil
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}

		var user models.User
		if err := snap.DataTo(&user); err != nil {
			return err
		}
		stats := user.StatValues()

		updates := []docstore.Update{{Path: "xp", Value: docstore.Increment(award.Points)}}
		if award.OwnsStat {
			stats[award.StatField]++
			updates = append(updates, docstore.Update{Path: "stats." + award.StatField, Value: docstore.Increment(1)})
		}
		value := stats[award.StatField]
		if observed > value {
			value = observed
		}
		if ceiling > 0 && value > ceiling {
			value = ceiling
		}

		badges := append([]string{}, user.Badges...)
		for _, b := range progression.QualifiedBadges(e.catalog, award.BadgeType, value) {
			if user.HasBadge(b.ID) {
				continue
			}
			badges = append(badges, b.ID)
			result.NewBadges = append(result.NewBadges, b)
		}
		if len(result.NewBadges) > 0 {
			updates = append(updates, docstore.Update{Path: "badges", Value: badges})
		}

		now := e.now().UTC()
		if err := tx.Update(userRef, updates...); err != nil {
			return err
		}
		if err := tx.Create(ledgerRef, models.AwardEntry{Points: award.Points, Reason: award.Reason, Timestamp: now}); err != nil {
			return err
		}
		for _, b := range result.NewBadges {
			achievementRef := docstore.Doc(models.CollAchievements, uid+"_"+b.ID)
			if err := tx.Set(achievementRef, models.Achievement{
				ID:        achievementRef.ID,
				UIDAutor:  uid,
				BadgeID:   b.ID,
				BadgeName: b.Name,
				Icon:      b.Icon,
				Timestamp: now,
			}); err != nil {
				return err
			}
		}
		result.Points = award.Points
		return nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		logger.Log.Warn("Award skipped, user document missing",
			logger.WithUserID(uid), zap.String("reason", award.Reason))
		return Result{UID: uid, Reason: award.Reason}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("award %s to %s: %w", award.Reason, uid, err)
	}

	if !result.Duplicate {
		fields := []zap.Field{logger.WithUserID(uid), zap.String("reason", award.Reason), zap.Int64("points", result.Points)}
		for _, b := range result.NewBadges {
			fields = append(fields, zap.String("badge", b.ID))
		}
		logger.Log.Info("XP awarded", fields...)
		if e.onAward != nil {
			e.onAward(result)
		}
	}
	return result, nil
}

func single(res Result, err error) ([]Result, error) {
	if err != nil {
		return nil, err
	}
	return []Result{res}, nil
}

func addedValues(before, after any) []string {
	old := make(map[string]bool)
	if list, ok := before.([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				old[s] = true
			}
		}
	}
	var out []string
	if list, ok := after.([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok && !old[s] {
				old[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func voters(reactions any) map[string]bool {
	out := make(map[string]bool)
	buckets, ok := reactions.(map[string]any)
	if !ok {
		return out
	}
	for _, bucket := range buckets {
		list, _ := bucket.([]any)
		for _, v := range list {
			if s, ok := v.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
