// Package social owns the follow graph and user profiles
package social

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
)

var (
	ErrSelfFollow        = apierrors.New(apierrors.ErrBadRequest, "cannot follow yourself")
	ErrUsernameTaken     = apierrors.New(apierrors.ErrAlreadyExists, "username is already taken")
	ErrInvalidUsername   = apierrors.NewField("username", "username must be 3-30 characters of a-z, 0-9, dot or underscore")
	ErrProfileIncomplete = apierrors.NewField("nome", "name is required")
)

// UserSearcher ranks user ids for a free-text query
type UserSearcher interface {
	SearchUsers(ctx context.Context, query string, limit int) ([]string, error)
}

// Service manages users/{uid} documents
type Service struct {
	store    docstore.Store
	notifier notifications.Notifier
	searcher UserSearcher
	now      func() time.Time
}

// NewService creates a social service. notifier may be nil.
func NewService(store docstore.Store, notifier notifications.Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// SetSearcher routes SearchUsers through a search index. The store prefix
// query stays the fallback when the index fails.
func (s *Service) SetSearcher(searcher UserSearcher) {
	s.searcher = searcher
}

// Follow makes followerID follow targetID. Both sides of the edge are written
// in one transaction. Following twice is a no-op.
func (s *Service) Follow(ctx context.Context, followerID, targetID string) error {
	changed, err := s.setFollow(ctx, followerID, targetID, true)
	if err != nil || !changed {
		return err
	}
	metrics.RecordFollow(true)
	s.notify(ctx, targetID, followerID)
	return nil
}

// Unfollow removes the edge in both documents
func (s *Service) Unfollow(ctx context.Context, followerID, targetID string) error {
	changed, err := s.setFollow(ctx, followerID, targetID, false)
	if err == nil && changed {
		metrics.RecordFollow(false)
	}
	return err
}

// ToggleFollow flips the edge and reports whether followerID now follows targetID
func (s *Service) ToggleFollow(ctx context.Context, followerID, targetID string) (bool, error) {
	following, err := s.IsFollowing(ctx, followerID, targetID)
	if err != nil {
		return false, err
	}
	if following {
		return false, s.Unfollow(ctx, followerID, targetID)
	}
	return true, s.Follow(ctx, followerID, targetID)
}

// IsFollowing reports whether followerID follows targetID
func (s *Service) IsFollowing(ctx context.Context, followerID, targetID string) (bool, error) {
	u, err := s.User(ctx, followerID)
	if err != nil {
		return false, err
	}
	return contains(u.Seguindo, targetID), nil
}

func (s *Service) setFollow(ctx context.Context, followerID, targetID string, follow bool) (bool, error) {
	if followerID == targetID {
		return false, ErrSelfFollow
	}
	followerRef := docstore.Doc(models.CollUsers, followerID)
	targetRef := docstore.Doc(models.CollUsers, targetID)

	changed := false
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		changed = false
		followerSnap, err := tx.Get(followerRef)
		if err != nil {
			return err
		}
		targetSnap, err := tx.Get(targetRef)
		if err != nil {
			return err
		}
		var follower, target models.User
		if err := followerSnap.DataTo(&follower); err != nil {
			return err
		}
		if err := targetSnap.DataTo(&target); err != nil {
			return err
		}

		has := contains(follower.Seguindo, targetID) && contains(target.Seguidores, followerID)
		if has == follow {
			return nil
		}
		op := docstore.ArrayUnion
		if !follow {
			op = docstore.ArrayRemove
		}
		if err := tx.Update(followerRef, docstore.Update{Path: "seguindo", Value: op(targetID)}); err != nil {
			return err
		}
		changed = true
		return tx.Update(targetRef, docstore.Update{Path: "seguidores", Value: op(followerID)})
	})
	return changed, err
}

func (s *Service) notify(ctx context.Context, recipientID, senderID string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, recipientID, senderID, models.NotificationFollow, notifications.Payload{}); err != nil {
		logger.Log.Warn("Failed to emit follow notification",
			logger.WithUserID(recipientID), logger.WithSource("notifications"), zap.Error(err))
	}
}

// Followers returns snapshots of everyone following uid. Missing profiles are skipped.
func (s *Service) Followers(ctx context.Context, uid string) ([]models.UserSnapshot, error) {
	u, err := s.User(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.snapshots(ctx, u.Seguidores), nil
}

// Following returns snapshots of everyone uid follows
func (s *Service) Following(ctx context.Context, uid string) ([]models.UserSnapshot, error) {
	u, err := s.User(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.snapshots(ctx, u.Seguindo), nil
}

// snapshots resolves ids in chunks of the "in" filter limit, keeping the
// order of ids
func (s *Service) snapshots(ctx context.Context, ids []string) []models.UserSnapshot {
	found := make(map[string]models.UserSnapshot, len(ids))
	for start := 0; start < len(ids); start += docstore.MaxInValues {
		end := min(start+docstore.MaxInValues, len(ids))
		page, err := s.store.Query(ctx, docstore.From(models.CollUsers).
			Where("uid", docstore.OpIn, ids[start:end]))
		if err != nil {
			logger.Log.Warn("Profile batch lookup failed", logger.WithSource("users"), zap.Error(err))
			continue
		}
		for _, snap := range page.Docs {
			var u models.User
			if err := snap.DataTo(&u); err != nil {
				continue
			}
			u.UID = snap.Ref.ID
			found[u.UID] = u.Snapshot()
		}
	}
	out := make([]models.UserSnapshot, 0, len(found))
	for _, id := range ids {
		if snap, ok := found[id]; ok {
			out = append(out, snap)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
