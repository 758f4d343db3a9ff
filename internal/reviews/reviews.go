// Package reviews manages reviews, their reactions and comment threads
package reviews

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
)

const (
	MinRating        = 0.5
	MaxRating        = 10
	MaxReviewLength  = 5000
	MaxCommentLength = 500
	maxEmojiBytes    = 32
)

var (
	ErrInvalidRating  = apierrors.NewField("nota", "rating must be between 0.5 and 10 in steps of 0.5")
	ErrInvalidMovie   = apierrors.NewField("movieId", "a catalog title is required")
	ErrReviewTooLong  = apierrors.NewField("comentario", "review text is too long")
	ErrInvalidEmoji   = apierrors.NewField("emoji", "invalid reaction")
	ErrEmptyComment   = apierrors.NewField("text", "comment cannot be empty")
	ErrCommentTooLong = apierrors.NewField("text", "comment must be at most 500 characters")
	ErrNotOwner       = apierrors.New(apierrors.ErrForbidden, "only the owner can do this")
)

// Input is the payload of a new review
type Input struct {
	MovieID    int64   `json:"movieId"`
	MediaType  string  `json:"mediaType"`
	MovieTitle string  `json:"movieTitle"`
	PosterPath string  `json:"poster_path"`
	Nota       float64 `json:"nota"`
	Comentario string  `json:"comentario"`
}

// Service manages reviews/{id} and reviews/{id}/comments
type Service struct {
	store    docstore.Store
	notifier notifications.Notifier
	now      func() time.Time
}

// NewService creates a review service. notifier may be nil.
func NewService(store docstore.Store, notifier notifications.Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// ValidRating reports whether nota is within range and on a half step
func ValidRating(nota float64) bool {
	if nota < MinRating || nota > MaxRating {
		return false
	}
	return math.Mod(nota*2, 1) == 0
}

// CreateReview writes the review and the author's reviews counter in one batch
func (s *Service) CreateReview(ctx context.Context, authorID string, in Input) (*models.Review, error) {
	if !ValidRating(in.Nota) {
		metrics.RecordValidationFailure("nota", "range")
		return nil, ErrInvalidRating
	}
	if in.MovieID <= 0 {
		return nil, ErrInvalidMovie
	}
	in.Comentario = strings.TrimSpace(in.Comentario)
	if utf8.RuneCountInString(in.Comentario) > MaxReviewLength {
		return nil, ErrReviewTooLong
	}

	r := &models.Review{
		ID:         docstore.NewID(),
		UIDAutor:   authorID,
		MovieID:    in.MovieID,
		MediaType:  in.MediaType,
		MovieTitle: in.MovieTitle,
		PosterPath: in.PosterPath,
		Nota:       in.Nota,
		Comentario: in.Comentario,
		Reactions:  map[string][]string{},
		Timestamp:  s.now().UTC(),
	}
	err := s.store.Batch().
		Create(docstore.Doc(models.CollReviews, r.ID), r).
		Update(docstore.Doc(models.CollUsers, authorID),
			docstore.Update{Path: "stats." + models.StatReviews, Value: docstore.Increment(1)}).
		Commit(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordReviewCreated(in.MediaType)
	return r, nil
}

// Review loads one review
func (s *Service) Review(ctx context.Context, id string) (*models.Review, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollReviews, id))
	if err != nil {
		return nil, err
	}
	return decodeReview(snap)
}

// ByAuthor returns the newest reviews of one user
func (s *Service) ByAuthor(ctx context.Context, uid string, limit int) ([]*models.Review, error) {
	return s.list(ctx, docstore.From(models.CollReviews).
		Where("uidAutor", docstore.OpEqual, uid).
		OrderBy("timestamp", docstore.Desc).
		Limit(clampLimit(limit)))
}

// ForTitle returns the newest reviews of one catalog title
func (s *Service) ForTitle(ctx context.Context, movieID int64, limit int) ([]*models.Review, error) {
	return s.list(ctx, docstore.From(models.CollReviews).
		Where("movieId", docstore.OpEqual, movieID).
		OrderBy("timestamp", docstore.Desc).
		Limit(clampLimit(limit)))
}

func (s *Service) list(ctx context.Context, q docstore.Query) ([]*models.Review, error) {
	page, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Review, 0, len(page.Docs))
	for _, snap := range page.Docs {
		r, err := decodeReview(snap)
		if err != nil {
			logger.Log.Warn("Skipping undecodable review", logger.WithReviewID(snap.Ref.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteReview removes an owned review and decrements the counter in the same
// batch. Comments are removed afterwards on a best effort basis.
func (s *Service) DeleteReview(ctx context.Context, uid, reviewID string) error {
	r, err := s.Review(ctx, reviewID)
	if err != nil {
		return err
	}
	if r.UIDAutor != uid {
		return ErrNotOwner
	}
	ref := docstore.Doc(models.CollReviews, reviewID)
	err = s.store.Batch().
		Delete(ref).
		Update(docstore.Doc(models.CollUsers, uid),
			docstore.Update{Path: "stats." + models.StatReviews, Value: docstore.Increment(-1)}).
		Commit(ctx)
	if err != nil {
		return err
	}
	if err := s.purgeComments(ctx, ref); err != nil {
		logger.Log.Warn("Failed to purge comments of deleted review", logger.WithReviewID(reviewID), zap.Error(err))
	}
	return nil
}

func (s *Service) purgeComments(ctx context.Context, ref docstore.DocRef) error {
	page, err := s.store.Query(ctx, docstore.From(ref.Sub("comments")))
	if err != nil {
		return err
	}
	if len(page.Docs) == 0 {
		return nil
	}
	batch := s.store.Batch()
	for _, snap := range page.Docs {
		batch.Delete(snap.Ref)
	}
	return batch.Commit(ctx)
}

// ToggleReaction sets, moves or clears uid's reaction. The uid is removed from
// every other bucket first so it appears in at most one. Returns the review as
// committed.
func (s *Service) ToggleReaction(ctx context.Context, reviewID, uid, emoji string) (*models.Review, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes || strings.ContainsAny(emoji, "./") {
		return nil, ErrInvalidEmoji
	}
	ref := docstore.Doc(models.CollReviews, reviewID)

	var out *models.Review
	var action string
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		r, err := decodeReview(snap)
		if err != nil {
			return err
		}
		action = ApplyReaction(r, uid, emoji)
		out = r
		return tx.Update(ref,
			docstore.Update{Path: "reactions", Value: r.Reactions},
			docstore.Update{Path: "likeCount", Value: r.LikeCount},
		)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordReaction(action)
	if action != ReactionRemoved && s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, out.UIDAutor, uid, models.NotificationLike,
			notifications.Payload{ReviewID: reviewID, Text: emoji}); err != nil {
			logger.Log.Warn("Failed to emit like notification", logger.WithReviewID(reviewID), zap.Error(err))
		}
	}
	return out, nil
}

// Reaction toggle outcomes
const (
	ReactionAdded    = "added"
	ReactionRemoved  = "removed"
	ReactionSwitched = "switched"
)

// ApplyReaction mutates r in place: uid leaves every bucket, and joins emoji
// unless it was already there. likeCount is recomputed.
func ApplyReaction(r *models.Review, uid, emoji string) string {
	if r.Reactions == nil {
		r.Reactions = map[string][]string{}
	}
	prev, had := r.ReactionOf(uid)
	for e, uids := range r.Reactions {
		kept := uids[:0:0]
		for _, u := range uids {
			if u != uid {
				kept = append(kept, u)
			}
		}
		if len(kept) == 0 {
			delete(r.Reactions, e)
			continue
		}
		r.Reactions[e] = kept
	}

	action := ReactionAdded
	switch {
	case had && prev == emoji:
		action = ReactionRemoved
	case had:
		action = ReactionSwitched
	}
	if action != ReactionRemoved {
		r.Reactions[emoji] = append(r.Reactions[emoji], uid)
	}
	r.LikeCount = int64(len(r.Voters()))
	return action
}

func decodeReview(snap *docstore.Snapshot) (*models.Review, error) {
	var r models.Review
	if err := snap.DataTo(&r); err != nil {
		return nil, err
	}
	r.ID = snap.Ref.ID
	return &r, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
