package reviews

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
)

// CommentsCollection is the comment subcollection path of a review
func CommentsCollection(reviewID string) string {
	return docstore.Doc(models.CollReviews, reviewID).Sub("comments")
}

// CommentsQuery is the oldest-first thread query of a review
func CommentsQuery(reviewID string) docstore.Query {
	return docstore.From(CommentsCollection(reviewID)).OrderBy("timestamp", docstore.Asc)
}

// ValidateComment trims text and enforces the length bounds
func ValidateComment(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return "", ErrCommentTooLong
	}
	return text, nil
}

// Comments returns the whole thread of a review, oldest first
func (s *Service) Comments(ctx context.Context, reviewID string) ([]models.Comment, error) {
	page, err := s.store.Query(ctx, CommentsQuery(reviewID))
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(page.Docs))
	for _, snap := range page.Docs {
		var c models.Comment
		if err := snap.DataTo(&c); err != nil {
			continue
		}
		c.ID = snap.Ref.ID
		out = append(out, c)
	}
	return out, nil
}

// AddComment writes the comment with the author's snapshot, and bumps the
// review's commentCount and the author's comments counter in the same batch
func (s *Service) AddComment(ctx context.Context, reviewID, uid, text string) (*models.Comment, error) {
	text, err := ValidateComment(text)
	if err != nil {
		return nil, err
	}
	review, err := s.Review(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	authorSnap, err := s.store.Get(ctx, docstore.Doc(models.CollUsers, uid))
	if err != nil {
		return nil, err
	}
	var author models.User
	if err := authorSnap.DataTo(&author); err != nil {
		return nil, err
	}
	author.UID = uid

	c := &models.Comment{
		ID:         docstore.NewID(),
		Text:       text,
		UIDAutor:   uid,
		AuthorInfo: author.Snapshot(),
		Timestamp:  s.now().UTC(),
	}
	err = s.store.Batch().
		Create(docstore.Doc(CommentsCollection(reviewID), c.ID), c).
		Update(docstore.Doc(models.CollReviews, reviewID),
			docstore.Update{Path: "commentCount", Value: docstore.Increment(1)}).
		Update(docstore.Doc(models.CollUsers, uid),
			docstore.Update{Path: "stats." + models.StatComments, Value: docstore.Increment(1)}).
		Commit(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordComment("review")

	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, review.UIDAutor, uid, models.NotificationComment,
			notifications.Payload{ReviewID: reviewID, Text: text}); err != nil {
			logger.Log.Warn("Failed to emit comment notification", logger.WithReviewID(reviewID), zap.Error(err))
		}
	}
	return c, nil
}

// DeleteComment removes a comment. The comment author and the review owner
// may delete it.
func (s *Service) DeleteComment(ctx context.Context, reviewID, commentID, uid string) error {
	review, err := s.Review(ctx, reviewID)
	if err != nil {
		return err
	}
	ref := docstore.Doc(CommentsCollection(reviewID), commentID)
	snap, err := s.store.Get(ctx, ref)
	if err != nil {
		return err
	}
	author, _ := snap.Data["uidAutor"].(string)
	if author != uid && review.UIDAutor != uid {
		return ErrNotOwner
	}
	batch := s.store.Batch().
		Delete(ref).
		Update(docstore.Doc(models.CollReviews, reviewID),
			docstore.Update{Path: "commentCount", Value: docstore.Increment(-1)})
	if author != "" {
		batch.Update(docstore.Doc(models.CollUsers, author),
			docstore.Update{Path: "stats." + models.StatComments, Value: docstore.Increment(-1)})
	}
	return batch.Commit(ctx)
}

// ReconcileCommentCount rewrites commentCount to the number of comment
// documents when they differ. The comments themselves are never touched.
// Returns the actual count and whether the counter was corrected.
func (s *Service) ReconcileCommentCount(ctx context.Context, reviewID string) (int64, bool, error) {
	actual, err := s.store.Count(ctx, docstore.From(CommentsCollection(reviewID)))
	if err != nil {
		return 0, false, err
	}
	ref := docstore.Doc(models.CollReviews, reviewID)
	fixed := false
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		fixed = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		stored, _ := snap.Data["commentCount"].(int64)
		if stored == actual {
			return nil
		}
		fixed = true
		return tx.Update(ref, docstore.Update{Path: "commentCount", Value: actual})
	})
	if err != nil {
		return 0, false, err
	}
	if fixed {
		logger.Log.Info("Corrected drifted comment count",
			logger.WithReviewID(reviewID), zap.Int64("count", actual))
	}
	return actual, fixed, nil
}

// ReconcileAll runs ReconcileCommentCount over every review and returns how
// many were corrected. Individual failures are logged and skipped.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	fixedTotal := 0
	var after *docstore.Cursor
	for {
		page, err := s.store.Query(ctx, docstore.From(models.CollReviews).
			OrderBy("timestamp", docstore.Asc).Limit(200).StartAfter(after))
		if err != nil {
			return fixedTotal, err
		}
		for _, snap := range page.Docs {
			if _, fixed, err := s.ReconcileCommentCount(ctx, snap.Ref.ID); err != nil {
				logger.Log.Warn("Comment count reconcile failed", logger.WithReviewID(snap.Ref.ID), zap.Error(err))
			} else if fixed {
				fixedTotal++
			}
		}
		if !page.Full {
			return fixedTotal, nil
		}
		after = page.Next
	}
}
