// Package views keeps live, locally mutable copies of documents the UI
// renders. A view subscribes through the shared subscription manager,
// applies the viewer's mutations optimistically, issues the write and puts
// the previous state back when the write fails. Callbacks run with the
// view's lock held and must not call back into the view. Nothing is emitted
// after Close.
package views

import (
	"context"

	"github.com/cinesync/backend/internal/models"
)

// CommentWriter is the slice of the review service a comment thread needs
type CommentWriter interface {
	DeleteComment(ctx context.Context, reviewID, commentID, uid string) error
	ReconcileCommentCount(ctx context.Context, reviewID string) (int64, bool, error)
}

// ReactionWriter is the slice of the review service a review card needs
type ReactionWriter interface {
	ToggleReaction(ctx context.Context, reviewID, uid, emoji string) (*models.Review, error)
}

func cloneReview(r *models.Review) *models.Review {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Reactions = make(map[string][]string, len(r.Reactions))
	for emoji, uids := range r.Reactions {
		cp.Reactions[emoji] = append([]string(nil), uids...)
	}
	return &cp
}
