package views

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/subscriptions"
)

// ReviewCard is a live review with optimistic reaction toggles. A nil review
// in the callback means the review does not exist (anymore).
type ReviewCard struct {
	reviewID string
	viewerID string
	writer   ReactionWriter
	onChange func(*models.Review)

	mu     sync.Mutex
	review *models.Review
	// bumped on every listener update
	version int
	closed  bool
	handle  subscriptions.Handle
}

// OpenReviewCard starts listening to reviews/{reviewID}
func OpenReviewCard(mgr *subscriptions.Manager, writer ReactionWriter, reviewID, viewerID string, onChange func(*models.Review)) *ReviewCard {
	c := &ReviewCard{reviewID: reviewID, viewerID: viewerID, writer: writer, onChange: onChange}
	h := mgr.SubscribeDoc(docstore.Doc(models.CollReviews, reviewID), c.onSnapshot)
	c.mu.Lock()
	c.handle = h
	closed := c.closed
	c.mu.Unlock()
	if closed {
		h.Stop()
	}
	return c
}

func (c *ReviewCard) onSnapshot(snap *docstore.Snapshot, err error) {
	if err != nil {
		logger.Log.Warn("Review listener failed", logger.WithReviewID(c.reviewID), zap.Error(err))
		return
	}
	var r *models.Review
	if snap != nil {
		r = &models.Review{}
		if err := snap.DataTo(r); err != nil {
			logger.Log.Warn("Undecodable review snapshot", logger.WithReviewID(c.reviewID), zap.Error(err))
			return
		}
		r.ID = snap.Ref.ID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.review = r
	c.version++
	c.emit()
}

func (c *ReviewCard) emit() {
	if c.closed || c.onChange == nil {
		return
	}
	c.onChange(cloneReview(c.review))
}

// Review returns the current local state
func (c *ReviewCard) Review() *models.Review {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneReview(c.review)
}

// ToggleReaction applies the toggle locally, writes it, and restores the
// previous state if the write fails. A listener update that arrived in the
// meantime is authoritative and is kept.
func (c *ReviewCard) ToggleReaction(ctx context.Context, emoji string) error {
	c.mu.Lock()
	if c.closed || c.review == nil {
		c.mu.Unlock()
		return docstore.ErrNotFound
	}
	before := cloneReview(c.review)
	version := c.version
	reviews.ApplyReaction(c.review, c.viewerID, emoji)
	c.emit()
	c.mu.Unlock()

	_, err := c.writer.ToggleReaction(ctx, c.reviewID, c.viewerID, emoji)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	if c.version == version {
		c.review = before
		c.emit()
	}
	c.mu.Unlock()
	return err
}

// Close stops the listener and suppresses further callbacks
func (c *ReviewCard) Close() {
	c.mu.Lock()
	c.closed = true
	h := c.handle
	c.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}
