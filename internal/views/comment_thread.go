package views

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/subscriptions"
)

const healTimeout = 10 * time.Second

// ThreadState is what a comment thread renders
type ThreadState struct {
	Comments     []models.Comment `json:"comments"`
	CommentCount int64            `json:"commentCount"`
}

// CommentThread is a live comment list of one review with optimistic
// deletes. While the view is focused and online it repairs a commentCount
// that disagrees with the number of comments it sees.
type CommentThread struct {
	reviewID string
	viewerID string
	writer   CommentWriter
	onChange func(ThreadState)

	mu            sync.Mutex
	comments      []models.Comment
	commentsReady bool
	count         int64
	countReady    bool
	pending       map[string]bool
	removed       map[string]bool
	focused       bool
	online        bool
	healing       bool
	closed        bool
	handles       []subscriptions.Handle
	healDone      chan struct{}
}

// OpenCommentThread starts listening to the review and its comments. The
// view starts focused and online.
func OpenCommentThread(mgr *subscriptions.Manager, writer CommentWriter, reviewID, viewerID string, onChange func(ThreadState)) *CommentThread {
	t := &CommentThread{
		reviewID: reviewID,
		viewerID: viewerID,
		writer:   writer,
		onChange: onChange,
		pending:  make(map[string]bool),
		removed:  make(map[string]bool),
		focused:  true,
		online:   true,
	}
	hs := []subscriptions.Handle{
		mgr.SubscribeDoc(docstore.Doc(models.CollReviews, reviewID), t.onReview),
		mgr.SubscribeQuery(reviews.CommentsQuery(reviewID), t.onComments),
	}
	t.mu.Lock()
	t.handles = hs
	closed := t.closed
	t.mu.Unlock()
	if closed {
		for _, h := range hs {
			h.Stop()
		}
	}
	return t
}

func (t *CommentThread) onReview(snap *docstore.Snapshot, err error) {
	if err != nil {
		logger.Log.Warn("Review listener failed", logger.WithReviewID(t.reviewID), zap.Error(err))
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if snap == nil {
		t.count, t.countReady = 0, false
	} else {
		t.count, _ = snap.Data["commentCount"].(int64)
		t.countReady = true
	}
	t.emit()
	t.checkDrift()
}

func (t *CommentThread) onComments(docs []*docstore.Snapshot, err error) {
	if err != nil {
		logger.Log.Warn("Comment listener failed", logger.WithReviewID(t.reviewID), zap.Error(err))
		return
	}
	comments := make([]models.Comment, 0, len(docs))
	for _, snap := range docs {
		var c models.Comment
		if err := snap.DataTo(&c); err != nil {
			continue
		}
		c.ID = snap.Ref.ID
		comments = append(comments, c)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.comments = comments
	t.commentsReady = true
	for id := range t.removed {
		if !containsComment(comments, id) {
			delete(t.removed, id)
		}
	}
	t.emit()
	t.checkDrift()
}

func containsComment(comments []models.Comment, id string) bool {
	for _, c := range comments {
		if c.ID == id {
			return true
		}
	}
	return false
}

// visible hides comments whose delete is in flight or not yet reflected by
// the listener
func (t *CommentThread) visible() []models.Comment {
	out := make([]models.Comment, 0, len(t.comments))
	for _, c := range t.comments {
		if !t.pending[c.ID] && !t.removed[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (t *CommentThread) emit() {
	if t.closed || t.onChange == nil {
		return
	}
	t.onChange(t.state())
}

func (t *CommentThread) state() ThreadState {
	count := t.count - int64(len(t.pending))
	if count < 0 {
		count = 0
	}
	return ThreadState{Comments: t.visible(), CommentCount: count}
}

// State returns the current local state
func (t *CommentThread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state()
}

// SetPresence reports whether the view has focus and the client is online
func (t *CommentThread) SetPresence(focused, online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focused, t.online = focused, online
	t.checkDrift()
}

func (t *CommentThread) checkDrift() {
	if t.closed || t.healing || !t.focused || !t.online || !t.countReady || !t.commentsReady || len(t.pending) > 0 || len(t.removed) > 0 {
		return
	}
	actual := int64(len(t.comments))
	if t.count == actual {
		return
	}
	logger.Log.Info("Comment count drift observed",
		logger.WithReviewID(t.reviewID), zap.Int64("stored", t.count), zap.Int64("observed", actual))
	t.healing = true
	done := make(chan struct{})
	t.healDone = done
	go t.heal(done)
}

func (t *CommentThread) heal(done chan struct{}) {
	defer close(done)
	ctx, cancel := context.WithTimeout(context.Background(), healTimeout)
	defer cancel()
	if _, _, err := t.writer.ReconcileCommentCount(ctx, t.reviewID); err != nil {
		logger.Log.Warn("Comment count self-heal failed", logger.WithReviewID(t.reviewID), zap.Error(err))
	}
	t.mu.Lock()
	t.healing = false
	t.mu.Unlock()
}

// WaitHeal blocks until a running self-heal finishes
func (t *CommentThread) WaitHeal() {
	t.mu.Lock()
	done := t.healDone
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Delete removes the comment from the local list at once, issues the
// delete, and brings the comment back if the delete fails
func (t *CommentThread) Delete(ctx context.Context, commentID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return docstore.ErrNotFound
	}
	t.pending[commentID] = true
	t.emit()
	t.mu.Unlock()

	err := t.writer.DeleteComment(ctx, t.reviewID, commentID, t.viewerID)

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, commentID)
	if err == nil && containsComment(t.comments, commentID) {
		t.removed[commentID] = true
	}
	t.emit()
	t.checkDrift()
	return err
}

// Close stops both listeners and suppresses further callbacks
func (t *CommentThread) Close() {
	t.mu.Lock()
	t.closed = true
	hs := t.handles
	t.mu.Unlock()
	for _, h := range hs {
		h.Stop()
	}
}
