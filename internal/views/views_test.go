package views

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/subscriptions"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var errOffline = errors.New("offline")

// flakyWriter forwards to the review service unless fail is set
type flakyWriter struct {
	*reviews.Service
	fail       atomic.Bool
	reconciles atomic.Int32
}

func (w *flakyWriter) ToggleReaction(ctx context.Context, reviewID, uid, emoji string) (*models.Review, error) {
	if w.fail.Load() {
		return nil, errOffline
	}
	return w.Service.ToggleReaction(ctx, reviewID, uid, emoji)
}

func (w *flakyWriter) DeleteComment(ctx context.Context, reviewID, commentID, uid string) error {
	if w.fail.Load() {
		return errOffline
	}
	return w.Service.DeleteComment(ctx, reviewID, commentID, uid)
}

func (w *flakyWriter) ReconcileCommentCount(ctx context.Context, reviewID string) (int64, bool, error) {
	w.reconciles.Add(1)
	return w.Service.ReconcileCommentCount(ctx, reviewID)
}

type ViewsSuite struct {
	suite.Suite
	ctx    context.Context
	store  *docstore.MemoryStore
	svc    *reviews.Service
	writer *flakyWriter
	mgr    *subscriptions.Manager
	review *models.Review
}

func TestViewsSuite(t *testing.T) {
	suite.Run(t, new(ViewsSuite))
}

func (s *ViewsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewMemoryStore()
	s.svc = reviews.NewService(s.store, notifications.NewService(s.store, nil))
	s.writer = &flakyWriter{Service: s.svc}
	s.mgr = subscriptions.NewManager(s.store)
	for _, uid := range []string{"owner", "viewer"} {
		s.Require().NoError(s.store.Create(s.ctx, docstore.Doc(models.CollUsers, uid), models.NewUser(uid, uid, "", uid)))
	}
	r, err := s.svc.CreateReview(s.ctx, "owner", reviews.Input{MovieID: 27205, MediaType: "movie", MovieTitle: "Inception", Nota: 8})
	s.Require().NoError(err)
	s.review = r
}

func (s *ViewsSuite) TearDownTest() {
	s.mgr.Close()
}

func (s *ViewsSuite) comment(uid, text string) *models.Comment {
	c, err := s.svc.AddComment(s.ctx, s.review.ID, uid, text)
	s.Require().NoError(err)
	return c
}

func (s *ViewsSuite) storedCount() int64 {
	r, err := s.svc.Review(s.ctx, s.review.ID)
	s.Require().NoError(err)
	return r.CommentCount
}

func (s *ViewsSuite) TestReviewCardToggleConfirmed() {
	card := OpenReviewCard(s.mgr, s.writer, s.review.ID, "viewer", nil)
	defer card.Close()
	s.Eventually(func() bool { return card.Review() != nil }, waitFor, tick)

	s.Require().NoError(card.ToggleReaction(s.ctx, "❤️"))
	s.Equal(int64(1), card.Review().LikeCount)
	s.Eventually(func() bool {
		r := card.Review()
		return r != nil && len(r.Reactions["❤️"]) == 1
	}, waitFor, tick)

	stored, err := s.svc.Review(s.ctx, s.review.ID)
	s.Require().NoError(err)
	s.Equal([]string{"viewer"}, stored.Reactions["❤️"])
}

func (s *ViewsSuite) TestReviewCardRollsBackFailedToggle() {
	var mu sync.Mutex
	var likeCounts []int64
	card := OpenReviewCard(s.mgr, s.writer, s.review.ID, "viewer", func(r *models.Review) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil {
			likeCounts = append(likeCounts, r.LikeCount)
		}
	})
	defer card.Close()
	s.Eventually(func() bool { return card.Review() != nil }, waitFor, tick)

	s.writer.fail.Store(true)
	s.ErrorIs(card.ToggleReaction(s.ctx, "🔥"), errOffline)

	r := card.Review()
	s.Equal(int64(0), r.LikeCount)
	s.Empty(r.Reactions["🔥"])

	mu.Lock()
	defer mu.Unlock()
	// listener, optimistic, rollback
	s.Equal([]int64{0, 1, 0}, likeCounts)
}

func (s *ViewsSuite) TestReviewCardMissingReview() {
	card := OpenReviewCard(s.mgr, s.writer, "missing", "viewer", nil)
	defer card.Close()
	s.ErrorIs(card.ToggleReaction(s.ctx, "❤️"), docstore.ErrNotFound)
}

func (s *ViewsSuite) TestCommentThreadOptimisticDelete() {
	a := s.comment("viewer", "first")
	s.comment("owner", "second")

	thread := OpenCommentThread(s.mgr, s.writer, s.review.ID, "viewer", nil)
	defer thread.Close()
	s.Eventually(func() bool { return len(thread.State().Comments) == 2 }, waitFor, tick)

	s.Require().NoError(thread.Delete(s.ctx, a.ID))
	s.Len(thread.State().Comments, 1)
	s.Equal(int64(1), s.storedCount())
	s.Eventually(func() bool { return thread.State().CommentCount == 1 }, waitFor, tick)
}

func (s *ViewsSuite) TestCommentThreadRestoresFailedDelete() {
	a := s.comment("viewer", "first")

	var mu sync.Mutex
	var sizes []int
	thread := OpenCommentThread(s.mgr, s.writer, s.review.ID, "viewer", func(st ThreadState) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(st.Comments))
	})
	defer thread.Close()
	s.Eventually(func() bool { return len(thread.State().Comments) == 1 }, waitFor, tick)

	s.writer.fail.Store(true)
	s.ErrorIs(thread.Delete(s.ctx, a.ID), errOffline)
	s.Len(thread.State().Comments, 1)

	mu.Lock()
	defer mu.Unlock()
	n := len(sizes)
	s.Require().GreaterOrEqual(n, 2)
	s.Equal([]int{0, 1}, sizes[n-2:])
}

func (s *ViewsSuite) TestCommentThreadHealsDrift() {
	for _, text := range []string{"a", "b", "c"} {
		s.comment("owner", text)
	}
	s.Require().NoError(s.store.Update(s.ctx, docstore.Doc(models.CollReviews, s.review.ID),
		docstore.Update{Path: "commentCount", Value: int64(5)}))

	thread := OpenCommentThread(s.mgr, s.writer, s.review.ID, "viewer", nil)
	defer thread.Close()

	s.Eventually(func() bool { return s.storedCount() == 3 }, waitFor, tick)
	s.Eventually(func() bool { return thread.State().CommentCount == 3 }, waitFor, tick)
}

func (s *ViewsSuite) TestCommentThreadWaitsForFocus() {
	s.comment("owner", "a")

	thread := OpenCommentThread(s.mgr, s.writer, s.review.ID, "viewer", nil)
	defer thread.Close()
	s.Eventually(func() bool {
		st := thread.State()
		return len(st.Comments) == 1 && st.CommentCount == 1
	}, waitFor, tick)

	thread.SetPresence(false, true)
	s.Require().NoError(s.store.Update(s.ctx, docstore.Doc(models.CollReviews, s.review.ID),
		docstore.Update{Path: "commentCount", Value: int64(4)}))
	s.Eventually(func() bool { return thread.State().CommentCount == 4 }, waitFor, tick)
	s.Never(func() bool { return s.writer.reconciles.Load() > 0 }, 100*time.Millisecond, tick)

	thread.SetPresence(true, false)
	s.Never(func() bool { return s.writer.reconciles.Load() > 0 }, 50*time.Millisecond, tick)

	thread.SetPresence(true, true)
	s.Eventually(func() bool { return s.storedCount() == 1 }, waitFor, tick)
	thread.WaitHeal()
}

func (s *ViewsSuite) TestCloseSuppressesCallbacks() {
	var calls atomic.Int32
	thread := OpenCommentThread(s.mgr, s.writer, s.review.ID, "viewer", func(ThreadState) { calls.Add(1) })
	s.Eventually(func() bool { return calls.Load() >= 2 }, waitFor, tick)
	thread.Close()
	before := calls.Load()

	s.comment("owner", "late")
	s.Never(func() bool { return calls.Load() != before }, 100*time.Millisecond, tick)
	s.Equal(0, s.mgr.Active())
}

func TestUnreadListView(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	mgr := subscriptions.NewManager(store)
	defer mgr.Close()
	for _, uid := range []string{"a", "b"} {
		assert.NoError(t, store.Create(ctx, docstore.Doc(models.CollUsers, uid), models.NewUser(uid, uid, "", uid)))
	}
	svc := notifications.NewService(store, nil)

	view := OpenUnread(mgr, "a", nil)
	defer view.Close()

	n, err := svc.Notify(ctx, "a", "b", models.NotificationFollow, notifications.Payload{})
	assert.NoError(t, err)
	assert.Eventually(t, func() bool { return len(view.Items()) == 1 }, waitFor, tick)
	assert.Equal(t, n.ID, view.Items()[0].ID)

	assert.NoError(t, svc.MarkRead(ctx, "a", n.ID))
	assert.Eventually(t, func() bool { return len(view.Items()) == 0 }, waitFor, tick)
}
