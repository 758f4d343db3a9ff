package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/cache"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

// countingStore counts reads so tests can assert short-circuits
type countingStore struct {
	docstore.Store
	queries atomic.Int32
	gets    atomic.Int32
}

func (s *countingStore) Query(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	s.queries.Add(1)
	return s.Store.Query(ctx, q)
}

func (s *countingStore) Get(ctx context.Context, ref docstore.DocRef) (*docstore.Snapshot, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, ref)
}

type stubSynth struct {
	err   error
	calls atomic.Int32
}

func (s *stubSynth) Synthesize(ctx context.Context) (*models.Battle, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Battle{
		ID:     fmt.Sprintf("%d_vs_%d", n, n+1000),
		MovieA: models.BattleMovie{ID: int64(n)}, MovieB: models.BattleMovie{ID: int64(n + 1000)},
		Timestamp: time.Unix(1, 0),
	}, nil
}

type FeedSuite struct {
	suite.Suite
	ctx   context.Context
	mem   *docstore.MemoryStore
	store *countingStore
	synth *stubSynth
	agg   *Aggregator
	base  time.Time
}

func TestFeedSuite(t *testing.T) {
	suite.Run(t, new(FeedSuite))
}

func (s *FeedSuite) SetupTest() {
	s.ctx = context.Background()
	s.mem = docstore.NewMemoryStore()
	s.store = &countingStore{Store: s.mem}
	s.synth = &stubSynth{}
	s.agg = NewAggregator(s.store, s.synth)
	s.agg.SetCoin(func() bool { return false })
	s.base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, uid := range []string{"viewer", "alice", "bob"} {
		s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollUsers, uid), models.NewUser(uid, uid, "", uid)))
	}
}

func (s *FeedSuite) addReview(id, author string, minutes int) {
	r := models.Review{ID: id, UIDAutor: author, MovieID: 1, Nota: 7, Timestamp: s.base.Add(time.Duration(minutes) * time.Minute)}
	s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollReviews, id), r))
}

func (s *FeedSuite) addList(id, author string, minutes int) {
	l := models.List{ID: id, UIDAutor: author, Title: "t", Timestamp: s.base.Add(time.Duration(minutes) * time.Minute)}
	s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollLists, id), l))
}

func (s *FeedSuite) follow(uid string, ids ...string) {
	s.Require().NoError(s.mem.Update(s.ctx, docstore.Doc(models.CollUsers, uid),
		docstore.Update{Path: "seguindo", Value: ids}))
}

func keys(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key
	}
	return out
}

func (s *FeedSuite) TestMergesSortedDescending() {
	s.addReview("r1", "alice", 1)
	s.addList("l1", "bob", 2)
	s.addReview("r2", "bob", 3)
	s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollAchievements, "a1"),
		models.Achievement{ID: "a1", UIDAutor: "alice", BadgeID: "critic_bronze", Timestamp: s.base.Add(4 * time.Minute)}))

	sess := NewSession("s1", "viewer", ModeEveryone)
	page := s.agg.LoadMore(s.ctx, sess)

	// fewer than ten items: battle appended at the end
	s.Require().Len(page.Items, 5)
	s.Equal([]string{"achievement:a1", "review:r2", "list:l1", "review:r1"}, keys(page.Items[:4]))
	s.Equal(KindBattle, page.Items[4].Kind)
	s.True(page.Items[4].Synthetic)
	s.False(page.HasMore)
	s.Equal("alice", page.Items[0].Author.UID)
}

func (s *FeedSuite) TestEveryoneModeHidesOwnItems() {
	s.addReview("mine", "viewer", 5)
	s.addReview("r1", "alice", 1)
	s.synth.err = errors.New("catalog down")

	page := s.agg.LoadMore(s.ctx, NewSession("s1", "viewer", ModeEveryone))
	s.Equal([]string{"review:r1"}, keys(page.Items))
}

func (s *FeedSuite) TestFollowedModeWithoutFollowsShortCircuits() {
	s.addReview("r1", "alice", 1)
	sess := NewSession("s1", "viewer", ModeFollowed)

	page := s.agg.LoadMore(s.ctx, sess)
	s.Empty(page.Items)
	s.False(page.HasMore)
	s.Equal(int32(0), s.store.queries.Load())
	s.Equal(int32(0), s.synth.calls.Load())
}

func (s *FeedSuite) TestFollowedModeOnlyFollowedAuthors() {
	s.addReview("r1", "alice", 1)
	s.addReview("r2", "bob", 2)
	s.follow("viewer", "alice")
	s.synth.err = errors.New("catalog down")

	page := s.agg.LoadMore(s.ctx, NewSession("s1", "viewer", ModeFollowed))
	s.Equal([]string{"review:r1"}, keys(page.Items))
}

func (s *FeedSuite) TestPaginationNeverRepeatsItems() {
	for i := 0; i < 20; i++ {
		s.addReview(fmt.Sprintf("r%02d", i), "alice", i)
	}
	for i := 0; i < 17; i++ {
		s.addList(fmt.Sprintf("l%02d", i), "bob", i)
	}
	sess := NewSession("s1", "viewer", ModeEveryone)

	first := s.agg.LoadMore(s.ctx, sess)
	s.True(first.HasMore)
	// 15 reviews + 15 lists, battle spliced at index 10
	s.Require().Len(first.Items, 31)
	s.Equal(KindBattle, first.Items[BattleSlot].Kind)

	second := s.agg.LoadMore(s.ctx, sess)
	s.False(second.HasMore)

	seen := make(map[string]bool)
	for _, it := range append(first.Items, second.Items...) {
		s.False(seen[it.Key], "duplicate %s", it.Key)
		seen[it.Key] = true
	}
	s.Len(seen, 20+17+2)
}

func (s *FeedSuite) TestSupplementarySourcesDoNotGateHasMore() {
	s.agg.SetCoin(func() bool { return true })
	for i := 0; i < 20; i++ {
		s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollAchievements, fmt.Sprintf("a%02d", i)),
			models.Achievement{ID: fmt.Sprintf("a%02d", i), UIDAutor: "alice", BadgeID: "critic_bronze", Timestamp: s.base.Add(time.Duration(i) * time.Minute)}))
	}
	s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollBattles, "1_vs_2"),
		models.Battle{ID: "1_vs_2", MovieA: models.BattleMovie{ID: 1}, MovieB: models.BattleMovie{ID: 2}, Timestamp: s.base}))
	s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollBattles, "3_vs_4"),
		models.Battle{ID: "3_vs_4", MovieA: models.BattleMovie{ID: 3}, MovieB: models.BattleMovie{ID: 4}, Timestamp: s.base.Add(time.Minute)}))
	for i := 0; i < 14; i++ {
		s.addReview(fmt.Sprintf("r%02d", i), "alice", i)
		s.addList(fmt.Sprintf("l%02d", i), "bob", i)
	}

	page := s.agg.LoadMore(s.ctx, NewSession("s1", "viewer", ModeEveryone))
	// 14 reviews + 14 lists + a full page of 15 achievements + one stored battle
	s.Len(page.Items, 14+14+15+1)
	s.False(page.HasMore)
	s.Equal(int32(0), s.synth.calls.Load())
}

func (s *FeedSuite) TestDropsOrphanedItems() {
	s.addReview("r1", "alice", 1)
	s.addReview("ghost", "deleted-user", 2)
	s.synth.err = errors.New("catalog down")

	page := s.agg.LoadMore(s.ctx, NewSession("s1", "viewer", ModeEveryone))
	s.Equal([]string{"review:r1"}, keys(page.Items))
}

func (s *FeedSuite) TestContinuesWhenCycleYieldsNothingNew() {
	s.agg.setPageSize(2)
	// two full pages of the viewer's own reviews, then one visible review
	s.addReview("own1", "viewer", 10)
	s.addReview("own2", "viewer", 9)
	s.addReview("own3", "viewer", 8)
	s.addReview("own4", "viewer", 7)
	s.addReview("r1", "alice", 1)
	s.synth.err = errors.New("catalog down")

	page := s.agg.LoadMore(s.ctx, NewSession("s1", "viewer", ModeEveryone))
	s.Equal([]string{"review:r1"}, keys(page.Items))
	s.False(page.HasMore)
}

func (s *FeedSuite) TestStoredBattleCoin() {
	s.agg.SetCoin(func() bool { return true })
	s.addReview("r1", "alice", 1)
	s.Require().NoError(s.mem.Create(s.ctx, docstore.Doc(models.CollBattles, "1_vs_2"),
		models.Battle{ID: "1_vs_2", MovieA: models.BattleMovie{ID: 1}, MovieB: models.BattleMovie{ID: 2}, Timestamp: s.base}))

	sess := NewSession("s1", "viewer", ModeEveryone)
	page := s.agg.LoadMore(s.ctx, sess)
	s.Require().Len(page.Items, 2)
	s.Equal("battle:1_vs_2", page.Items[1].Key)
	s.False(page.Items[1].Synthetic)
	s.Equal(int32(0), s.synth.calls.Load())
	s.NotEmpty(sess.Cursors[KindBattle])
}

func (s *FeedSuite) TestSynthesisFailureSkipsBattle() {
	s.addReview("r1", "alice", 1)
	s.synth.err = errors.New("catalog down")
	page := s.agg.LoadMore(s.ctx, NewSession("s1", "viewer", ModeEveryone))
	for _, it := range page.Items {
		s.NotEqual(KindBattle, it.Kind)
	}
}

func TestSplice(t *testing.T) {
	mk := func(n int) []Item {
		out := make([]Item, n)
		for i := range out {
			out[i] = Item{Key: fmt.Sprint(i)}
		}
		return out
	}
	b := Item{Key: "battle"}

	assert.Equal(t, "battle", splice(mk(3), b, BattleSlot)[3].Key)
	got := splice(mk(12), b, BattleSlot)
	require.Len(t, got, 13)
	assert.Equal(t, "battle", got[10].Key)
	assert.Equal(t, "10", got[11].Key)
	got = splice(mk(10), b, BattleSlot)
	assert.Equal(t, "battle", got[10].Key)
}

func TestEpochSeconds(t *testing.T) {
	assert.Equal(t, int64(0), epochSeconds(nil))
	assert.Equal(t, int64(0), epochSeconds("yesterday"))
	assert.Equal(t, int64(60), epochSeconds(time.Unix(60, 0)))
}

func TestModeChangeResetsSession(t *testing.T) {
	sess := NewSession("s1", "viewer", ModeEveryone)
	sess.Cursors[KindReview] = "abc"
	sess.SeenKeys = []string{"review:r1"}

	sess.SetMode(ModeEveryone)
	assert.Equal(t, "abc", sess.Cursors[KindReview])

	sess.SetMode(ModeFollowed)
	assert.Empty(t, sess.Cursors)
	assert.Empty(t, sess.SeenKeys)
	assert.True(t, sess.HasMore)
}

func TestServiceSessions(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	require.NoError(t, mem.Create(ctx, docstore.Doc(models.CollUsers, "alice"), models.NewUser("alice", "Alice", "", "alice")))
	require.NoError(t, mem.Create(ctx, docstore.Doc(models.CollReviews, "r1"),
		models.Review{ID: "r1", UIDAutor: "alice", Timestamp: time.Now()}))

	svc := NewService(NewAggregator(mem, nil), NewSessionStore(cache.NewMemoryCache("feed"), time.Minute))

	first, err := svc.Load(ctx, "viewer", "", ModeEveryone)
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)
	assert.Len(t, first.Items, 1)

	second, err := svc.Load(ctx, "viewer", first.SessionID, ModeEveryone)
	require.NoError(t, err)
	assert.Empty(t, second.Items)

	_, err = svc.Load(ctx, "intruder", first.SessionID, ModeEveryone)
	assert.ErrorIs(t, err, ErrSessionOwner)

	sess, err := svc.Reset(ctx, "viewer", first.SessionID, ModeEveryone)
	require.NoError(t, err)
	assert.Empty(t, sess.SeenKeys)

	again, err := svc.Load(ctx, "viewer", first.SessionID, ModeEveryone)
	require.NoError(t, err)
	assert.Len(t, again.Items, 1)
}
