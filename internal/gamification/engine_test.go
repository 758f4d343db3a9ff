package gamification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	store  *docstore.MemoryStore
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewMemoryStore()
	s.engine = NewEngine(s.store)
	s.engine.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	s.createUser("u1")
}

func (s *EngineSuite) createUser(uid string) {
	u := models.NewUser(uid, "Ana", "Silva", "ana_"+uid)
	s.Require().NoError(s.store.Create(s.ctx, docstore.Doc(models.CollUsers, uid), u))
}

func (s *EngineSuite) user(uid string) models.User {
	snap, err := s.store.Get(s.ctx, docstore.Doc(models.CollUsers, uid))
	s.Require().NoError(err)
	var u models.User
	s.Require().NoError(snap.DataTo(&u))
	return u
}

func (s *EngineSuite) createReview(id, owner string) docstore.ChangeEvent {
	ref := docstore.Doc(models.CollReviews, id)
	review := models.Review{ID: id, UIDAutor: owner, MovieID: 603, Nota: 8, Reactions: map[string][]string{}}
	s.Require().NoError(s.store.Create(s.ctx, ref, review))
	snap, err := s.store.Get(s.ctx, ref)
	s.Require().NoError(err)
	return docstore.ChangeEvent{Ref: ref, Kind: docstore.Created, After: snap.Data}
}

func (s *EngineSuite) TestReviewAwardIsExactlyOnce() {
	ev := s.createReview("r1", "u1")

	first, err := s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	second, err := s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)

	s.Require().Len(first, 1)
	s.Equal(int64(30), first[0].Points)
	s.Require().Len(first[0].NewBadges, 1)
	s.Equal("critic_bronze", first[0].NewBadges[0].ID)
	s.True(second[0].Duplicate)

	u := s.user("u1")
	s.Equal(int64(30), u.XP)
	s.Equal([]string{"critic_bronze"}, u.Badges)

	ach, err := s.store.Get(s.ctx, docstore.Doc(models.CollAchievements, "u1_critic_bronze"))
	s.Require().NoError(err)
	s.Equal("Crítico Iniciante", ach.Data["badgeName"])
}

func (s *EngineSuite) TestListAwardsAndMarathonBadge() {
	for i := 1; i <= 3; i++ {
		ref := docstore.Doc(models.CollLists, fmt.Sprintf("l%d", i))
		s.Require().NoError(s.store.Create(s.ctx, ref, models.List{ID: ref.ID, UIDAutor: "u1", Title: "Top"}))
		snap, err := s.store.Get(s.ctx, ref)
		s.Require().NoError(err)
		_, err = s.engine.Handle(s.ctx, docstore.ChangeEvent{Ref: ref, Kind: docstore.Created, After: snap.Data})
		s.Require().NoError(err)
	}
	u := s.user("u1")
	s.Equal(int64(30), u.XP)
	s.Equal([]string{"marathon_bronze"}, u.Badges)
}

func (s *EngineSuite) TestClubPostAward() {
	ref := docstore.Doc(docstore.Doc(models.CollGroups, "g1").Sub(models.SubPosts), "p1")
	ev := docstore.ChangeEvent{Ref: ref, Kind: docstore.Created, After: map[string]any{"authorId": "u1", "text": "oi"}}

	res, err := s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Require().Len(res, 1)
	s.Equal(int64(15), res[0].Points)

	u := s.user("u1")
	s.Equal(int64(15), u.XP)
	s.Contains(u.Badges, "community_bronze")
}

func (s *EngineSuite) TestFollowersAwardPerNewFollower() {
	before := map[string]any{"seguidores": []any{"a"}}
	followers := []any{"a", "b", "c"}
	s.Require().NoError(s.store.Update(s.ctx, docstore.Doc(models.CollUsers, "u1"),
		docstore.Update{Path: "seguidores", Value: followers}))
	ev := docstore.ChangeEvent{
		Ref: docstore.Doc(models.CollUsers, "u1"), Kind: docstore.Updated,
		Before: before, After: map[string]any{"seguidores": followers},
	}

	res, err := s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Len(res, 2)
	s.Equal(int64(10), s.user("u1").XP)

	// redelivery is a no-op
	_, err = s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Equal(int64(10), s.user("u1").XP)
}

func (s *EngineSuite) TestSocialBadgeAtTenFollowers() {
	var followers []any
	for i := 0; i < 10; i++ {
		followers = append(followers, fmt.Sprintf("f%d", i))
	}
	s.Require().NoError(s.store.Update(s.ctx, docstore.Doc(models.CollUsers, "u1"),
		docstore.Update{Path: "seguidores", Value: followers}))

	_, err := s.engine.Handle(s.ctx, docstore.ChangeEvent{
		Ref: docstore.Doc(models.CollUsers, "u1"), Kind: docstore.Updated,
		Before: map[string]any{"seguidores": []any{}}, After: map[string]any{"seguidores": followers},
	})
	s.Require().NoError(err)

	u := s.user("u1")
	s.Equal(int64(50), u.XP)
	s.Equal([]string{"social_bronze"}, u.Badges)
}

func (s *EngineSuite) TestSocialBadgeLandsOnTheTenthFollowerStep() {
	before := []any{"f0", "f1", "f2", "f3", "f4", "f5", "f6", "f7"}
	followers := append(append([]any{}, before...), "f8", "f9", "f10")
	s.Require().NoError(s.store.Update(s.ctx, docstore.Doc(models.CollUsers, "u1"),
		docstore.Update{Path: "seguidores", Value: followers}))

	res, err := s.engine.Handle(s.ctx, docstore.ChangeEvent{
		Ref: docstore.Doc(models.CollUsers, "u1"), Kind: docstore.Updated,
		Before: map[string]any{"seguidores": before}, After: map[string]any{"seguidores": followers},
	})
	s.Require().NoError(err)
	s.Require().Len(res, 3)
	s.Empty(res[0].NewBadges)
	s.Require().Len(res[1].NewBadges, 1)
	s.Equal("social_bronze", res[1].NewBadges[0].ID)
	s.Empty(res[2].NewBadges)
	s.Equal([]string{"social_bronze"}, s.user("u1").Badges)
}

func (s *EngineSuite) TestLikesAwardOwnerAndTrackReceived() {
	s.createReview("r1", "u1")
	ref := docstore.Doc(models.CollReviews, "r1")
	ev := docstore.ChangeEvent{
		Ref: ref, Kind: docstore.Updated,
		Before: map[string]any{"uidAutor": "u1", "reactions": map[string]any{"❤️": []any{"v1"}}},
		After:  map[string]any{"uidAutor": "u1", "reactions": map[string]any{"❤️": []any{"v1", "v2"}, "😂": []any{"v3"}}},
	}

	res, err := s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Len(res, 2)

	u := s.user("u1")
	s.Equal(int64(8), u.XP)
	s.Equal(int64(2), u.Stats[models.StatLikesReceived])
}

func (s *EngineSuite) TestMissingUserIsSkipped() {
	ev := s.createReview("r9", "ghost")
	res, err := s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Require().Len(res, 1)
	s.Zero(res[0].Points)
}

func (s *EngineSuite) TestOnAwardCallback() {
	var got []Result
	s.engine.OnAward(func(r Result) { got = append(got, r) })
	ev := s.createReview("r1", "u1")
	_, err := s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	_, err = s.engine.Handle(s.ctx, ev)
	s.Require().NoError(err)
	s.Len(got, 1)
}

func TestIgnoredEvents(t *testing.T) {
	e := NewEngine(docstore.NewMemoryStore())
	res, err := e.Handle(context.Background(), docstore.ChangeEvent{
		Ref: docstore.Doc(models.CollNotifications, "n1"), Kind: docstore.Created,
	})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestAddedValues(t *testing.T) {
	assert.Equal(t, []string{"c"}, addedValues([]any{"a", "b"}, []any{"a", "b", "c"}))
	assert.Equal(t, []string{"a"}, addedValues(nil, []any{"a", "a"}))
	assert.Empty(t, addedValues([]any{"a"}, []any{}))
}
