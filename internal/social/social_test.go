package social

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
	"github.com/cinesync/backend/internal/push"
)

type SocialSuite struct {
	suite.Suite
	ctx   context.Context
	store *docstore.MemoryStore
	svc   *Service
}

func TestSocialSuite(t *testing.T) {
	suite.Run(t, new(SocialSuite))
}

func (s *SocialSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewMemoryStore()
	s.svc = NewService(s.store, notifications.NewService(s.store, push.NewRecorder()))

	for _, u := range []struct{ uid, nome, username string }{
		{"u1", "Ana", "ana.s"},
		{"u2", "Bruno", "bruno"},
		{"u3", "Anabela", "bela"},
	} {
		_, err := s.svc.CreateProfile(s.ctx, u.uid, u.nome, "", u.username)
		s.Require().NoError(err)
	}
}

func (s *SocialSuite) user(uid string) *models.User {
	u, err := s.svc.User(s.ctx, uid)
	s.Require().NoError(err)
	return u
}

func (s *SocialSuite) TestFollowWritesBothSides() {
	s.Require().NoError(s.svc.Follow(s.ctx, "u1", "u2"))

	s.Equal([]string{"u2"}, s.user("u1").Seguindo)
	s.Equal([]string{"u1"}, s.user("u2").Seguidores)

	n, err := s.store.Count(s.ctx, docstore.From(models.CollNotifications).
		Where("type", docstore.OpEqual, models.NotificationFollow))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	// idempotent, no second notification
	s.Require().NoError(s.svc.Follow(s.ctx, "u1", "u2"))
	s.Len(s.user("u2").Seguidores, 1)
	n, _ = s.store.Count(s.ctx, docstore.From(models.CollNotifications))
	s.Equal(int64(1), n)
}

func (s *SocialSuite) TestUnfollowAndToggle() {
	following, err := s.svc.ToggleFollow(s.ctx, "u1", "u2")
	s.Require().NoError(err)
	s.True(following)

	following, err = s.svc.ToggleFollow(s.ctx, "u1", "u2")
	s.Require().NoError(err)
	s.False(following)
	s.Empty(s.user("u1").Seguindo)
	s.Empty(s.user("u2").Seguidores)
}

func (s *SocialSuite) TestSelfFollowRejected() {
	s.ErrorIs(s.svc.Follow(s.ctx, "u1", "u1"), ErrSelfFollow)
}

func (s *SocialSuite) TestFollowMissingUser() {
	s.ErrorIs(s.svc.Follow(s.ctx, "u1", "ghost"), docstore.ErrNotFound)
	s.Empty(s.user("u1").Seguindo)
}

func (s *SocialSuite) TestFollowersAndFollowing() {
	s.Require().NoError(s.svc.Follow(s.ctx, "u1", "u3"))
	s.Require().NoError(s.svc.Follow(s.ctx, "u2", "u3"))

	followers, err := s.svc.Followers(s.ctx, "u3")
	s.Require().NoError(err)
	s.Require().Len(followers, 2)
	s.Equal("u1", followers[0].UID)
	s.Equal("Ana", followers[0].Nome)

	following, err := s.svc.Following(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(following, 1)
	s.Equal("bela", following[0].Username)
}

func (s *SocialSuite) TestSearchUsersMergesUsernameAndName() {
	res, err := s.svc.SearchUsers(s.ctx, "AN")
	s.Require().NoError(err)
	ids := make([]string, 0, len(res))
	for _, r := range res {
		ids = append(ids, r.UID)
	}
	// "ana.s" by username, then "Anabela" by name; u1 is not repeated
	s.Equal([]string{"u1", "u3"}, ids)

	res, err = s.svc.SearchUsers(s.ctx, "  ")
	s.Require().NoError(err)
	s.Empty(res)
}

type fakeSearcher struct {
	ids []string
	err error
}

func (f fakeSearcher) SearchUsers(ctx context.Context, query string, limit int) ([]string, error) {
	return f.ids, f.err
}

func (s *SocialSuite) TestSearchUsersUsesIndexOrder() {
	s.svc.SetSearcher(fakeSearcher{ids: []string{"u3", "gone", "u2"}})

	res, err := s.svc.SearchUsers(s.ctx, "anbela")
	s.Require().NoError(err)
	s.Require().Len(res, 2)
	s.Equal("u3", res[0].UID)
	s.Equal("u2", res[1].UID)
}

func (s *SocialSuite) TestSearchUsersFallsBackWhenIndexFails() {
	s.svc.SetSearcher(fakeSearcher{err: errors.New("cluster down")})

	res, err := s.svc.SearchUsers(s.ctx, "bru")
	s.Require().NoError(err)
	s.Require().Len(res, 1)
	s.Equal("u2", res[0].UID)
}

func (s *SocialSuite) TestUsernameUniqueness() {
	_, err := s.svc.CreateProfile(s.ctx, "u4", "Carla", "", "Bruno")
	s.ErrorIs(err, ErrUsernameTaken)

	ok, err := s.svc.IsUsernameAvailable(s.ctx, "u4", "carla")
	s.Require().NoError(err)
	s.True(ok)
	ok, _ = s.svc.IsUsernameAvailable(s.ctx, "u4", "x")
	s.False(ok)
	// own username stays available to its owner
	ok, _ = s.svc.IsUsernameAvailable(s.ctx, "u2", "bruno")
	s.True(ok)
}

func (s *SocialSuite) TestUpdateProfileKeepsLowercaseFields() {
	nome := "  Ânia "
	username := "Ania_X"
	u, err := s.svc.UpdateProfile(s.ctx, "u1", ProfileUpdate{Nome: &nome, Username: &username})
	s.Require().NoError(err)
	s.Equal("Ânia", u.Nome)

	stored := s.user("u1")
	s.Equal("ânia", stored.NomeLower)
	s.Equal("ania_x", stored.UsernameLower)

	taken := "bruno"
	_, err = s.svc.UpdateProfile(s.ctx, "u1", ProfileUpdate{Username: &taken})
	s.ErrorIs(err, ErrUsernameTaken)
	s.Equal("ania_x", s.user("u1").Username)
}

func (s *SocialSuite) TestRegisterPushToken() {
	s.Require().NoError(s.svc.RegisterPushToken(s.ctx, "u1", "tok"))
	s.Require().NotNil(s.user("u1").FCMToken)
	s.Equal("tok", *s.user("u1").FCMToken)

	s.Require().NoError(s.svc.RegisterPushToken(s.ctx, "u1", ""))
	s.Nil(s.user("u1").FCMToken)
}

func (s *SocialSuite) TestProfileView() {
	s.Require().NoError(s.store.Update(s.ctx, docstore.Doc(models.CollUsers, "u1"),
		docstore.Update{Path: "xp", Value: docstore.Increment(30)},
		docstore.Update{Path: "badges", Value: []string{"critic_bronze"}},
		docstore.Update{Path: "stats.reviews", Value: docstore.Increment(1)},
	))

	p, err := s.svc.Profile(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(30), p.Level.XP)
	s.Equal(int64(1), p.Stats[models.StatReviews])
	s.Len(p.Badges, len(models.BadgeTypes(models.BadgeCatalog)))
	s.True(p.Badges[0].Earned)
}
