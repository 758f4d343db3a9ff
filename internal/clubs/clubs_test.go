package clubs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

type ClubsSuite struct {
	suite.Suite
	ctx   context.Context
	store *docstore.MemoryStore
	svc   *Service
	club  *models.Group
}

func TestClubsSuite(t *testing.T) {
	suite.Run(t, new(ClubsSuite))
}

func (s *ClubsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewMemoryStore()
	s.svc = NewService(s.store)
	for _, uid := range []string{"admin", "member", "outsider"} {
		s.Require().NoError(s.store.Create(s.ctx, docstore.Doc(models.CollUsers, uid), models.NewUser(uid, uid, "", uid)))
	}
	club, err := s.svc.CreateClub(s.ctx, "admin", "Cinéfilos", "", "")
	s.Require().NoError(err)
	s.club = club
	s.Require().NoError(s.svc.Join(s.ctx, club.ID, "member"))
}

func (s *ClubsSuite) clubPosts(uid string) int64 {
	snap, err := s.store.Get(s.ctx, docstore.Doc(models.CollUsers, uid))
	s.Require().NoError(err)
	var u models.User
	s.Require().NoError(snap.DataTo(&u))
	return u.Stats[models.StatClubPosts]
}

func (s *ClubsSuite) TestMembership() {
	g, err := s.svc.Club(s.ctx, s.club.ID)
	s.Require().NoError(err)
	s.Equal([]string{"admin", "member"}, g.Members)

	s.ErrorIs(s.svc.Leave(s.ctx, s.club.ID, "admin"), ErrAdminCannotLeave)
	s.Require().NoError(s.svc.Leave(s.ctx, s.club.ID, "member"))
	g, _ = s.svc.Club(s.ctx, s.club.ID)
	s.Equal([]string{"admin"}, g.Members)

	mine, err := s.svc.MemberOf(s.ctx, "admin")
	s.Require().NoError(err)
	s.Len(mine, 1)

	_, err = s.svc.CreateClub(s.ctx, "admin", " ", "", "")
	s.ErrorIs(err, ErrNameRequired)
}

func (s *ClubsSuite) TestPostsAreMembersOnlyAndCounted() {
	_, err := s.svc.CreatePost(s.ctx, s.club.ID, "outsider", "hello")
	s.ErrorIs(err, ErrNotMember)

	p, err := s.svc.CreatePost(s.ctx, s.club.ID, "member", "hello")
	s.Require().NoError(err)
	s.Equal("member", p.AuthorInfo.UID)
	s.Equal(int64(1), s.clubPosts("member"))

	posts, err := s.svc.Posts(s.ctx, s.club.ID)
	s.Require().NoError(err)
	s.Len(posts, 1)

	s.ErrorIs(s.svc.DeletePost(s.ctx, s.club.ID, p.ID, "outsider"), ErrNotAllowed)
	// the admin may remove anyone's post
	s.Require().NoError(s.svc.DeletePost(s.ctx, s.club.ID, p.ID, "admin"))
	s.Zero(s.clubPosts("member"))
}

func (s *ClubsSuite) TestToggleLikePost() {
	p, err := s.svc.CreatePost(s.ctx, s.club.ID, "member", "hello")
	s.Require().NoError(err)

	liked, err := s.svc.ToggleLikePost(s.ctx, s.club.ID, p.ID, "admin")
	s.Require().NoError(err)
	s.True(liked)
	liked, err = s.svc.ToggleLikePost(s.ctx, s.club.ID, p.ID, "admin")
	s.Require().NoError(err)
	s.False(liked)

	posts, _ := s.svc.Posts(s.ctx, s.club.ID)
	s.Empty(posts[0].Likes)
}

func (s *ClubsSuite) TestPostComments() {
	p, err := s.svc.CreatePost(s.ctx, s.club.ID, "member", "hello")
	s.Require().NoError(err)

	c, err := s.svc.AddPostComment(s.ctx, s.club.ID, p.ID, "admin", "nice")
	s.Require().NoError(err)
	_, err = s.svc.AddPostComment(s.ctx, s.club.ID, p.ID, "outsider", "nope")
	s.ErrorIs(err, ErrNotMember)

	posts, _ := s.svc.Posts(s.ctx, s.club.ID)
	s.Equal(int64(1), posts[0].CommentCount)

	comments, err := s.svc.PostComments(s.ctx, s.club.ID, p.ID)
	s.Require().NoError(err)
	s.Len(comments, 1)

	s.ErrorIs(s.svc.DeletePostComment(s.ctx, s.club.ID, p.ID, c.ID, "member"), ErrNotAllowed)
	s.Require().NoError(s.svc.DeletePostComment(s.ctx, s.club.ID, p.ID, c.ID, "admin"))
	posts, _ = s.svc.Posts(s.ctx, s.club.ID)
	s.Zero(posts[0].CommentCount)
}
