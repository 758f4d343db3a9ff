// Package clubs implements groups with member posts and post comments
package clubs

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
)

const (
	maxPostLength    = 2000
	maxCommentLength = 500
)

var (
	ErrNameRequired     = apierrors.NewField("name", "club name is required")
	ErrNotMember        = apierrors.New(apierrors.ErrForbidden, "only members can do this")
	ErrAdminCannotLeave = apierrors.New(apierrors.ErrBadRequest, "the admin cannot leave the club")
	ErrNotAllowed       = apierrors.New(apierrors.ErrForbidden, "only the author or the admin can do this")
	ErrEmptyText        = apierrors.NewField("text", "text cannot be empty")
	ErrTextTooLong      = apierrors.NewField("text", "text is too long")
)

// PostsCollection is the post subcollection of a club
func PostsCollection(groupID string) string {
	return docstore.Doc(models.CollGroups, groupID).Sub("posts")
}

// PostCommentsCollection is the comment subcollection of a club post
func PostCommentsCollection(groupID, postID string) string {
	return docstore.Doc(PostsCollection(groupID), postID).Sub("comments")
}

// PostsQuery is the newest-first live query of a club's posts
func PostsQuery(groupID string) docstore.Query {
	return docstore.From(PostsCollection(groupID)).OrderBy("timestamp", docstore.Desc)
}

// Service manages groups/{id}, their posts and post comments
type Service struct {
	store docstore.Store
	now   func() time.Time
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func validText(text string, max int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(text) > max {
		return "", ErrTextTooLong
	}
	return text, nil
}

// CreateClub makes the creator admin and first member
func (s *Service) CreateClub(ctx context.Context, uid, name, description, photo string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	g := &models.Group{
		ID:          docstore.NewID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Photo:       photo,
		AdminID:     uid,
		Members:     []string{uid},
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, docstore.Doc(models.CollGroups, g.ID), g); err != nil {
		return nil, err
	}
	return g, nil
}

// Club loads one club
func (s *Service) Club(ctx context.Context, id string) (*models.Group, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollGroups, id))
	if err != nil {
		return nil, err
	}
	var g models.Group
	if err := snap.DataTo(&g); err != nil {
		return nil, err
	}
	g.ID = snap.Ref.ID
	return &g, nil
}

// Clubs lists every club, newest first
func (s *Service) Clubs(ctx context.Context, limit int) ([]*models.Group, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	page, err := s.store.Query(ctx, docstore.From(models.CollGroups).OrderBy("createdAt", docstore.Desc).Limit(limit))
	if err != nil {
		return nil, err
	}
	return decodeGroups(page.Docs), nil
}

// MemberOf lists the clubs uid belongs to
func (s *Service) MemberOf(ctx context.Context, uid string) ([]*models.Group, error) {
	page, err := s.store.Query(ctx, docstore.From(models.CollGroups).Where("members", docstore.OpArrayContains, uid))
	if err != nil {
		return nil, err
	}
	return decodeGroups(page.Docs), nil
}

func decodeGroups(docs []*docstore.Snapshot) []*models.Group {
	out := make([]*models.Group, 0, len(docs))
	for _, snap := range docs {
		var g models.Group
		if err := snap.DataTo(&g); err != nil {
			continue
		}
		g.ID = snap.Ref.ID
		out = append(out, &g)
	}
	return out
}

// Join adds uid to the members set
func (s *Service) Join(ctx context.Context, groupID, uid string) error {
	if _, err := s.Club(ctx, groupID); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.Doc(models.CollGroups, groupID),
		docstore.Update{Path: "members", Value: docstore.ArrayUnion(uid)})
}

// Leave removes uid from the members set. The admin cannot leave.
func (s *Service) Leave(ctx context.Context, groupID, uid string) error {
	g, err := s.Club(ctx, groupID)
	if err != nil {
		return err
	}
	if g.AdminID == uid {
		return ErrAdminCannotLeave
	}
	return s.store.Update(ctx, docstore.Doc(models.CollGroups, groupID),
		docstore.Update{Path: "members", Value: docstore.ArrayRemove(uid)})
}

func (s *Service) author(ctx context.Context, uid string) (models.UserSnapshot, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollUsers, uid))
	if err != nil {
		return models.UserSnapshot{}, err
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return models.UserSnapshot{}, err
	}
	u.UID = uid
	return u.Snapshot(), nil
}

// CreatePost writes a member's post and bumps the author's clubPosts counter
// in the same batch
func (s *Service) CreatePost(ctx context.Context, groupID, uid, text string) (*models.Post, error) {
	text, err := validText(text, maxPostLength)
	if err != nil {
		return nil, err
	}
	g, err := s.Club(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(uid) {
		return nil, ErrNotMember
	}
	info, err := s.author(ctx, uid)
	if err != nil {
		return nil, err
	}
	p := &models.Post{
		ID:         docstore.NewID(),
		GroupID:    groupID,
		Text:       text,
		AuthorID:   uid,
		AuthorInfo: info,
		Likes:      []string{},
		Timestamp:  s.now().UTC(),
	}
	err = s.store.Batch().
		Create(docstore.Doc(PostsCollection(groupID), p.ID), p).
		Update(docstore.Doc(models.CollUsers, uid),
			docstore.Update{Path: "stats." + models.StatClubPosts, Value: docstore.Increment(1)}).
		Commit(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Posts returns a club's posts, newest first
func (s *Service) Posts(ctx context.Context, groupID string) ([]*models.Post, error) {
	page, err := s.store.Query(ctx, PostsQuery(groupID))
	if err != nil {
		return nil, err
	}
	out := make([]*models.Post, 0, len(page.Docs))
	for _, snap := range page.Docs {
		var p models.Post
		if err := snap.DataTo(&p); err != nil {
			continue
		}
		p.ID = snap.Ref.ID
		out = append(out, &p)
	}
	return out, nil
}

func (s *Service) post(ctx context.Context, groupID, postID string) (*models.Post, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(PostsCollection(groupID), postID))
	if err != nil {
		return nil, err
	}
	var p models.Post
	if err := snap.DataTo(&p); err != nil {
		return nil, err
	}
	p.ID = postID
	return &p, nil
}

// DeletePost removes a post. The author and the club admin may delete it.
func (s *Service) DeletePost(ctx context.Context, groupID, postID, uid string) error {
	g, err := s.Club(ctx, groupID)
	if err != nil {
		return err
	}
	p, err := s.post(ctx, groupID, postID)
	if err != nil {
		return err
	}
	if p.AuthorID != uid && g.AdminID != uid {
		return ErrNotAllowed
	}
	return s.store.Batch().
		Delete(docstore.Doc(PostsCollection(groupID), postID)).
		Update(docstore.Doc(models.CollUsers, p.AuthorID),
			docstore.Update{Path: "stats." + models.StatClubPosts, Value: docstore.Increment(-1)}).
		Commit(ctx)
}

// ToggleLikePost flips uid in the post's likes set and reports whether uid
// now likes the post
func (s *Service) ToggleLikePost(ctx context.Context, groupID, postID, uid string) (bool, error) {
	ref := docstore.Doc(PostsCollection(groupID), postID)
	liked := false
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var p models.Post
		if err := snap.DataTo(&p); err != nil {
			return err
		}
		liked = true
		for _, l := range p.Likes {
			if l == uid {
				liked = false
				break
			}
		}
		if liked {
			return tx.Update(ref, docstore.Update{Path: "likes", Value: docstore.ArrayUnion(uid)})
		}
		return tx.Update(ref, docstore.Update{Path: "likes", Value: docstore.ArrayRemove(uid)})
	})
	if err != nil {
		return false, err
	}
	return liked, nil
}

// PostComments returns the comments of a post, oldest first
func (s *Service) PostComments(ctx context.Context, groupID, postID string) ([]models.Comment, error) {
	page, err := s.store.Query(ctx, docstore.From(PostCommentsCollection(groupID, postID)).OrderBy("timestamp", docstore.Asc))
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

// AddPostComment writes a member's comment and bumps the post's commentCount
// in the same batch
func (s *Service) AddPostComment(ctx context.Context, groupID, postID, uid, text string) (*models.Comment, error) {
	text, err := validText(text, maxCommentLength)
	if err != nil {
		return nil, err
	}
	g, err := s.Club(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(uid) {
		return nil, ErrNotMember
	}
	if _, err := s.post(ctx, groupID, postID); err != nil {
		return nil, err
	}
	info, err := s.author(ctx, uid)
	if err != nil {
		return nil, err
	}
	c := &models.Comment{
		ID:         docstore.NewID(),
		Text:       text,
		UIDAutor:   uid,
		AuthorInfo: info,
		Timestamp:  s.now().UTC(),
	}
	err = s.store.Batch().
		Create(docstore.Doc(PostCommentsCollection(groupID, postID), c.ID), c).
		Update(docstore.Doc(PostsCollection(groupID), postID),
			docstore.Update{Path: "commentCount", Value: docstore.Increment(1)}).
		Commit(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordComment("club_post")
	return c, nil
}

// DeletePostComment removes a comment. Its author and the club admin may
// delete it.
func (s *Service) DeletePostComment(ctx context.Context, groupID, postID, commentID, uid string) error {
	g, err := s.Club(ctx, groupID)
	if err != nil {
		return err
	}
	ref := docstore.Doc(PostCommentsCollection(groupID, postID), commentID)
	snap, err := s.store.Get(ctx, ref)
	if err != nil {
		return err
	}
	if author, _ := snap.Data["uidAutor"].(string); author != uid && g.AdminID != uid {
		return ErrNotAllowed
	}
	return s.store.Batch().
		Delete(ref).
		Update(docstore.Doc(PostsCollection(groupID), postID),
			docstore.Update{Path: "commentCount", Value: docstore.Increment(-1)}).
		Commit(ctx)
}
