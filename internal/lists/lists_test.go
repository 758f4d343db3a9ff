package lists

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

type ListsSuite struct {
	suite.Suite
	ctx   context.Context
	store *docstore.MemoryStore
	svc   *Service
}

func TestListsSuite(t *testing.T) {
	suite.Run(t, new(ListsSuite))
}

func (s *ListsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewMemoryStore()
	s.svc = NewService(s.store)
	s.Require().NoError(s.store.Create(s.ctx, docstore.Doc(models.CollUsers, "u1"), models.NewUser("u1", "Ana", "", "ana")))
}

func (s *ListsSuite) listsCounter() int64 {
	snap, err := s.store.Get(s.ctx, docstore.Doc(models.CollUsers, "u1"))
	s.Require().NoError(err)
	var u models.User
	s.Require().NoError(snap.DataTo(&u))
	return u.Stats[models.StatLists]
}

func (s *ListsSuite) TestCreateAndDeleteKeepCounter() {
	l, err := s.svc.CreateList(s.ctx, "u1", "  Noir  ", "")
	s.Require().NoError(err)
	s.Equal("Noir", l.Title)
	s.Equal(int64(1), s.listsCounter())

	s.ErrorIs(s.svc.DeleteList(s.ctx, "u2", l.ID), ErrNotOwner)
	s.Require().NoError(s.svc.DeleteList(s.ctx, "u1", l.ID))
	s.Zero(s.listsCounter())
	_, err = s.svc.List(s.ctx, l.ID)
	s.ErrorIs(err, docstore.ErrNotFound)
}

func (s *ListsSuite) TestTitleValidation() {
	_, err := s.svc.CreateList(s.ctx, "u1", "   ", "")
	s.ErrorIs(err, ErrTitleRequired)
	_, err = s.svc.CreateList(s.ctx, "u1", strings.Repeat("a", 101), "")
	s.ErrorIs(err, ErrTitleTooLong)
	s.Zero(s.listsCounter())
}

func (s *ListsSuite) TestItems() {
	l, err := s.svc.CreateList(s.ctx, "u1", "Favorites", "")
	s.Require().NoError(err)

	_, err = s.svc.AddItem(s.ctx, "u1", l.ID, models.ListItem{MediaID: 603, MediaType: "movie", Title: "The Matrix"})
	s.Require().NoError(err)
	_, err = s.svc.AddItem(s.ctx, "u1", l.ID, models.ListItem{MediaID: 603, MediaType: "tv", Title: "Other"})
	s.Require().NoError(err)
	_, err = s.svc.AddItem(s.ctx, "u1", l.ID, models.ListItem{MediaID: 603, MediaType: "movie"})
	s.ErrorIs(err, ErrDuplicateItem)
	_, err = s.svc.AddItem(s.ctx, "u2", l.ID, models.ListItem{MediaID: 1})
	s.ErrorIs(err, ErrNotOwner)

	stored, err := s.svc.List(s.ctx, l.ID)
	s.Require().NoError(err)
	s.Len(stored.Items, 2)

	_, err = s.svc.RemoveItem(s.ctx, "u1", l.ID, 603, "movie")
	s.Require().NoError(err)
	stored, _ = s.svc.List(s.ctx, l.ID)
	s.Require().Len(stored.Items, 1)
	s.Equal("tv", stored.Items[0].MediaType)
}

func (s *ListsSuite) TestConcurrentAddsOfOneTitleLandOnce() {
	l, err := s.svc.CreateList(s.ctx, "u1", "Watchlist", "")
	s.Require().NoError(err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.AddItem(s.ctx, "u1", l.ID, models.ListItem{MediaID: 550, MediaType: "movie", Title: "Fight Club"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	added := 0
	for err := range errs {
		if err == nil {
			added++
			continue
		}
		s.True(errors.Is(err, ErrDuplicateItem), err.Error())
	}
	s.Equal(1, added)

	stored, err := s.svc.List(s.ctx, l.ID)
	s.Require().NoError(err)
	s.Len(stored.Items, 1)
}

func (s *ListsSuite) TestUpdateList() {
	l, err := s.svc.CreateList(s.ctx, "u1", "Old", "d")
	s.Require().NoError(err)
	title := "New"
	_, err = s.svc.UpdateList(s.ctx, "u1", l.ID, &title, nil)
	s.Require().NoError(err)

	stored, _ := s.svc.List(s.ctx, l.ID)
	s.Equal("New", stored.Title)
	s.Equal("d", stored.Description)

	lists, err := s.svc.ByOwner(s.ctx, "u1")
	s.Require().NoError(err)
	s.Len(lists, 1)
}
