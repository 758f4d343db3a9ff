// Package lists manages user curated lists of catalog titles
package lists

import (
	"context"
	"strings"
	"time"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/models"
)

const maxTitleLength = 100

var (
	ErrTitleRequired = apierrors.NewField("title", "list title is required")
	ErrTitleTooLong  = apierrors.NewField("title", "list title must be at most 100 characters")
	ErrInvalidItem   = apierrors.NewField("mediaId", "a catalog title is required")
	ErrDuplicateItem = apierrors.New(apierrors.ErrAlreadyExists, "title is already in the list")
	ErrNotOwner      = apierrors.New(apierrors.ErrForbidden, "only the list owner can change it")
)

// Service manages lists/{id}
type Service struct {
	store docstore.Store
	now   func() time.Time
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return "", ErrTitleRequired
	case len([]rune(title)) > maxTitleLength:
		return "", ErrTitleTooLong
	}
	return title, nil
}

// CreateList writes the list and the owner's lists counter in one batch
func (s *Service) CreateList(ctx context.Context, uid, title, description string) (*models.List, error) {
	title, err := validTitle(title)
	if err != nil {
		return nil, err
	}
	l := &models.List{
		ID:          docstore.NewID(),
		UIDAutor:    uid,
		Title:       title,
		Description: strings.TrimSpace(description),
		Items:       []models.ListItem{},
		Timestamp:   s.now().UTC(),
	}
	err = s.store.Batch().
		Create(docstore.Doc(models.CollLists, l.ID), l).
		Update(docstore.Doc(models.CollUsers, uid),
			docstore.Update{Path: "stats." + models.StatLists, Value: docstore.Increment(1)}).
		Commit(ctx)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// List loads one list
func (s *Service) List(ctx context.Context, id string) (*models.List, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollLists, id))
	if err != nil {
		return nil, err
	}
	var l models.List
	if err := snap.DataTo(&l); err != nil {
		return nil, err
	}
	l.ID = snap.Ref.ID
	return &l, nil
}

// ByOwner returns a user's lists, newest first
func (s *Service) ByOwner(ctx context.Context, uid string) ([]*models.List, error) {
	page, err := s.store.Query(ctx, docstore.From(models.CollLists).
		Where("uidAutor", docstore.OpEqual, uid).
		OrderBy("timestamp", docstore.Desc))
	if err != nil {
		return nil, err
	}
	out := make([]*models.List, 0, len(page.Docs))
	for _, snap := range page.Docs {
		var l models.List
		if err := snap.DataTo(&l); err != nil {
			continue
		}
		l.ID = snap.Ref.ID
		out = append(out, &l)
	}
	return out, nil
}

func (s *Service) owned(ctx context.Context, uid, id string) (*models.List, error) {
	l, err := s.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.UIDAutor != uid {
		return nil, ErrNotOwner
	}
	return l, nil
}

func ownedTx(tx docstore.Tx, uid string, ref docstore.DocRef) (*models.List, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		return nil, err
	}
	var l models.List
	if err := snap.DataTo(&l); err != nil {
		return nil, err
	}
	l.ID = ref.ID
	if l.UIDAutor != uid {
		return nil, ErrNotOwner
	}
	return &l, nil
}

// AddItem appends a title snapshot. The same mediaId and mediaType pair is
// rejected; check and write share one transaction.
func (s *Service) AddItem(ctx context.Context, uid, listID string, item models.ListItem) (*models.List, error) {
	if item.MediaID <= 0 {
		return nil, ErrInvalidItem
	}
	if item.MediaType == "" {
		item.MediaType = "movie"
	}
	ref := docstore.Doc(models.CollLists, listID)

	var out *models.List
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		l, err := ownedTx(tx, uid, ref)
		if err != nil {
			return err
		}
		for _, existing := range l.Items {
			if existing.MediaID == item.MediaID && existing.MediaType == item.MediaType {
				return ErrDuplicateItem
			}
		}
		item.AddedAt = s.now().UTC()
		l.Items = append(l.Items, item)
		if err := tx.Update(ref, docstore.Update{Path: "items", Value: l.Items}); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveItem drops every entry of the title from the list
func (s *Service) RemoveItem(ctx context.Context, uid, listID string, mediaID int64, mediaType string) (*models.List, error) {
	ref := docstore.Doc(models.CollLists, listID)

	var out *models.List
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		l, err := ownedTx(tx, uid, ref)
		if err != nil {
			return err
		}
		kept := make([]models.ListItem, 0, len(l.Items))
		for _, it := range l.Items {
			if it.MediaID == mediaID && (mediaType == "" || it.MediaType == mediaType) {
				continue
			}
			kept = append(kept, it)
		}
		out = l
		if len(kept) == len(l.Items) {
			return nil
		}
		l.Items = kept
		return tx.Update(ref, docstore.Update{Path: "items", Value: kept})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateList edits the title and description. Nil fields are left unchanged.
func (s *Service) UpdateList(ctx context.Context, uid, listID string, title, description *string) (*models.List, error) {
	l, err := s.owned(ctx, uid, listID)
	if err != nil {
		return nil, err
	}
	var updates []docstore.Update
	if title != nil {
		t, err := validTitle(*title)
		if err != nil {
			return nil, err
		}
		l.Title = t
		updates = append(updates, docstore.Update{Path: "title", Value: t})
	}
	if description != nil {
		l.Description = strings.TrimSpace(*description)
		updates = append(updates, docstore.Update{Path: "description", Value: l.Description})
	}
	if len(updates) == 0 {
		return l, nil
	}
	if err := s.store.Update(ctx, docstore.Doc(models.CollLists, listID), updates...); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteList removes an owned list and decrements the counter in the same batch
func (s *Service) DeleteList(ctx context.Context, uid, listID string) error {
	if _, err := s.owned(ctx, uid, listID); err != nil {
		return err
	}
	return s.store.Batch().
		Delete(docstore.Doc(models.CollLists, listID)).
		Update(docstore.Doc(models.CollUsers, uid),
			docstore.Update{Path: "stats." + models.StatLists, Value: docstore.Increment(-1)}).
		Commit(ctx)
}
