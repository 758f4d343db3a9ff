package social

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/progression"
)

const maxSearchResults = 20

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)

// ProfileUpdate lists the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Nome        *string `json:"nome"`
	Sobrenome   *string `json:"sobrenome"`
	Username    *string `json:"username"`
	Bio         *string `json:"bio"`
	Localizacao *string `json:"localizacao"`
	Foto        *string `json:"foto"`
	Capa        *string `json:"capa"`
}

// ProfileView is everything the profile screen renders
type ProfileView struct {
	User   *models.User               `json:"user"`
	Level  progression.LevelProgress  `json:"level"`
	Badges []progression.CategoryView `json:"badges"`
	Stats  map[string]int64           `json:"stats"`
}

// User loads one profile
func (s *Service) User(ctx context.Context, uid string) (*models.User, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollUsers, uid))
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, err
	}
	u.UID = uid
	return &u, nil
}

// Profile returns the user with level progress and the badge shelf
func (s *Service) Profile(ctx context.Context, uid string) (*ProfileView, error) {
	u, err := s.User(ctx, uid)
	if err != nil {
		return nil, err
	}
	stats := u.StatValues()
	return &ProfileView{
		User:   u,
		Level:  progression.Progress(u.XP),
		Badges: progression.EvolutionaryBadgeView(models.BadgeCatalog, u.Badges, stats),
		Stats:  stats,
	}, nil
}

// CreateProfile writes the initial profile document after sign up
func (s *Service) CreateProfile(ctx context.Context, uid, nome, sobrenome, username string) (*models.User, error) {
	if strings.TrimSpace(nome) == "" {
		return nil, ErrProfileIncomplete
	}
	username = normalizeUsername(username)
	if err := s.checkUsername(ctx, uid, username); err != nil {
		return nil, err
	}
	u := models.NewUser(uid, strings.TrimSpace(nome), strings.TrimSpace(sobrenome), username)
	u.CreatedAt = s.now().UTC()
	if err := s.store.Create(ctx, docstore.Doc(models.CollUsers, uid), u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields and refreshes the lowercase
// search fields alongside them
func (s *Service) UpdateProfile(ctx context.Context, uid string, in ProfileUpdate) (*models.User, error) {
	u, err := s.User(ctx, uid)
	if err != nil {
		return nil, err
	}

	var updates []docstore.Update
	set := func(path string, dst *string, v *string) {
		if v == nil {
			return
		}
		*dst = strings.TrimSpace(*v)
		updates = append(updates, docstore.Update{Path: path, Value: *dst})
	}

	if in.Username != nil {
		name := normalizeUsername(*in.Username)
		if name != u.UsernameLower {
			if err := s.checkUsername(ctx, uid, name); err != nil {
				return nil, err
			}
		}
		in.Username = &name
	}
	if in.Nome != nil && strings.TrimSpace(*in.Nome) == "" {
		return nil, ErrProfileIncomplete
	}

	set("nome", &u.Nome, in.Nome)
	set("sobrenome", &u.Sobrenome, in.Sobrenome)
	set("username", &u.Username, in.Username)
	set("bio", &u.Bio, in.Bio)
	set("localizacao", &u.Localizacao, in.Localizacao)
	set("foto", &u.Foto, in.Foto)
	set("capa", &u.Capa, in.Capa)
	if len(updates) == 0 {
		return u, nil
	}

	u.NormalizeSearchFields()
	updates = append(updates,
		docstore.Update{Path: "nomeLower", Value: u.NomeLower},
		docstore.Update{Path: "sobrenomeLower", Value: u.SobrenomeLower},
		docstore.Update{Path: "usernameLower", Value: u.UsernameLower},
	)
	if err := s.store.Update(ctx, docstore.Doc(models.CollUsers, uid), updates...); err != nil {
		return nil, err
	}
	return u, nil
}

// IsUsernameAvailable reports whether username is valid and unused by anyone but uid
func (s *Service) IsUsernameAvailable(ctx context.Context, uid, username string) (bool, error) {
	err := s.checkUsername(ctx, uid, normalizeUsername(username))
	switch err {
	case nil:
		return true, nil
	case ErrUsernameTaken, ErrInvalidUsername:
		return false, nil
	default:
		return false, err
	}
}

func (s *Service) checkUsername(ctx context.Context, uid, username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	page, err := s.store.Query(ctx, docstore.From(models.CollUsers).
		Where("usernameLower", docstore.OpEqual, username).
		Limit(2))
	if err != nil {
		return err
	}
	for _, snap := range page.Docs {
		if snap.Ref.ID != uid {
			return ErrUsernameTaken
		}
	}
	return nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// SearchUsers runs a prefix search on username then first name, merged
// without duplicates
func (s *Service) SearchUsers(ctx context.Context, prefix string) ([]models.UserSnapshot, error) {
	prefix = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(prefix, "@")))
	if prefix == "" {
		return []models.UserSnapshot{}, nil
	}

	if s.searcher != nil {
		out, err := s.searchIndex(ctx, prefix)
		if err == nil {
			return out, nil
		}
		logger.Log.Warn("User search index failed, using store prefix query", zap.Error(err))
	}

	seen := make(map[string]bool)
	out := make([]models.UserSnapshot, 0, maxSearchResults)
	for _, field := range []string{"usernameLower", "nomeLower"} {
		page, err := s.store.Query(ctx, docstore.From(models.CollUsers).
			Where(field, docstore.OpGreaterEqual, prefix).
			Where(field, docstore.OpLess, prefix+"\uf8ff").
			OrderBy(field, docstore.Asc).
			Limit(maxSearchResults))
		if err != nil {
			return nil, err
		}
		for _, snap := range page.Docs {
			if seen[snap.Ref.ID] || len(out) == maxSearchResults {
				continue
			}
			var u models.User
			if err := snap.DataTo(&u); err != nil {
				continue
			}
			u.UID = snap.Ref.ID
			seen[u.UID] = true
			out = append(out, u.Snapshot())
		}
	}
	return out, nil
}

// searchIndex resolves index hits against the store, keeping the index order
// and skipping ids whose document is gone
func (s *Service) searchIndex(ctx context.Context, query string) ([]models.UserSnapshot, error) {
	ids, err := s.searcher.SearchUsers(ctx, query, maxSearchResults)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.store.Get(ctx, docstore.Doc(models.CollUsers, id))
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var u models.User
		if err := snap.DataTo(&u); err != nil {
			continue
		}
		u.UID = id
		out = append(out, u.Snapshot())
	}
	return out, nil
}

// RegisterPushToken stores the device token used for pushes. An empty token
// unregisters the device.
func (s *Service) RegisterPushToken(ctx context.Context, uid, token string) error {
	var value any
	if token = strings.TrimSpace(token); token != "" {
		value = token
	}
	return s.store.Update(ctx, docstore.Doc(models.CollUsers, uid), docstore.Update{Path: "fcmToken", Value: value})
}
