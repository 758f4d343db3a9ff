package feed

import (
	"time"

	"github.com/cinesync/backend/internal/models"
)

// View modes
const (
	ModeEveryone = "everyone"
	ModeFollowed = "followed"
)

// Item kinds, which double as source names
const (
	KindReview      = "review"
	KindList        = "list"
	KindAchievement = "achievement"
	KindBattle      = "battle"
)

const (
	// PageSize is the per-source page size
	PageSize = 15
	// BattleSlot is where the battle card is spliced into a batch
	BattleSlot = 10
)

// Item is one card of the merged feed
type Item struct {
	Key       string               `json:"key"`
	Kind      string               `json:"kind"`
	ID        string               `json:"id"`
	AuthorID  string               `json:"authorId,omitempty"`
	Author    *models.UserSnapshot `json:"author,omitempty"`
	Timestamp int64                `json:"timestamp"`
	Data      map[string]any       `json:"data,omitempty"`
	Battle    *models.Battle       `json:"battle,omitempty"`
	Synthetic bool                 `json:"synthetic,omitempty"`
}

func itemKey(kind, id string) string {
	return kind + ":" + id
}

// Session is the pagination state of one feed view. Cursors are encoded
// store cursors keyed by source.
type Session struct {
	ID        string            `json:"id"`
	ViewerID  string            `json:"viewerId"`
	Mode      string            `json:"mode"`
	Cursors   map[string]string `json:"cursors"`
	SeenKeys  []string          `json:"seenKeys"`
	HasMore   bool              `json:"hasMore"`
	Pages     int               `json:"pages"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewSession starts a feed view at the top
func NewSession(id, viewerID, mode string) *Session {
	s := &Session{ID: id, ViewerID: viewerID}
	s.SetMode(mode)
	return s
}

// SetMode switches the view mode. Changing it invalidates every cursor and
// the seen set.
func (s *Session) SetMode(mode string) {
	if mode != ModeFollowed {
		mode = ModeEveryone
	}
	if s.Mode == mode && s.Cursors != nil {
		return
	}
	s.Mode = mode
	s.Reset()
}

// Reset rewinds the session to the first page
func (s *Session) Reset() {
	s.Cursors = make(map[string]string)
	s.SeenKeys = nil
	s.HasMore = true
	s.Pages = 0
}

func (s *Session) seenSet() map[string]bool {
	out := make(map[string]bool, len(s.SeenKeys))
	for _, k := range s.SeenKeys {
		out[k] = true
	}
	return out
}

// Page is one "load more" result
type Page struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
	Items     []Item `json:"items"`
	HasMore   bool   `json:"hasMore"`
}
