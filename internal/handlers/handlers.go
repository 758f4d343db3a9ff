package handlers

import (
	"github.com/cinesync/backend/internal/battles"
	"github.com/cinesync/backend/internal/chat"
	"github.com/cinesync/backend/internal/clubs"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/feed"
	"github.com/cinesync/backend/internal/lists"
	"github.com/cinesync/backend/internal/notifications"
	"github.com/cinesync/backend/internal/queue"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/social"
	"github.com/cinesync/backend/internal/storage"
	"github.com/cinesync/backend/internal/tmdb"
	"github.com/cinesync/backend/internal/websocket"
)

// Services are the domain services behind the HTTP API
type Services struct {
	Store         docstore.Store
	Feed          *feed.Service
	Social        *social.Service
	Reviews       *reviews.Service
	Lists         *lists.Service
	Chat          *chat.Service
	Clubs         *clubs.Service
	Battles       *battles.Service
	Notifications *notifications.Service
	Catalog       *tmdb.Client
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	Services

	uploader      storage.ImageUploader
	wsHandler     *websocket.Handler
	triggers      *queue.TriggerQueue
	triggerSecret string
}

// NewHandlers creates a new handlers instance
func NewHandlers(services Services) *Handlers {
	return &Handlers{Services: services}
}

// SetUploader sets the image store used by avatar, cover and club uploads
func (h *Handlers) SetUploader(uploader storage.ImageUploader) {
	h.uploader = uploader
}

// SetWebSocketHandler sets the realtime endpoint
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// SetTriggerIntake enables /internal/triggers/firestore. Requests must carry
// secret in the X-Trigger-Secret header.
func (h *Handlers) SetTriggerIntake(q *queue.TriggerQueue, secret string) {
	h.triggers = q
	h.triggerSecret = secret
}
