package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/auth"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
)

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub             *Hub
	verifier        auth.Verifier
	loadProfile     auth.ProfileLoader
	presenceManager *PresenceManager
	originPatterns  []string
}

// NewHandler creates a new WebSocket handler. originPatterns empty accepts
// any origin.
func NewHandler(hub *Hub, verifier auth.Verifier, loadProfile auth.ProfileLoader, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		verifier:       verifier,
		loadProfile:    loadProfile,
		originPatterns: originPatterns,
	}
}

// SetPresenceManager sets the presence manager for the handler
func (h *Handler) SetPresenceManager(pm *PresenceManager) {
	h.presenceManager = pm
}

// HandleWebSocket upgrades an authenticated request. The token comes from
// ?token= or the Authorization header.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	session := auth.NewSession(h.verifier, h.loadProfile)
	if err := session.SignIn(c.Request.Context(), bearerToken(c)); err != nil {
		logger.Log.Debug("WebSocket auth failed", zap.Error(err))
		apiErr := apierrors.FromError(err)
		c.JSON(apiErr.Status, apiErr)
		return
	}

	conn, err := websocket.Accept(upgradeWriter(c.Writer), c.Request, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: len(h.originPatterns) == 0,
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	// keeps request logs and metrics accurate; the header itself was sent by Accept
	c.Status(http.StatusSwitchingProtocols)

	client := NewClient(h.hub, conn, session)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	h.hub.Register(client)
	if h.presenceManager != nil {
		h.presenceManager.OnClientConnect(client)
	}

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event: "connected",
		Data: map[string]interface{}{
			"user_id":     client.UserID,
			"username":    client.Username,
			"session":     session.State().String(),
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump() // blocks until the client disconnects
	session.SignOut()

	if h.presenceManager != nil {
		h.presenceManager.OnClientDisconnect(client)
	}
}

// upgradeWriter returns the server's writer beneath gin's. Accept flushes the
// 101 through gin's WriteHeaderNow, after which gin refuses to hijack.
func upgradeWriter(w gin.ResponseWriter) http.ResponseWriter {
	var rw http.ResponseWriter = w
	for {
		if _, ok := rw.(gin.ResponseWriter); !ok {
			return rw
		}
		u, ok := rw.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return rw
		}
		rw = u.Unwrap()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// HandleMetrics returns WebSocket metrics
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": len(h.hub.GetOnlineUsers()),
		"timestamp":    time.Now().UTC(),
	})
}

// HandleOnlineStatus reports which of the given users are connected
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiErr := apierrors.BadRequest(err.Error())
		c.JSON(apiErr.Status, apiErr)
		return
	}

	statuses := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(userID)
	}
	var online map[string]*UserPresence
	if h.presenceManager != nil {
		online = h.presenceManager.GetOnlinePresence(req.UserIDs)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"presence":  online,
		"timestamp": time.Now().UTC(),
	})
}

// Shutdown closes every connection
func (h *Handler) Shutdown(ctx context.Context) error {
	if h.presenceManager != nil {
		h.presenceManager.Stop()
	}
	return h.hub.Shutdown(ctx)
}

// LiveNotifier forwards to next and also pushes the stored notification to
// the recipient's open sockets
type LiveNotifier struct {
	next notifications.Notifier
	hub  *Hub
}

// NewLiveNotifier wraps next
func NewLiveNotifier(next notifications.Notifier, hub *Hub) *LiveNotifier {
	return &LiveNotifier{next: next, hub: hub}
}

func (l *LiveNotifier) Notify(ctx context.Context, recipientID, senderID, notificationType string, payload notifications.Payload) (*models.Notification, error) {
	n, err := l.next.Notify(ctx, recipientID, senderID, notificationType, payload)
	if err != nil || n == nil {
		return n, err
	}
	if l.hub.IsUserOnline(recipientID) {
		l.hub.SendToUser(recipientID, NewMessage(MessageTypeNotification, n))
	}
	return n, nil
}
