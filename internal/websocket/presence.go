package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
)

// PresenceStatus represents the current status of a user
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// UserPresence tracks a single user's presence state
type UserPresence struct {
	UserID       string         `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	LastActivity time.Time      `json:"last_activity"`
	ConnectedAt  time.Time      `json:"connected_at"`
}

// PresenceManager tracks who is connected, tells their online followers,
// and records lastSeen on the profile
type PresenceManager struct {
	hub   *Hub
	store docstore.Store

	presence map[string]*UserPresence
	mu       sync.RWMutex

	timeoutDuration time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PresenceConfig holds configuration for the presence manager
type PresenceConfig struct {
	TimeoutDuration time.Duration // Default: 5 minutes
}

// DefaultPresenceConfig returns sensible defaults
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		TimeoutDuration: 5 * time.Minute,
	}
}

// NewPresenceManager creates a new presence manager. store may be nil.
func NewPresenceManager(hub *Hub, store docstore.Store, config PresenceConfig) *PresenceManager {
	ctx, cancel := context.WithCancel(context.Background())

	if config.TimeoutDuration == 0 {
		config.TimeoutDuration = DefaultPresenceConfig().TimeoutDuration
	}

	return &PresenceManager{
		hub:             hub,
		store:           store,
		presence:        make(map[string]*UserPresence),
		timeoutDuration: config.TimeoutDuration,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start registers the presence handler and the timeout checker
func (pm *PresenceManager) Start() {
	pm.hub.RegisterHandler(MessageTypePresence, pm.handlePresence)
	pm.wg.Add(1)
	go pm.runTimeoutChecker()
	logger.Log.Info("Presence manager started")
}

// Stop marks everyone offline and waits for pending writes
func (pm *PresenceManager) Stop() {
	pm.cancel()

	pm.mu.Lock()
	for userID := range pm.presence {
		pm.setOfflineLocked(userID)
	}
	pm.mu.Unlock()

	pm.wg.Wait()
	logger.Log.Info("Presence manager stopped")
}

// handlePresence takes focus and connectivity reports from a client
func (pm *PresenceManager) handlePresence(client *Client, msg *Message) error {
	var payload PresencePayload
	if err := msg.ParsePayload(&payload); err != nil {
		return err
	}
	focused, online := client.presence()
	if payload.Focused != nil {
		focused = *payload.Focused
	}
	if payload.Online != nil {
		online = *payload.Online
	}
	applyPresence(client, focused, online)
	pm.Heartbeat(client.UserID)
	return nil
}

// OnClientConnect is called when a client connects
func (pm *PresenceManager) OnClientConnect(client *Client) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := time.Now()
	existing := pm.presence[client.UserID]
	if existing == nil {
		pm.presence[client.UserID] = &UserPresence{
			UserID:       client.UserID,
			Status:       StatusOnline,
			LastActivity: now,
			ConnectedAt:  now,
		}
	} else {
		wasOffline := existing.Status == StatusOffline
		existing.Status = StatusOnline
		existing.LastActivity = now
		if !wasOffline {
			return
		}
		existing.ConnectedAt = now
	}
	pm.announce(client.UserID, MessageTypeUserOnline, StatusOnline, now)
}

// OnClientDisconnect is called after the client has left the hub
func (pm *PresenceManager) OnClientDisconnect(client *Client) {
	if pm.hub.GetUserConnectionCount(client.UserID) > 0 {
		return
	}
	pm.SetOffline(client.UserID)
}

// SetOffline marks a user as offline
func (pm *PresenceManager) SetOffline(userID string) {
	pm.mu.Lock()
	pm.setOfflineLocked(userID)
	pm.mu.Unlock()
}

func (pm *PresenceManager) setOfflineLocked(userID string) {
	presence, ok := pm.presence[userID]
	if !ok || presence.Status == StatusOffline {
		return
	}
	now := time.Now()
	presence.Status = StatusOffline
	presence.LastActivity = now
	pm.announce(userID, MessageTypeUserOffline, StatusOffline, now)
}

// announce runs the follower broadcast and the lastSeen write in the
// background; callers hold pm.mu
func (pm *PresenceManager) announce(userID, msgType string, status PresenceStatus, at time.Time) {
	payload := PresencePayload{UserID: userID, Status: string(status), Timestamp: at.UnixMilli()}
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		pm.broadcastToFollowers(ctx, userID, NewMessage(msgType, payload))
		pm.recordLastSeen(ctx, userID, at)
	}()
}

// GetOnlinePresence returns presence for the online users among userIDs
func (pm *PresenceManager) GetOnlinePresence(userIDs []string) map[string]*UserPresence {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*UserPresence)
	for _, userID := range userIDs {
		if presence, ok := pm.presence[userID]; ok && presence.Status != StatusOffline {
			cp := *presence
			result[userID] = &cp
		}
	}
	return result
}

// Heartbeat updates the last activity time for a user
func (pm *PresenceManager) Heartbeat(userID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if presence, ok := pm.presence[userID]; ok {
		presence.LastActivity = time.Now()
	}
}

func (pm *PresenceManager) runTimeoutChecker() {
	defer pm.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.checkTimeouts()
		}
	}
}

// checkTimeouts marks users offline once they are idle and disconnected
func (pm *PresenceManager) checkTimeouts() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	cutoff := time.Now().Add(-pm.timeoutDuration)

	for userID, presence := range pm.presence {
		if presence.Status == StatusOffline || !presence.LastActivity.Before(cutoff) {
			continue
		}
		if pm.hub.IsUserOnline(userID) {
			presence.LastActivity = time.Now()
			continue
		}
		logger.Log.Debug("Presence timeout", logger.WithUserID(userID), zap.Time("last_activity", presence.LastActivity))
		pm.setOfflineLocked(userID)
	}
}

// broadcastToFollowers sends a presence update to the user's connected followers
func (pm *PresenceManager) broadcastToFollowers(ctx context.Context, userID string, msg *Message) {
	if pm.store == nil {
		return
	}
	snap, err := pm.store.Get(ctx, docstore.Doc(models.CollUsers, userID))
	if err != nil {
		logger.Log.Debug("No profile for presence broadcast", logger.WithUserID(userID), zap.Error(err))
		return
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return
	}

	sent := 0
	for _, follower := range u.Seguidores {
		if pm.hub.IsUserOnline(follower) {
			pm.hub.SendToUser(follower, msg)
			sent++
		}
	}
	logger.Log.Debug("Broadcast presence", logger.WithUserID(userID), zap.String("type", msg.Type), zap.Int("followers", sent))
}

func (pm *PresenceManager) recordLastSeen(ctx context.Context, userID string, at time.Time) {
	if pm.store == nil {
		return
	}
	err := pm.store.Update(ctx, docstore.Doc(models.CollUsers, userID),
		docstore.Update{Path: "lastSeen", Value: at.UTC()})
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		logger.Log.Warn("Failed to record lastSeen", logger.WithUserID(userID), zap.Error(err))
	}
}
