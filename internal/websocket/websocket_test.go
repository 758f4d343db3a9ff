package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/backend/internal/auth"
	"github.com/cinesync/backend/internal/chat"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/subscriptions"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.handlers)
	assert.Equal(t, DefaultRateLimitConfig(), hub.GetRateLimitConfig())
}

func TestFlexibleTime(t *testing.T) {
	var ft FlexibleTime
	require.NoError(t, json.Unmarshal([]byte("1700000000000"), &ft))
	assert.Equal(t, int64(1700000000000), ft.UnixMilli())

	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T10:00:00Z"`), &ft))
	assert.Equal(t, 2024, ft.Year())

	assert.Error(t, json.Unmarshal([]byte(`true`), &ft))
}

func TestMessageParsePayload(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"subscribe","id":"m1","payload":{"view":"review","id":"r1"}}`), &msg))

	var p SubscribePayload
	require.NoError(t, msg.ParsePayload(&p))
	assert.Equal(t, ViewReview, p.View)
	assert.Equal(t, "r1", p.ID)

	reply := NewReply(&msg, MessageTypeSubscribed, p)
	assert.Equal(t, "m1", reply.ReplyTo)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("NOT_FOUND", "gone")
	payload, ok := msg.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "NOT_FOUND", payload.Code)
}

func TestHubRegisterHandler(t *testing.T) {
	hub := NewHub()
	hub.RegisterHandler("custom", func(*Client, *Message) error { return nil })
	_, ok := hub.GetHandler("custom")
	assert.True(t, ok)
	_, ok = hub.GetHandler("missing")
	assert.False(t, ok)
}

func TestMetricsSnapshotString(t *testing.T) {
	s := MetricsSnapshot{TotalConnections: 3, ActiveConnections: 1, MessagesReceived: 4, MessagesSent: 5}
	assert.Equal(t, "connections=1/3 messages=rx:4/tx:5 errors=0 dropped=0", s.String())
}

type closeCounter struct{ n *int }

func (c closeCounter) Close() { *c.n++ }

func TestClientCloseClosesViews(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{hub: hub, send: make(chan []byte, 1), views: map[string]view{}, ctx: ctx, cancel: cancel}

	closed := 0
	require.NoError(t, c.addView("a", closeCounter{&closed}))
	require.NoError(t, c.addView("b", closeCounter{&closed}))
	// replacing a key closes the old view
	require.NoError(t, c.addView("a", closeCounter{&closed}))
	assert.Equal(t, 1, closed)
	assert.Equal(t, 2, c.ViewCount())

	assert.True(t, c.removeView("b"))
	assert.False(t, c.removeView("b"))
	assert.Equal(t, 2, closed)

	c.Close()
	assert.Equal(t, 3, closed)
	assert.True(t, c.IsClosed())
	assert.ErrorIs(t, c.Send(NewMessage(MessageTypePing, nil)), errClientClosed)
	assert.Error(t, c.addView("c", closeCounter{&closed}))
	assert.Equal(t, 4, closed)
}

type liveEnv struct {
	store   *docstore.MemoryStore
	mgr     *subscriptions.Manager
	reviews *reviews.Service
	hub     *Hub
	jwt     *auth.JWTVerifier
	server  *httptest.Server
}

func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	for _, uid := range []string{"alice", "bob"} {
		require.NoError(t, store.Create(ctx, docstore.Doc(models.CollUsers, uid), models.NewUser(uid, uid, "", uid)))
	}

	hub := NewHub()
	go hub.Run()
	notifier := NewLiveNotifier(notifications.NewService(store, nil), hub)
	mgr := subscriptions.NewManager(store)
	reviewSvc := reviews.NewService(store, notifier)
	NewViews(hub, mgr, reviewSvc, chat.NewService(store, notifier))

	jwt := auth.NewJWTVerifier([]byte("test-secret"), time.Hour)
	handler := NewHandler(hub, jwt, auth.StoreProfileLoader(store), nil)
	pm := NewPresenceManager(hub, store, DefaultPresenceConfig())
	pm.Start()
	handler.SetPresenceManager(pm)

	router := gin.New()
	router.GET("/ws", handler.HandleWebSocket)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = handler.Shutdown(ctx)
		mgr.Close()
	})
	return &liveEnv{store: store, mgr: mgr, reviews: reviewSvc, hub: hub, jwt: jwt, server: server}
}

func (e *liveEnv) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()
	token, _, err := e.jwt.IssueToken(uid, uid+"@example.com")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// next reads until a message of type msgType arrives
func next(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var msg map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func payloadOf(msg map[string]any) map[string]any {
	p, _ := msg["payload"].(map[string]any)
	return p
}

func TestRejectsMissingToken(t *testing.T) {
	e := newLiveEnv(t)
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	_, resp, err := websocket.Dial(context.Background(), url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReviewViewOverSocket(t *testing.T) {
	e := newLiveEnv(t)
	ctx := context.Background()
	r, err := e.reviews.CreateReview(ctx, "alice", reviews.Input{MovieID: 550, MediaType: "movie", MovieTitle: "Fight Club", Nota: 9})
	require.NoError(t, err)

	conn := e.dial(t, "bob")
	hello := next(t, conn, MessageTypeSystem)
	assert.Equal(t, "profile_loaded", payloadOf(hello)["data"].(map[string]any)["session"])

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"type": "subscribe", "id": "s1",
		"payload": map[string]any{"view": "review", "id": r.ID, "key": "card"},
	}))
	ack := next(t, conn, MessageTypeSubscribed)
	assert.Equal(t, "s1", ack["reply_to"])

	update := next(t, conn, MessageTypeUpdate)
	assert.Equal(t, "card", payloadOf(update)["key"])

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"type":    "toggle_reaction",
		"payload": map[string]any{"key": "card", "emoji": "❤️"},
	}))
	require.Eventually(t, func() bool {
		got, err := e.reviews.Review(ctx, r.ID)
		return err == nil && got.LikeCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, e.mgr.Active())
	conn.Close(websocket.StatusNormalClosure, "bye")
	assert.Eventually(t, func() bool { return e.mgr.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownViewIsRejected(t *testing.T) {
	e := newLiveEnv(t)
	conn := e.dial(t, "alice")
	require.NoError(t, wsjson.Write(context.Background(), conn, map[string]any{
		"type": "subscribe", "id": "x",
		"payload": map[string]any{"view": "timeline", "id": "1"},
	}))
	msg := next(t, conn, MessageTypeError)
	assert.Equal(t, "x", msg["reply_to"])
	assert.Equal(t, "VALIDATION_ERROR", payloadOf(msg)["code"])
}

func TestNotificationsPushedLive(t *testing.T) {
	e := newLiveEnv(t)
	ctx := context.Background()
	conn := e.dial(t, "alice")
	next(t, conn, MessageTypeSystem)
	require.Eventually(t, func() bool { return e.hub.IsUserOnline("alice") }, 2*time.Second, 10*time.Millisecond)

	r, err := e.reviews.CreateReview(ctx, "alice", reviews.Input{MovieID: 13, MediaType: "movie", Nota: 7})
	require.NoError(t, err)
	_, err = e.reviews.AddComment(ctx, r.ID, "bob", "nice pick")
	require.NoError(t, err)

	msg := next(t, conn, MessageTypeNotification)
	assert.Equal(t, models.NotificationComment, payloadOf(msg)["type"])
	assert.Equal(t, r.ID, payloadOf(msg)["reviewId"])
}

func TestPresenceReachesFollowers(t *testing.T) {
	e := newLiveEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Update(ctx, docstore.Doc(models.CollUsers, "alice"),
		docstore.Update{Path: "seguidores", Value: docstore.ArrayUnion("bob")}))

	bob := e.dial(t, "bob")
	next(t, bob, MessageTypeSystem)
	require.Eventually(t, func() bool { return e.hub.IsUserOnline("bob") }, 2*time.Second, 10*time.Millisecond)

	alice := e.dial(t, "alice")
	next(t, alice, MessageTypeSystem)

	msg := next(t, bob, MessageTypeUserOnline)
	assert.Equal(t, "alice", payloadOf(msg)["user_id"])

	require.Eventually(t, func() bool {
		snap, err := e.store.Get(ctx, docstore.Doc(models.CollUsers, "alice"))
		if err != nil {
			return false
		}
		_, ok := snap.Data["lastSeen"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpgradeWriterUnwrapsGin(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	assert.Same(t, rec, upgradeWriter(c.Writer))
}

func TestUpgradeDeliversHelloBehindMiddleware(t *testing.T) {
	e := newLiveEnv(t)
	handler := NewHandler(e.hub, e.jwt, auth.StoreProfileLoader(e.store), nil)

	var status atomic.Int32
	router := gin.New()
	router.Use(gin.Recovery(), func(c *gin.Context) {
		c.Header("X-Request-ID", "req-1")
		c.Next()
		status.Store(int32(c.Writer.Status()))
	})
	router.GET("/ws", handler.HandleWebSocket)
	server := httptest.NewServer(router)
	defer server.Close()

	token, _, err := e.jwt.IssueToken("alice", "alice@example.com")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))

	hello := next(t, conn, MessageTypeSystem)
	assert.Equal(t, "connected", payloadOf(hello)["event"])

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return status.Load() == http.StatusSwitchingProtocols }, 2*time.Second, 10*time.Millisecond)
}
