package feed

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/cache"
	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
)

var (
	ErrSessionNotFound = apierrors.New(apierrors.ErrNotFound, "feed session not found")
	ErrSessionOwner    = apierrors.New(apierrors.ErrForbidden, "feed session belongs to another user")
)

// SessionStore persists feed sessions between "load more" calls
type SessionStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewSessionStore keeps sessions in c for ttl after their last use. Pass a
// RedisCache in production and a MemoryCache otherwise.
func NewSessionStore(c cache.Cache, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{cache: c, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	ok, err := cache.GetJSON(ctx, s.cache, id, &sess)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Cursors == nil {
		sess.Cursors = make(map[string]string)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	return cache.SetJSON(ctx, s.cache, sess.ID, sess, s.ttl)
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, id)
}

// Service ties sessions to the aggregator for the HTTP layer
type Service struct {
	agg      *Aggregator
	sessions *SessionStore
}

// NewService creates a feed service
func NewService(agg *Aggregator, sessions *SessionStore) *Service {
	return &Service{agg: agg, sessions: sessions}
}

// Load returns the next page of the viewer's feed. An empty or expired
// sessionID starts a new session; a mode different from the session's
// rewinds it.
func (s *Service) Load(ctx context.Context, viewerID, sessionID, mode string) (*Page, error) {
	sess, err := s.session(ctx, viewerID, sessionID, mode)
	if err != nil {
		return nil, err
	}
	if !sess.HasMore && sess.Pages > 0 {
		return &Page{SessionID: sess.ID, Mode: sess.Mode, Items: []Item{}, HasMore: false}, nil
	}

	page := s.agg.LoadMore(ctx, sess)
	if page.Items == nil {
		page.Items = []Item{}
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		logger.Log.Warn("Failed to save feed session", zap.String("session", sess.ID), zap.Error(err))
		metrics.RecordError("feed_session_save", "feed")
	}
	return page, nil
}

// Reset rewinds a session to the first page
func (s *Service) Reset(ctx context.Context, viewerID, sessionID, mode string) (*Session, error) {
	sess, err := s.session(ctx, viewerID, sessionID, mode)
	if err != nil {
		return nil, err
	}
	sess.Reset()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) session(ctx context.Context, viewerID, sessionID, mode string) (*Session, error) {
	if sessionID == "" {
		return NewSession(docstore.NewID(), viewerID, mode), nil
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return NewSession(sessionID, viewerID, mode), nil
	}
	if err != nil {
		return nil, err
	}
	if sess.ViewerID != viewerID {
		return nil, ErrSessionOwner
	}
	if mode != "" {
		sess.SetMode(mode)
	}
	return sess, nil
}
