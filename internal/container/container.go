// Package container builds and owns every long-lived dependency of the
// CineSync backend. The API server and the admin CLI share it so both run
// the same store, services and trigger pipeline.
package container

import (
	"context"
	"errors"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/cinesync/backend/internal/auth"
	"github.com/cinesync/backend/internal/battles"
	"github.com/cinesync/backend/internal/cache"
	"github.com/cinesync/backend/internal/chat"
	"github.com/cinesync/backend/internal/clubs"
	"github.com/cinesync/backend/internal/config"
	"github.com/cinesync/backend/internal/database"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/feed"
	"github.com/cinesync/backend/internal/gamification"
	"github.com/cinesync/backend/internal/handlers"
	"github.com/cinesync/backend/internal/lists"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
	"github.com/cinesync/backend/internal/push"
	"github.com/cinesync/backend/internal/queue"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/search"
	"github.com/cinesync/backend/internal/social"
	"github.com/cinesync/backend/internal/storage"
	"github.com/cinesync/backend/internal/subscriptions"
	"github.com/cinesync/backend/internal/tmdb"
	"github.com/cinesync/backend/internal/validation"
	"github.com/cinesync/backend/internal/websocket"
)

const devTokenTTL = 24 * time.Hour

// Container holds all application dependencies. Infrastructure can be
// injected with the With* setters before Init; anything left unset is
// opened from the config.
type Container struct {
	cfg *config.Config

	// Core infrastructure
	store    docstore.Store
	db       *gorm.DB
	redis    *cache.RedisClient
	app      *firebase.App
	verifier auth.Verifier
	catalog  *tmdb.Client
	search   *search.Client
	uploader storage.ImageUploader
	sender   push.Sender

	// Domain services
	notifications *notifications.Service
	social        *social.Service
	reviews       *reviews.Service
	lists         *lists.Service
	chat          *chat.Service
	clubs         *clubs.Service
	battles       *battles.Service
	feed          *feed.Service

	// Triggers and realtime
	engine    *gamification.Engine
	triggers  *queue.TriggerQueue
	subs      *subscriptions.Manager
	hub       *websocket.Hub
	presence  *websocket.PresenceManager
	wsHandler *websocket.Handler

	initialized bool
	started     bool

	// Lifecycle hooks
	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// New creates an empty container for cfg
func New(cfg *config.Config) *Container {
	return &Container{
		cfg:          cfg,
		cleanupFuncs: make([]func(context.Context) error, 0),
	}
}

// Build opens everything cfg describes and wires the services
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := New(cfg)
	if err := c.Init(ctx); err != nil {
		_ = c.Cleanup(context.Background())
		return nil, err
	}
	return c, nil
}

// WithStore injects the document store
func (c *Container) WithStore(store docstore.Store) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
	return c
}

// WithRedis injects the redis client
func (c *Container) WithRedis(rc *cache.RedisClient) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redis = rc
	return c
}

// WithCatalog injects the metadata client
func (c *Container) WithCatalog(client *tmdb.Client) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = client
	return c
}

// WithUploader injects the image uploader
func (c *Container) WithUploader(u storage.ImageUploader) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploader = u
	return c
}

// WithPushSender injects the push sender
func (c *Container) WithPushSender(s push.Sender) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = s
	return c
}

// Init opens missing infrastructure and wires the services. It is safe to
// call once.
func (c *Container) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"firebase", c.openFirebase},
		{"store", c.openStore},
		{"redis", c.openRedis},
		{"auth", c.openVerifier},
		{"catalog", c.openCatalog},
		{"search", c.openSearch},
		{"uploader", c.openUploader},
		{"push", c.openPush},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return &OpenError{Component: step.name, Err: err}
		}
	}

	c.wire()
	c.initialized = true
	return c.validateLocked()
}

func (c *Container) openFirebase(ctx context.Context) error {
	if c.app != nil || c.cfg.FirebaseProjectID == "" {
		return nil
	}
	var opts []option.ClientOption
	if c.cfg.FirebaseCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.cfg.FirebaseCredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: c.cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return err
	}
	c.app = app
	return nil
}

func (c *Container) openStore(ctx context.Context) error {
	if c.store != nil {
		return nil
	}
	switch c.cfg.DocstoreBackend {
	case config.BackendSQL:
		db, err := database.Open(database.Options{
			DatabaseURL: c.cfg.DatabaseURL,
			SQLitePath:  c.cfg.SQLitePath,
			Debug:       c.cfg.LogLevel == "debug",
		})
		if err != nil {
			return err
		}
		if err := database.MigrateDB(db); err != nil {
			return err
		}
		c.db = db
		c.store = docstore.NewSQLStore(db)
		c.onCleanupLocked(func(context.Context) error { return database.Close(db) })
	case config.BackendFirestore:
		if c.app == nil {
			return errors.New("firestore backend needs a firebase app")
		}
		store, err := docstore.NewFirestoreStore(ctx, c.app)
		if err != nil {
			return err
		}
		c.store = store
		c.onCleanupLocked(func(context.Context) error { return store.Close() })
	default:
		c.store = docstore.NewMemoryStore()
	}
	logger.Log.Info("Document store ready", zap.String("backend", c.cfg.DocstoreBackend))
	return nil
}

func (c *Container) openRedis(ctx context.Context) error {
	if c.redis != nil || !c.cfg.RedisEnabled() {
		return nil
	}
	rc, err := cache.NewRedisClient(c.cfg.RedisHost, c.cfg.RedisPort, c.cfg.RedisPassword)
	if err != nil {
		if c.cfg.IsProduction() {
			return err
		}
		// Development keeps running on in-memory caches.
		logger.Log.Warn("Redis unavailable, using in-memory caches", zap.Error(err))
		return nil
	}
	c.redis = rc
	c.onCleanupLocked(func(context.Context) error { return rc.Close() })
	return nil
}

func (c *Container) openVerifier(ctx context.Context) error {
	if c.verifier != nil {
		return nil
	}
	var chain auth.Chain
	if c.app != nil {
		fv, err := auth.NewFirebaseVerifier(ctx, c.app)
		if err != nil {
			return err
		}
		chain = append(chain, fv)
	}
	if c.cfg.JWTSecret != "" {
		chain = append(chain, auth.NewJWTVerifier([]byte(c.cfg.JWTSecret), devTokenTTL))
	}
	if len(chain) == 0 {
		return errors.New("no token verifier configured")
	}
	c.verifier = chain
	return nil
}

func (c *Container) openCatalog(ctx context.Context) error {
	if c.catalog != nil || c.cfg.TMDBAPIKey == "" {
		return nil
	}
	c.catalog = tmdb.NewClient(tmdb.Options{
		BaseURL:   c.cfg.TMDBBaseURL,
		APIKey:    c.cfg.TMDBAPIKey,
		Language:  c.cfg.TMDBLanguage,
		RateLimit: c.cfg.TMDBRateLimit,
		Cache:     c.cacheFor("tmdb"),
	})
	return nil
}

func (c *Container) openSearch(ctx context.Context) error {
	if c.search != nil || c.cfg.ElasticsearchURL == "" {
		return nil
	}
	client, err := search.NewClient(c.cfg.ElasticsearchURL)
	if err == nil {
		err = client.EnsureIndex(ctx)
	}
	if err != nil {
		if c.cfg.IsProduction() {
			return err
		}
		logger.Log.Warn("Search index unavailable, using store prefix search", zap.Error(err))
		return nil
	}
	c.search = client
	return nil
}

func (c *Container) openUploader(ctx context.Context) error {
	if c.uploader != nil {
		return nil
	}
	if c.cfg.AWSBucket != "" {
		u, err := storage.NewS3Uploader(ctx, c.cfg.AWSRegion, c.cfg.AWSBucket, c.cfg.CDNBaseURL)
		if err != nil {
			return err
		}
		c.uploader = u
		return nil
	}
	if !c.cfg.IsProduction() {
		c.uploader = storage.NewMemoryUploader(c.cfg.CDNBaseURL)
	}
	return nil
}

func (c *Container) openPush(ctx context.Context) error {
	if c.sender != nil {
		return nil
	}
	if c.app == nil {
		c.sender = push.NewRecorder()
		return nil
	}
	sender, err := push.NewFCMSender(ctx, c.app)
	if err != nil {
		return err
	}
	c.sender = sender
	return nil
}

// cacheFor prefers redis and falls back to a process-local cache
func (c *Container) cacheFor(name string) cache.Cache {
	if c.redis != nil {
		return cache.NewRedisCache(c.redis, name)
	}
	return cache.NewMemoryCache(name)
}

// wire builds the services on top of the opened infrastructure
func (c *Container) wire() {
	c.hub = websocket.NewHub()
	c.notifications = notifications.NewService(c.store, c.sender)
	live := websocket.NewLiveNotifier(c.notifications, c.hub)

	c.social = social.NewService(c.store, live)
	if c.search != nil {
		c.social.SetSearcher(c.search)
	}
	c.reviews = reviews.NewService(c.store, live)
	c.lists = lists.NewService(c.store)
	c.chat = chat.NewService(c.store, live)
	c.clubs = clubs.NewService(c.store)

	var catalog battles.Catalog
	var synth feed.Synthesizer
	if c.catalog != nil {
		catalog = c.catalog
	}
	c.battles = battles.NewService(c.store, catalog)
	if catalog != nil {
		synth = c.battles
	}

	agg := feed.NewAggregator(c.store, synth)
	agg.SetInLimit(c.cfg.FeedInMaxValues)
	c.feed = feed.NewService(agg, feed.NewSessionStore(c.cacheFor("feed"), c.cfg.FeedSessionTTL))

	c.engine = gamification.NewEngine(c.store)
	c.engine.OnAward(c.announceAward)
	chain := []queue.Handler{c.awardHandler}
	if c.search != nil {
		chain = append(chain, search.NewIndexer(c.search).Handle)
	}
	c.triggers = queue.NewTriggerQueue(queue.Chain(chain...), queue.Options{Workers: c.cfg.TriggerWorkers})
	if cf, ok := c.store.(docstore.ChangeFeed); ok {
		cf.OnChange(c.triggers.Hook())
	}

	c.subs = subscriptions.NewManager(c.store)
	c.onCleanupLocked(func(context.Context) error {
		c.subs.Close()
		return nil
	})

	websocket.NewViews(c.hub, c.subs, c.reviews, c.chat)
	c.presence = websocket.NewPresenceManager(c.hub, c.store, websocket.DefaultPresenceConfig())
	c.wsHandler = websocket.NewHandler(c.hub, c.verifier, auth.StoreProfileLoader(c.store), c.originPatterns())
	c.wsHandler.SetPresenceManager(c.presence)
}

func (c *Container) awardHandler(ctx context.Context, ev docstore.ChangeEvent) error {
	_, err := c.engine.Handle(ctx, ev)
	return err
}

func (c *Container) announceAward(res gamification.Result) {
	if res.Duplicate || !c.hub.IsUserOnline(res.UID) {
		return
	}
	payload := websocket.AwardPayload{Reason: res.Reason, Points: res.Points}
	for _, b := range res.NewBadges {
		payload.NewBadges = append(payload.NewBadges, b.ID)
	}
	c.hub.SendToUser(res.UID, websocket.NewMessage(websocket.MessageTypeAward, payload))
}

func (c *Container) originPatterns() []string {
	var patterns []string
	for _, o := range c.cfg.CORSOrigins {
		if o != "*" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// Start launches the trigger workers. With realtime set it also runs the
// websocket hub and presence tracking.
func (c *Container) Start(realtime bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	c.triggers.Start()
	c.onCleanupLocked(func(context.Context) error {
		c.triggers.Stop()
		return nil
	})

	if realtime {
		go c.hub.Run()
		c.presence.Start()
		c.onCleanupLocked(c.wsHandler.Shutdown)
	}
}

// Validate checks that every required dependency is present
func (c *Container) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

func (c *Container) validateLocked() error {
	var missing []string
	if c.store == nil {
		missing = append(missing, "store")
	}
	if c.verifier == nil {
		missing = append(missing, "verifier")
	}
	if c.sender == nil {
		missing = append(missing, "push")
	}
	if c.triggers == nil {
		missing = append(missing, "triggers")
	}
	if len(missing) > 0 {
		return NewInitializationError("container is missing required dependencies", missing)
	}
	return nil
}

// RegisterChecks adds a health check for every external service the
// container opened
func (c *Container) RegisterChecks(v *validation.ServiceValidator) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	store := c.store
	v.Register("store", func(ctx context.Context) error {
		_, err := store.Count(ctx, docstore.From(models.CollUsers).Limit(1))
		return err
	})
	if rc := c.redis; rc != nil {
		v.Register("redis", rc.Ping)
	}
	if s3u, ok := c.uploader.(*storage.S3Uploader); ok {
		v.Register("s3", s3u.CheckBucketAccess)
	}
	if catalog := c.catalog; catalog != nil {
		v.Register("tmdb", func(ctx context.Context) error {
			_, err := catalog.Genres(ctx, tmdb.MediaMovie)
			return err
		})
	}
	if sc := c.search; sc != nil {
		v.Register("search", sc.Ping)
	}
	if app := c.app; app != nil {
		v.Register("fcm", func(ctx context.Context) error {
			_, err := app.Messaging(ctx)
			return err
		})
	}
}

// Handlers returns HTTP handlers bound to the container's services
func (c *Container) Handlers() *handlers.Handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := handlers.NewHandlers(handlers.Services{
		Store:         c.store,
		Feed:          c.feed,
		Social:        c.social,
		Reviews:       c.reviews,
		Lists:         c.lists,
		Chat:          c.chat,
		Clubs:         c.clubs,
		Battles:       c.battles,
		Notifications: c.notifications,
		Catalog:       c.catalog,
	})
	if c.uploader != nil {
		h.SetUploader(c.uploader)
	}
	h.SetTriggerIntake(c.triggers, c.cfg.TriggerSecret)
	h.SetWebSocketHandler(c.wsHandler)
	return h
}

// Config returns the configuration the container was built from
func (c *Container) Config() *config.Config { return c.cfg }

// Store returns the document store
func (c *Container) Store() docstore.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Redis returns the redis client, nil when redis is disabled
func (c *Container) Redis() *cache.RedisClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.redis
}

// Verifier returns the token verifier chain
func (c *Container) Verifier() auth.Verifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verifier
}

// Reviews returns the review service
func (c *Container) Reviews() *reviews.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reviews
}

// Social returns the profile and follow service
func (c *Container) Social() *social.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.social
}

// Search returns the user search index, nil when disabled
func (c *Container) Search() *search.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.search
}

// Triggers returns the trigger queue
func (c *Container) Triggers() *queue.TriggerQueue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.triggers
}

// Engine returns the gamification engine
func (c *Container) Engine() *gamification.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// OnCleanup registers a cleanup function run by Cleanup
func (c *Container) OnCleanup(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCleanupLocked(fn)
}

func (c *Container) onCleanupLocked(fn func(context.Context) error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Cleanup runs cleanup functions in reverse registration order and returns
// the first error
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	var firstErr error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			logger.Log.Warn("Cleanup step failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
