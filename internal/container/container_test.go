package container

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/auth"
	"github.com/cinesync/backend/internal/cache"
	"github.com/cinesync/backend/internal/config"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/middleware"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/push"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/storage"
	"github.com/cinesync/backend/internal/tmdb"
	"github.com/cinesync/backend/internal/validation"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Environment:     "test",
		DocstoreBackend: config.BackendMemory,
		JWTSecret:       "test-secret",
		TriggerWorkers:  2,
		FeedSessionTTL:  time.Minute,
		FeedInMaxValues: 30,
		CDNBaseURL:      "https://cdn.test",
	}
}

type ContainerTestSuite struct {
	suite.Suite
	ctx context.Context
	c   *Container
}

func TestContainerTestSuite(t *testing.T) {
	suite.Run(t, new(ContainerTestSuite))
}

func (suite *ContainerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.ctx = context.Background()
	c, err := Build(suite.ctx, testConfig())
	suite.Require().NoError(err)
	suite.c = c
}

func (suite *ContainerTestSuite) TearDownTest() {
	suite.NoError(suite.c.Cleanup(suite.ctx))
}

func (suite *ContainerTestSuite) TestMemoryBackendIsWired() {
	suite.NoError(suite.c.Validate())
	suite.IsType(&docstore.MemoryStore{}, suite.c.Store())
	suite.Nil(suite.c.Redis())
	suite.NotNil(suite.c.Verifier())
}

func (suite *ContainerTestSuite) TestReviewAwardsXPThroughChangeFeed() {
	suite.c.Start(false)

	_, err := suite.c.Social().CreateProfile(suite.ctx, "ana", "Ana", "Silva", "ana")
	suite.Require().NoError(err)
	_, err = suite.c.Reviews().CreateReview(suite.ctx, "ana", reviews.Input{
		MovieID:    603,
		MediaType:  "movie",
		MovieTitle: "The Matrix",
		Nota:       9,
	})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.c.Triggers().WaitIdle(2 * time.Second))

	snap, err := suite.c.Store().Get(suite.ctx, docstore.Doc(models.CollUsers, "ana"))
	suite.Require().NoError(err)
	var u models.User
	suite.Require().NoError(snap.DataTo(&u))
	suite.Equal(int64(30), u.XP)
}

func (suite *ContainerTestSuite) TestHandlersServeHealth() {
	router := gin.New()
	loader := auth.StoreProfileLoader(suite.c.Store())
	suite.c.Handlers().RegisterRoutes(router, middleware.Authenticate(suite.c.Verifier(), loader), suite.c.Redis())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	suite.Equal(http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil))
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *ContainerTestSuite) TestRegisterChecks() {
	v := validation.NewServiceValidatorFor([]string{"store"})
	suite.c.RegisterChecks(v)
	suite.NoError(v.ValidateServices(suite.ctx))

	v = validation.NewServiceValidatorFor([]string{"redis"})
	suite.c.RegisterChecks(v)
	suite.Error(v.ValidateServices(suite.ctx))
}

func TestBuildWithoutVerifierFails(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, "auth", openErr.Component)
}

func TestInjectedDependenciesWin(t *testing.T) {
	store := docstore.NewMemoryStore()
	rec := push.NewRecorder()

	c := New(testConfig()).WithStore(store).WithPushSender(rec)
	require.NoError(t, c.Init(context.Background()))
	defer c.Cleanup(context.Background())

	assert.Same(t, store, c.Store())
}

func TestInjectedInfrastructurePassesChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := cache.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	catalogAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"genres":[{"id":28,"name":"Ação"}]}`))
	}))
	defer catalogAPI.Close()

	uploader := storage.NewMemoryUploader("https://cdn.test")
	c := New(testConfig()).
		WithRedis(rc).
		WithUploader(uploader).
		WithCatalog(tmdb.NewClient(tmdb.Options{BaseURL: catalogAPI.URL, APIKey: "k"}))
	require.NoError(t, c.Init(context.Background()))
	defer c.Cleanup(context.Background())

	assert.Same(t, rc, c.Redis())

	v := validation.NewServiceValidatorFor([]string{"store", "redis", "tmdb"})
	c.RegisterChecks(v)
	assert.NoError(t, v.ValidateServices(context.Background()))

	mr.Close()
	assert.Error(t, v.ValidateServices(context.Background()))
}

func TestCleanupRunsInReverseOrder(t *testing.T) {
	c := New(testConfig())
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		c.OnCleanup(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}
	boom := errors.New("boom")
	c.OnCleanup(func(context.Context) error { return boom })

	assert.ErrorIs(t, c.Cleanup(context.Background()), boom)
	assert.Equal(t, []int{3, 2, 1}, order)

	assert.NoError(t, c.Cleanup(context.Background()))
	assert.Len(t, order, 3)
}

func TestValidateReportsMissing(t *testing.T) {
	err := New(testConfig()).Validate()
	var initErr *InitializationError
	require.True(t, errors.As(err, &initErr))
	assert.ElementsMatch(t, []string{"store", "verifier", "push", "triggers"}, initErr.MissingDeps)
}
