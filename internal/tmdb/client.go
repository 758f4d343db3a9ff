// Package tmdb is a read-only client for the movie metadata catalog
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cinesync/backend/internal/cache"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
)

// Cache lifetimes
const (
	LongTTL  = 6 * time.Hour
	ShortTTL = 30 * time.Minute
)

var (
	// ErrNotFound is returned for unknown catalog ids
	ErrNotFound = apierrors.New(apierrors.ErrNotFound, "catalog item not found")
	// ErrUnavailable is returned when the catalog is failing or the breaker is open
	ErrUnavailable = apierrors.New(apierrors.ErrServiceUnavail, "catalog unavailable")
	// ErrInvalidMediaType rejects anything other than movie or tv
	ErrInvalidMediaType = apierrors.New(apierrors.ErrValidation, "media type must be movie or tv")
)

// Options configures a Client
type Options struct {
	BaseURL  string
	APIKey   string
	Language string
	// Requests per second; zero disables limiting
	RateLimit float64
	Timeout   time.Duration
	// Consecutive failures before the breaker opens
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	Cache            cache.Cache
}

// Client issues GET requests with api_key and language parameters. Calls go
// through a token bucket and a circuit breaker, and successful bodies are
// cached.
type Client struct {
	http    *resty.Client
	cache   cache.Cache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

// NewClient builds a catalog client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.themoviedb.org/3"
	}
	if opts.Language == "" {
		opts.Language = "pt-BR"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache("tmdb")
	}

	hc := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	rc := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "CineSync/1.0").
		SetQueryParam("api_key", opts.APIKey).
		SetQueryParam("language", opts.Language)
	rc.JSONUnmarshal = json.Unmarshal
	rc.JSONMarshal = json.Marshal

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1)
	}

	threshold := opts.BreakerThreshold
	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "tmdb",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) ||
				apierrors.Is(err, apierrors.ErrBadRequest)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("Catalog circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.SetTMDBBreakerState(name, int(to))
		},
	})

	return &Client{http: rc, cache: opts.Cache, limiter: limiter, breaker: breaker}
}

func validMediaType(mediaType string) error {
	if mediaType != MediaMovie && mediaType != MediaTV {
		return ErrInvalidMediaType
	}
	return nil
}

func cacheKey(path string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}
	return path + "?" + values.Encode()
}

// get fetches path into out, serving from cache when possible
func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string, ttl time.Duration, out any) error {
	key := cacheKey(path, params)
	if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
	} else if err != nil {
		logger.Log.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		r, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get(path)
		if err != nil {
			return nil, err
		}
		switch {
		case r.StatusCode() == http.StatusNotFound:
			return r, ErrNotFound
		case r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500:
			return r, fmt.Errorf("catalog %s: status %d", endpoint, r.StatusCode())
		case r.IsError():
			return r, apierrors.New(apierrors.ErrBadRequest, fmt.Sprintf("catalog %s: status %d", endpoint, r.StatusCode()))
		}
		return r, nil
	})
	metrics.RecordTMDBRequest(endpoint, time.Since(start), err)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		var derr *apierrors.DomainError
		if errors.As(err, &derr) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode catalog %s: %w", endpoint, err)
	}
	if err := c.cache.Set(ctx, key, resp.Body(), ttl); err != nil {
		logger.Log.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Discover runs a filtered discovery query
func (c *Client) Discover(ctx context.Context, p DiscoverParams) (*PagedResponse, error) {
	if p.MediaType == "" {
		p.MediaType = MediaMovie
	}
	if err := validMediaType(p.MediaType); err != nil {
		return nil, err
	}
	params := map[string]string{
		"sort_by": "popularity.desc",
		"page":    "1",
	}
	if p.SortBy != "" {
		params["sort_by"] = p.SortBy
	}
	if p.Page > 0 {
		params["page"] = strconv.Itoa(p.Page)
	}
	if len(p.Providers) > 0 {
		params["with_watch_providers"] = joinIDs(p.Providers, "|")
		region := p.Region
		if region == "" {
			region = "BR"
		}
		params["watch_region"] = region
	}
	if len(p.Genres) > 0 {
		params["with_genres"] = joinIDs(p.Genres, ",")
	}

	var out PagedResponse
	if err := c.get(ctx, "discover", "/discover/"+p.MediaType, params, ShortTTL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DiscoverByProvider lists popular titles on one streaming provider
func (c *Client) DiscoverByProvider(ctx context.Context, mediaType string, providerID int64, page int) (*PagedResponse, error) {
	return c.Discover(ctx, DiscoverParams{MediaType: mediaType, Providers: []int64{providerID}, Page: page})
}

// PopularByGenre lists popular movies of one genre
func (c *Client) PopularByGenre(ctx context.Context, genreID int64, page int) ([]Media, error) {
	resp, err := c.Discover(ctx, DiscoverParams{MediaType: MediaMovie, Genres: []int64{genreID}, Page: page})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Genres lists the genres of a media type
func (c *Client) Genres(ctx context.Context, mediaType string) ([]Genre, error) {
	if err := validMediaType(mediaType); err != nil {
		return nil, err
	}
	var out genreList
	if err := c.get(ctx, "genres", "/genre/"+mediaType+"/list", nil, LongTTL, &out); err != nil {
		return nil, err
	}
	return out.Genres, nil
}

// Details fetches one item with its watch providers
func (c *Client) Details(ctx context.Context, mediaType string, id int64) (*Details, error) {
	if err := validMediaType(mediaType); err != nil {
		return nil, err
	}
	var out Details
	params := map[string]string{"append_to_response": "watch/providers"}
	if err := c.get(ctx, "details", fmt.Sprintf("/%s/%d", mediaType, id), params, LongTTL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Credits fetches the cast and crew of one item
func (c *Client) Credits(ctx context.Context, mediaType string, id int64) (*Credits, error) {
	if err := validMediaType(mediaType); err != nil {
		return nil, err
	}
	var out Credits
	if err := c.get(ctx, "credits", fmt.Sprintf("/%s/%d/credits", mediaType, id), nil, LongTTL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Images fetches posters and backdrops of one item
func (c *Client) Images(ctx context.Context, mediaType string, id int64) (*Images, error) {
	if err := validMediaType(mediaType); err != nil {
		return nil, err
	}
	var out Images
	params := map[string]string{"include_image_language": "pt,en,null"}
	if err := c.get(ctx, "images", fmt.Sprintf("/%s/%d/images", mediaType, id), params, LongTTL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a multi search across movies and shows
func (c *Client) Search(ctx context.Context, query string, page int) (*PagedResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &PagedResponse{Page: 1}, nil
	}
	if page <= 0 {
		page = 1
	}
	var out PagedResponse
	params := map[string]string{"query": query, "page": strconv.Itoa(page), "include_adult": "false"}
	if err := c.get(ctx, "search", "/search/multi", params, ShortTTL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func joinIDs(ids []int64, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, sep)
}
