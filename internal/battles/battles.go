// Package battles implements head to head votes between two catalog items
package battles

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/tmdb"
)

var (
	ErrAlreadyVoted = apierrors.New(apierrors.ErrConflict, "already voted in this battle")
	ErrInvalidSide  = apierrors.NewField("side", "side must be A or B")
	ErrSameMovie    = apierrors.NewField("movieB", "a battle needs two different titles")
	ErrNoCandidates = errors.New("not enough catalog candidates for a battle")
)

// Catalog is the slice of the metadata client battles need
type Catalog interface {
	Genres(ctx context.Context, mediaType string) ([]tmdb.Genre, error)
	PopularByGenre(ctx context.Context, genreID int64, page int) ([]tmdb.Media, error)
}

// ID returns the canonical battle id for two catalog ids, independent of order
func ID(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + "_vs_" + strconv.FormatInt(b, 10)
}

// Service manages battle documents and votes
type Service struct {
	store   docstore.Store
	catalog Catalog
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand

	attempts     uint
	retryInitial time.Duration
}

// NewService creates a battle service
func NewService(store docstore.Store, catalog Catalog) *Service {
	return &Service{
		store:        store,
		catalog:      catalog,
		now:          time.Now,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		attempts:     3,
		retryInitial: 250 * time.Millisecond,
	}
}

// SetRand replaces the random source used for sampling
func (s *Service) SetRand(r *rand.Rand) {
	s.mu.Lock()
	s.rng = r
	s.mu.Unlock()
}

// SetRetryPolicy overrides the synthesis retry budget
func (s *Service) SetRetryPolicy(attempts uint, initial time.Duration) {
	s.attempts = attempts
	s.retryInitial = initial
}

func (s *Service) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Get loads a stored battle
func (s *Service) Get(ctx context.Context, id string) (*models.Battle, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollBattles, id))
	if err != nil {
		return nil, err
	}
	var b models.Battle
	if err := snap.DataTo(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Ensure creates the battle between two titles if it does not exist yet
func (s *Service) Ensure(ctx context.Context, a, b models.BattleMovie, genreID int64) (*models.Battle, error) {
	if a.ID == b.ID {
		return nil, ErrSameMovie
	}
	if b.ID < a.ID {
		a, b = b, a
	}
	id := ID(a.ID, b.ID)
	ref := docstore.Doc(models.CollBattles, id)

	var out models.Battle
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ref)
		if err == nil {
			return snap.DataTo(&out)
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		out = models.Battle{
			ID:        id,
			MovieA:    a,
			MovieB:    b,
			GenreID:   genreID,
			Timestamp: s.now().UTC(),
		}
		return tx.Create(ref, out)
	})
	if err != nil {
		return nil, fmt.Errorf("ensure battle %s: %w", id, err)
	}
	return &out, nil
}

// Vote records one vote per user. A second vote returns ErrAlreadyVoted and
// leaves the counters untouched.
func (s *Service) Vote(ctx context.Context, battleID, voterID, side string) (*models.Battle, error) {
	if side != models.SideA && side != models.SideB {
		return nil, ErrInvalidSide
	}
	battleRef := docstore.Doc(models.CollBattles, battleID)
	voteRef := docstore.Doc(battleRef.Sub(models.SubVotes), voterID)

	var out models.Battle
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(battleRef)
		if err != nil {
			return err
		}
		if _, err := tx.Get(voteRef); err == nil {
			return ErrAlreadyVoted
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		if err := snap.DataTo(&out); err != nil {
			return err
		}

		field := "votesA"
		if side == models.SideB {
			field = "votesB"
			out.VotesB++
		} else {
			out.VotesA++
		}
		out.TotalVotes++

		if err := tx.Create(voteRef, models.Vote{UID: voterID, Side: side, Timestamp: s.now().UTC()}); err != nil {
			return err
		}
		return tx.Update(battleRef,
			docstore.Update{Path: field, Value: docstore.Increment(1)},
			docstore.Update{Path: "totalVotes", Value: docstore.Increment(1)},
		)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordBattleVote(side)
	logger.Log.Info("Battle vote recorded", logger.WithBattleID(battleID), logger.WithUserID(voterID), zap.String("side", side))
	return &out, nil
}

// VoteOf returns the viewer's vote, or nil when they have not voted
func (s *Service) VoteOf(ctx context.Context, battleID, uid string) (*models.Vote, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(docstore.Doc(models.CollBattles, battleID).Sub(models.SubVotes), uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v models.Vote
	if err := snap.DataTo(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Synthesize samples two popular titles of a random genre from a random page
// (RandomSample) and stores the pair through Ensure, so the returned battle
// can be voted on. Each failed attempt resamples genre and page; after the
// retry budget the error is returned and callers skip the battle.
func (s *Service) Synthesize(ctx context.Context) (*models.Battle, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInitial
	policy.MaxInterval = 4 * s.retryInitial

	battle, err := backoff.Retry(ctx, func() (*models.Battle, error) {
		return s.sample(ctx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Log.Warn("Battle synthesis failed, resampling", logger.WithSource("battles"), zap.Duration("retry_in", next), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("synthesize battle: %w", err)
	}
	return s.Ensure(ctx, battle.MovieA, battle.MovieB, battle.GenreID)
}

func (s *Service) sample(ctx context.Context) (*models.Battle, error) {
	genres, err := s.catalog.Genres(ctx, tmdb.MediaMovie)
	if err != nil {
		return nil, err
	}
	if len(genres) == 0 {
		return nil, ErrNoCandidates
	}
	genre := genres[s.intN(len(genres))]
	page := 1 + s.intN(10)

	results, err := s.catalog.PopularByGenre(ctx, genre.ID, page)
	if err != nil {
		return nil, err
	}
	var candidates []tmdb.Media
	for _, m := range results {
		if m.PosterPath != "" {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) < 2 {
		return nil, ErrNoCandidates
	}

	i := s.intN(len(candidates))
	j := s.intN(len(candidates) - 1)
	if j >= i {
		j++
	}
	a, b := toBattleMovie(candidates[i]), toBattleMovie(candidates[j])
	if b.ID < a.ID {
		a, b = b, a
	}
	return &models.Battle{
		ID:        ID(a.ID, b.ID),
		MovieA:    a,
		MovieB:    b,
		GenreID:   genre.ID,
		Timestamp: s.now().UTC(),
	}, nil
}

func toBattleMovie(m tmdb.Media) models.BattleMovie {
	return models.BattleMovie{
		ID:          m.ID,
		Title:       m.DisplayTitle(),
		PosterPath:  m.PosterPath,
		VoteAverage: m.VoteAverage,
	}
}
