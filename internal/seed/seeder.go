// Package seed fills a store with realistic fake users, follows, reviews,
// comments, lists and clubs for development
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/clubs"
	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/lists"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/social"
)

// Options sizes a seeding run
type Options struct {
	Users           int
	FollowsPerUser  int
	ReviewsPerUser  int
	CommentsPerUser int
	ListsPerUser    int
	Clubs           int
}

// DevOptions is the default development data set
func DevOptions() Options {
	return Options{
		Users:           40,
		FollowsPerUser:  8,
		ReviewsPerUser:  5,
		CommentsPerUser: 6,
		ListsPerUser:    2,
		Clubs:           6,
	}
}

// Summary counts what a run created
type Summary struct {
	Users    int `json:"users"`
	Follows  int `json:"follows"`
	Reviews  int `json:"reviews"`
	Comments int `json:"comments"`
	Lists    int `json:"lists"`
	Clubs    int `json:"clubs"`
	Posts    int `json:"posts"`
}

// Seeder handles seeding through the domain services so counters and
// notifications stay consistent
type Seeder struct {
	social  *social.Service
	reviews *reviews.Service
	lists   *lists.Service
	clubs   *clubs.Service
}

// NewSeeder creates a new seeder instance over store
func NewSeeder(store docstore.Store) *Seeder {
	// Note: Seed returns an error only for invalid sources, time.Now().UnixNano() is always valid
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		social:  social.NewService(store, nil),
		reviews: reviews.NewService(store, nil),
		lists:   lists.NewService(store),
		clubs:   clubs.NewService(store),
	}
}

// Run seeds a data set of the given size
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{}
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating users...")
	users, err := s.seedUsers(ctx, opts.Users)
	if err != nil {
		return sum, fmt.Errorf("failed to seed users: %w", err)
	}
	sum.Users = len(users)
	if len(users) < 2 {
		return sum, errors.New("need at least two users to seed relations")
	}

	log("Creating follows...")
	if sum.Follows, err = s.seedFollows(ctx, users, opts.FollowsPerUser); err != nil {
		return sum, fmt.Errorf("failed to seed follows: %w", err)
	}

	log("Creating reviews...")
	reviewIDs, err := s.seedReviews(ctx, users, opts.ReviewsPerUser)
	if err != nil {
		return sum, fmt.Errorf("failed to seed reviews: %w", err)
	}
	sum.Reviews = len(reviewIDs)

	log("Creating comments...")
	if sum.Comments, err = s.seedComments(ctx, users, reviewIDs, opts.CommentsPerUser); err != nil {
		return sum, fmt.Errorf("failed to seed comments: %w", err)
	}

	log("Creating lists...")
	if sum.Lists, err = s.seedLists(ctx, users, opts.ListsPerUser); err != nil {
		return sum, fmt.Errorf("failed to seed lists: %w", err)
	}

	log("Creating clubs...")
	if sum.Clubs, sum.Posts, err = s.seedClubs(ctx, users, opts.Clubs); err != nil {
		return sum, fmt.Errorf("failed to seed clubs: %w", err)
	}

	logger.Log.Info("Seeding complete",
		zap.Int("users", sum.Users),
		zap.Int("follows", sum.Follows),
		zap.Int("reviews", sum.Reviews),
		zap.Int("comments", sum.Comments),
		zap.Int("lists", sum.Lists),
		zap.Int("clubs", sum.Clubs),
		zap.Int("posts", sum.Posts))
	return sum, nil
}

func username(first string, i int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(first) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		b.WriteString("fan")
	}
	return fmt.Sprintf("%s_%d", b.String(), i)
}

func (s *Seeder) seedUsers(ctx context.Context, count int) ([]string, error) {
	users := make([]string, 0, count)
	for i := 0; i < count; i++ {
		uid := docstore.NewID()
		first := gofakeit.FirstName()
		if _, err := s.social.CreateProfile(ctx, uid, first, gofakeit.LastName(), username(first, i)); err != nil {
			return users, err
		}
		bio := gofakeit.HipsterSentence()
		city := gofakeit.City()
		if _, err := s.social.UpdateProfile(ctx, uid, social.ProfileUpdate{Bio: &bio, Localizacao: &city}); err != nil {
			return users, err
		}
		users = append(users, uid)
	}
	return users, nil
}

// pick returns a random user other than self
func pick(users []string, self string) string {
	for {
		u := users[gofakeit.Number(0, len(users)-1)]
		if u != self {
			return u
		}
	}
}

func (s *Seeder) seedFollows(ctx context.Context, users []string, perUser int) (int, error) {
	perUser = min(perUser, len(users)-1)
	created := 0
	for _, uid := range users {
		for i := 0; i < perUser; i++ {
			target := pick(users, uid)
			following, err := s.social.IsFollowing(ctx, uid, target)
			if err != nil {
				return created, err
			}
			if following {
				continue
			}
			if err := s.social.Follow(ctx, uid, target); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedReviews(ctx context.Context, users []string, perUser int) ([]string, error) {
	var ids []string
	for _, uid := range users {
		for i := 0; i < perUser; i++ {
			mediaType := "movie"
			if gofakeit.Number(0, 3) == 0 {
				mediaType = "tv"
			}
			r, err := s.reviews.CreateReview(ctx, uid, reviews.Input{
				MovieID:    int64(gofakeit.Number(2, 900000)),
				MediaType:  mediaType,
				MovieTitle: gofakeit.MovieName(),
				Nota:       float64(gofakeit.Number(1, 20)) / 2,
				Comentario: gofakeit.HipsterSentence(),
			})
			if err != nil {
				return ids, err
			}
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (s *Seeder) seedComments(ctx context.Context, users, reviewIDs []string, perUser int) (int, error) {
	if len(reviewIDs) == 0 {
		return 0, nil
	}
	created := 0
	for _, uid := range users {
		for i := 0; i < perUser; i++ {
			reviewID := reviewIDs[gofakeit.Number(0, len(reviewIDs)-1)]
			if _, err := s.reviews.AddComment(ctx, reviewID, uid, gofakeit.HipsterSentence()); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedLists(ctx context.Context, users []string, perUser int) (int, error) {
	created := 0
	for _, uid := range users {
		for i := 0; i < perUser; i++ {
			word := gofakeit.Word()
			title := strings.ToUpper(word[:1]) + word[1:] + " picks"
			list, err := s.lists.CreateList(ctx, uid, title, gofakeit.HipsterSentence())
			if err != nil {
				return created, err
			}
			for j := 0; j < gofakeit.Number(2, 8); j++ {
				_, err := s.lists.AddItem(ctx, uid, list.ID, models.ListItem{
					MediaID:     int64(gofakeit.Number(2, 900000)),
					MediaType:   "movie",
					Title:       gofakeit.MovieName(),
					VoteAverage: float64(gofakeit.Number(10, 95)) / 10,
				})
				if err != nil && !apierrors.Is(err, apierrors.ErrAlreadyExists) {
					return created, err
				}
			}
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedClubs(ctx context.Context, users []string, count int) (int, int, error) {
	clubsCreated, posts := 0, 0
	for i := 0; i < count; i++ {
		admin := users[gofakeit.Number(0, len(users)-1)]
		group, err := s.clubs.CreateClub(ctx, admin, gofakeit.MovieName()+" Club", gofakeit.HipsterSentence(), "")
		if err != nil {
			return clubsCreated, posts, err
		}
		clubsCreated++

		members := []string{admin}
		for j := 0; j < gofakeit.Number(2, 10); j++ {
			uid := pick(users, admin)
			if err := s.clubs.Join(ctx, group.ID, uid); err != nil {
				return clubsCreated, posts, err
			}
			members = append(members, uid)
		}
		for j := 0; j < gofakeit.Number(1, 6); j++ {
			author := members[gofakeit.Number(0, len(members)-1)]
			if _, err := s.clubs.CreatePost(ctx, group.ID, author, gofakeit.HipsterSentence()); err != nil {
				return clubsCreated, posts, err
			}
			posts++
		}
	}
	return clubsCreated, posts, nil
}
