package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

func TestSeederRun(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()

	opts := Options{Users: 5, FollowsPerUser: 2, ReviewsPerUser: 2, CommentsPerUser: 1, ListsPerUser: 1, Clubs: 1}
	sum, err := NewSeeder(store).Run(ctx, opts)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Users)
	assert.Equal(t, 10, sum.Reviews)
	assert.Equal(t, 5, sum.Comments)
	assert.Equal(t, 5, sum.Lists)
	assert.Equal(t, 1, sum.Clubs)
	assert.LessOrEqual(t, sum.Follows, 10)

	n, err := store.Count(ctx, docstore.From(models.CollReviews))
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	// counters are maintained by the services
	page, err := store.Query(ctx, docstore.From(models.CollUsers))
	require.NoError(t, err)
	var reviews int64
	for _, snap := range page.Docs {
		var u models.User
		require.NoError(t, snap.DataTo(&u))
		reviews += u.Stats[models.StatReviews]
	}
	assert.EqualValues(t, 10, reviews)
}

func TestSeederNeedsTwoUsers(t *testing.T) {
	_, err := NewSeeder(docstore.NewMemoryStore()).Run(context.Background(), Options{Users: 1})
	assert.Error(t, err)
}

func TestUsername(t *testing.T) {
	assert.Equal(t, "jos_3", username("José", 3))
	assert.Equal(t, "alfan_0", username("Al", 0))
}
