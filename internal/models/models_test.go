package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgeCatalogChainsAreStrictlyIncreasing(t *testing.T) {
	types := BadgeTypes(BadgeCatalog)
	assert.Equal(t, []string{BadgeCritic, BadgeMarathon, BadgeCommunity, BadgeSocial, BadgePopular}, types)

	ids := make(map[string]bool)
	for _, badgeType := range types {
		chain := BadgeChain(BadgeCatalog, badgeType)
		require.NotEmpty(t, chain)
		for i, b := range chain {
			assert.False(t, ids[b.ID], "duplicate badge id %s", b.ID)
			ids[b.ID] = true
			assert.Equal(t, i+1, b.Rank)
			assert.Equal(t, chain[0].StatField, b.StatField)
			if i > 0 {
				assert.Greater(t, b.Limit, chain[i-1].Limit)
			}
		}
	}
}

func TestUserStatValuesDerivesFollowers(t *testing.T) {
	u := NewUser("u1", "Ana", "Souza", "AnaS")
	u.Seguidores = []string{"a", "b"}
	u.Seguindo = []string{"c"}
	u.Stats[StatReviews] = 4

	stats := u.StatValues()
	assert.Equal(t, int64(2), stats[StatFollowers])
	assert.Equal(t, int64(1), stats[StatFollowing])
	assert.Equal(t, int64(4), stats[StatReviews])
	assert.Equal(t, "anas", u.UsernameLower)
	assert.Equal(t, "Ana Souza", u.Snapshot().Nome)
}

func TestReviewReactionHelpers(t *testing.T) {
	r := Review{Reactions: map[string][]string{"❤️": {"a", "b"}, "😂": {"c"}}}
	assert.Len(t, r.Voters(), 3)
	emoji, ok := r.ReactionOf("c")
	assert.True(t, ok)
	assert.Equal(t, "😂", emoji)
	_, ok = r.ReactionOf("z")
	assert.False(t, ok)
}
