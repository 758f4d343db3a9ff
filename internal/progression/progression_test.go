package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/backend/internal/models"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		xp    int64
		level int
	}{
		{-10, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{599, 3},
		{600, 4},
		{999, 4},
		{1000, 5},
		{1499, 5},
		{1500, 6},
		{2000, 7},
		{10_000, 23},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, Level(tt.xp), "xp=%d", tt.xp)
	}
}

func TestLevelMonotonic(t *testing.T) {
	prev := Level(0)
	for xp := int64(1); xp <= 20_000; xp++ {
		l := Level(xp)
		require.GreaterOrEqual(t, l, prev, "xp=%d", xp)
		prev = l
	}
}

func TestNextLevelThresholdIsInverse(t *testing.T) {
	for level := 1; level <= 40; level++ {
		next := NextLevelThreshold(level)
		assert.Equal(t, level, Level(next-1), "level %d below threshold %d", level, next)
		assert.Equal(t, level+1, Level(next), "level %d at threshold %d", level, next)
	}
	assert.Equal(t, int64(100), NextLevelThreshold(1))
	assert.Equal(t, int64(1000), NextLevelThreshold(4))
	assert.Equal(t, int64(1500), NextLevelThreshold(5))
}

func TestProgress(t *testing.T) {
	p := Progress(200)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(100), p.Current)
	assert.Equal(t, int64(300), p.Next)
	assert.InDelta(t, 50.0, p.Percent, 0.001)

	assert.InDelta(t, 0.0, Progress(0).Percent, 0.001)
	assert.InDelta(t, 0.0, Progress(-50).Percent, 0.001)
	assert.InDelta(t, 20.0, Progress(1100).Percent, 0.001)
}

func TestEvolutionaryBadgeView_NothingEarned(t *testing.T) {
	views := EvolutionaryBadgeView(models.BadgeCatalog, nil, map[string]int64{})
	require.Len(t, views, 5)
	for _, v := range views {
		assert.True(t, v.Locked, v.Type)
		assert.False(t, v.Earned)
		assert.False(t, v.IsMax)
		assert.Equal(t, 1, v.Badge.Rank)
		assert.Equal(t, int64(0), v.Progress.Current)
		assert.Equal(t, v.Badge.Limit, v.Progress.Target)
		assert.Equal(t, 0.0, v.Progress.Percent)
	}
}

func TestEvolutionaryBadgeView_Mixed(t *testing.T) {
	earned := []string{"critic_bronze", "critic_silver", "social_bronze", "social_silver", "social_gold"}
	stats := map[string]int64{
		models.StatReviews:   12,
		models.StatFollowers: 250,
		models.StatLists:     2,
	}

	views := EvolutionaryBadgeView(models.BadgeCatalog, earned, stats)
	byType := make(map[string]CategoryView)
	for _, v := range views {
		byType[v.Type] = v
	}

	critic := byType[models.BadgeCritic]
	assert.Equal(t, "critic_silver", critic.Badge.ID)
	assert.True(t, critic.Earned)
	require.NotNil(t, critic.Next)
	assert.Equal(t, "critic_gold", critic.Next.ID)
	assert.Equal(t, BadgeProgress{Current: 12, Target: 50, Percent: 24}, critic.Progress)

	social := byType[models.BadgeSocial]
	assert.True(t, social.IsMax)
	assert.Equal(t, "social_gold", social.Badge.ID)
	assert.Equal(t, 100.0, social.Progress.Percent)

	marathon := byType[models.BadgeMarathon]
	assert.True(t, marathon.Locked)
	assert.InDelta(t, 66.666, marathon.Progress.Percent, 0.01)
}

func TestEvolutionaryBadgeView_ClampsOverflow(t *testing.T) {
	views := EvolutionaryBadgeView(models.BadgeCatalog, nil, map[string]int64{models.StatReviews: 7})
	assert.Equal(t, 100.0, views[0].Progress.Percent)
}

func TestQualifiedBadges(t *testing.T) {
	got := QualifiedBadges(models.BadgeCatalog, models.BadgeCritic, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "critic_bronze", got[0].ID)
	assert.Equal(t, "critic_silver", got[1].ID)
	assert.Empty(t, QualifiedBadges(models.BadgeCatalog, models.BadgeCritic, 0))
}
