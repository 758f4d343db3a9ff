// Package progression maps experience points to levels and a badge catalog
// to the per-category trophy shelf. Everything here is pure.
package progression

import "github.com/cinesync/backend/internal/models"

// Cumulative xp at which levels 2..5 start. Past the last entry every
// LevelStep xp is one more level.
var levelStarts = []int64{100, 300, 600, 1000}

// LevelStep is the xp width of every level after the fixed ones
const LevelStep = 500

// Level returns the level for an xp total. Level 1 starts at 0 xp.
func Level(xp int64) int {
	for i, start := range levelStarts {
		if xp < start {
			return i + 1
		}
	}
	last := levelStarts[len(levelStarts)-1]
	return len(levelStarts) + 1 + int((xp-last)/LevelStep)
}

// LevelThreshold returns the xp at which a level starts
func LevelThreshold(level int) int64 {
	switch {
	case level <= 1:
		return 0
	case level-2 < len(levelStarts):
		return levelStarts[level-2]
	}
	fixed := len(levelStarts) + 1
	return levelStarts[len(levelStarts)-1] + int64(level-fixed)*LevelStep
}

// NextLevelThreshold returns the xp needed to reach level+1
func NextLevelThreshold(level int) int64 {
	if level < 1 {
		level = 1
	}
	return LevelThreshold(level + 1)
}

// LevelProgress is the progress bar state for an xp total
type LevelProgress struct {
	XP      int64   `json:"xp"`
	Level   int     `json:"level"`
	Current int64   `json:"current"`
	Next    int64   `json:"next"`
	Percent float64 `json:"percent"`
}

// Progress computes the progress towards the next level, clamped to [0,100]
func Progress(xp int64) LevelProgress {
	level := Level(xp)
	prev := LevelThreshold(level)
	next := NextLevelThreshold(level)
	return LevelProgress{
		XP:      xp,
		Level:   level,
		Current: prev,
		Next:    next,
		Percent: percent(xp-prev, next-prev),
	}
}

// BadgeProgress is progress towards a badge limit
type BadgeProgress struct {
	Current int64   `json:"current"`
	Target  int64   `json:"target"`
	Percent float64 `json:"percent"`
}

// CategoryView is one shelf slot: the highest earned badge of a category, or
// the first rank as a locked target when nothing is earned yet.
type CategoryView struct {
	Type     string        `json:"type"`
	Badge    models.Badge  `json:"badge"`
	Next     *models.Badge `json:"next,omitempty"`
	Earned   bool          `json:"earned"`
	Locked   bool          `json:"locked"`
	IsMax    bool          `json:"isMax"`
	Progress BadgeProgress `json:"progress"`
}

// EvolutionaryBadgeView returns one view per category in catalog order
func EvolutionaryBadgeView(catalog []models.Badge, earnedIDs []string, stats map[string]int64) []CategoryView {
	earned := make(map[string]bool, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = true
	}

	types := models.BadgeTypes(catalog)
	views := make([]CategoryView, 0, len(types))
	for _, badgeType := range types {
		chain := models.BadgeChain(catalog, badgeType)

		highest := -1
		for i, b := range chain {
			if earned[b.ID] {
				highest = i
			}
		}

		current := stats[chain[0].StatField]
		view := CategoryView{Type: badgeType}
		switch {
		case highest < 0:
			view.Badge = chain[0]
			view.Locked = true
			view.Progress = badgeProgress(current, chain[0].Limit)
		case highest == len(chain)-1:
			view.Badge = chain[highest]
			view.Earned = true
			view.IsMax = true
			view.Progress = BadgeProgress{Current: current, Target: chain[highest].Limit, Percent: 100}
		default:
			next := chain[highest+1]
			view.Badge = chain[highest]
			view.Next = &next
			view.Earned = true
			view.Progress = badgeProgress(current, next.Limit)
		}
		views = append(views, view)
	}
	return views
}

// QualifiedBadges returns every badge of a category whose limit the stat
// reaches, lowest rank first.
func QualifiedBadges(catalog []models.Badge, badgeType string, value int64) []models.Badge {
	var out []models.Badge
	for _, b := range models.BadgeChain(catalog, badgeType) {
		if value >= b.Limit {
			out = append(out, b)
		}
	}
	return out
}

func badgeProgress(current, target int64) BadgeProgress {
	return BadgeProgress{Current: current, Target: target, Percent: percent(current, target)}
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 100
	}
	p := float64(part) * 100 / float64(whole)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
