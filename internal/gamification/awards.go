package gamification

import "github.com/cinesync/backend/internal/models"

// Award is one row of the point table
type Award struct {
	Reason    string
	Points    int64
	BadgeType string
	StatField string
	// The engine increments StatField itself (services do not)
	OwnsStat bool
}

// Award reasons
const (
	ReasonReviewCreated   = "review_created"
	ReasonListCreated     = "list_created"
	ReasonClubPostCreated = "club_post_created"
	ReasonFollowerAdded   = "follower_added"
	ReasonLikeReceived    = "like_received"
)

// Awards is the canonical point table
var Awards = map[string]Award{
	ReasonReviewCreated: {
		Reason: ReasonReviewCreated, Points: 30,
		BadgeType: models.BadgeCritic, StatField: models.StatReviews,
	},
	ReasonListCreated: {
		Reason: ReasonListCreated, Points: 10,
		BadgeType: models.BadgeMarathon, StatField: models.StatLists,
	},
	ReasonClubPostCreated: {
		Reason: ReasonClubPostCreated, Points: 15,
		BadgeType: models.BadgeCommunity, StatField: models.StatClubPosts,
	},
	ReasonFollowerAdded: {
		Reason: ReasonFollowerAdded, Points: 5,
		BadgeType: models.BadgeSocial, StatField: models.StatFollowers,
	},
	ReasonLikeReceived: {
		Reason: ReasonLikeReceived, Points: 4,
		BadgeType: models.BadgePopular, StatField: models.StatLikesReceived,
		OwnsStat: true,
	},
}
