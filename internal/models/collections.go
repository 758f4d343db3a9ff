package models

// Top level collections
const (
	CollUsers         = "users"
	CollReviews       = "reviews"
	CollLists         = "lists"
	CollAchievements  = "achievements"
	CollConversations = "conversations"
	CollGroups        = "groups"
	CollBattles       = "battles"
	CollNotifications = "notifications"
)

// Subcollection names
const (
	SubComments = "comments"
	SubMessages = "messages"
	SubPosts    = "posts"
	SubVotes    = "votes"
	SubAwards   = "awards"
)

// Stat counter keys on User.Stats
const (
	StatReviews       = "reviews"
	StatLists         = "lists"
	StatClubPosts     = "clubPosts"
	StatComments      = "comments"
	StatLikesReceived = "likesReceived"
	// Derived from the id sets, never stored
	StatFollowers = "followers"
	StatFollowing = "following"
)
