package models

import "time"

// Message types
const (
	MessageText        = "text"
	MessageMovieInvite = "movie_invite"
)

// Conversation between two users; id is the sorted pair joined with "_"
type Conversation struct {
	ID                   string                  `json:"id"`
	Participants         []string                `json:"participants"`
	ParticipantInfo      map[string]UserSnapshot `json:"participantInfo"`
	LastMessage          string                  `json:"lastMessage"`
	LastMessageTimestamp time.Time               `json:"lastMessageTimestamp"`
	DeletedBy            map[string]bool         `json:"deletedBy"`
	HistoryClearedAt     map[string]time.Time    `json:"historyClearedAt"`
	Unread               map[string]int64        `json:"unread"`
}

// HasParticipant reports whether uid takes part in the conversation
func (c *Conversation) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Message in conversations/{id}/messages
type Message struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	SenderID   string        `json:"senderId"`
	Timestamp  time.Time     `json:"timestamp"`
	Deleted    bool          `json:"deleted"`
	Edited     bool          `json:"edited"`
	Type       string        `json:"type"`
	Movie      *MoviePayload `json:"movie,omitempty"`
	AcceptedBy []string      `json:"acceptedBy,omitempty"`
}

// MoviePayload is the catalog item carried by a movie invite
type MoviePayload struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	PosterPath string `json:"poster_path"`
	MediaType  string `json:"mediaType"`
}

// Group is a club (groups/{id})
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Photo       string    `json:"photo"`
	AdminID     string    `json:"adminId"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsMember reports whether uid belongs to the club
func (g *Group) IsMember(uid string) bool {
	for _, m := range g.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// Post is a club post (groups/{g}/posts/{id})
type Post struct {
	ID           string       `json:"id"`
	GroupID      string       `json:"groupId"`
	Text         string       `json:"text"`
	AuthorID     string       `json:"authorId"`
	AuthorInfo   UserSnapshot `json:"authorInfo"`
	Likes        []string     `json:"likes"`
	CommentCount int64        `json:"commentCount"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Battle sides
const (
	SideA = "A"
	SideB = "B"
)

// Battle is a head to head vote between two catalog items
type Battle struct {
	ID         string      `json:"id"`
	MovieA     BattleMovie `json:"movieA"`
	MovieB     BattleMovie `json:"movieB"`
	VotesA     int64       `json:"votesA"`
	VotesB     int64       `json:"votesB"`
	TotalVotes int64       `json:"totalVotes"`
	GenreID    int64       `json:"genreId"`
	Timestamp  time.Time   `json:"timestamp"`
}

// BattleMovie is the catalog snapshot of one side of a battle
type BattleMovie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
}

// Vote is keyed by voter uid under battles/{id}/votes
type Vote struct {
	UID       string    `json:"uid"`
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification types
const (
	NotificationFollow         = "follow"
	NotificationLike           = "like"
	NotificationComment        = "comment"
	NotificationInviteAccepted = "invite_accepted"
)

// Notification document (notifications/{id})
type Notification struct {
	ID             string       `json:"id"`
	RecipientID    string       `json:"recipientId"`
	SenderID       string       `json:"senderId"`
	SenderInfo     UserSnapshot `json:"senderInfo"`
	Type           string       `json:"type"`
	ReviewID       string       `json:"reviewId,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
	Text           string       `json:"text,omitempty"`
	Read           bool         `json:"read"`
	Timestamp      time.Time    `json:"timestamp"`
}
