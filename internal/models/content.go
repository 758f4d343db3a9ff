package models

import "time"

// Review is a rating of a movie or show (reviews/{id})
type Review struct {
	ID           string              `json:"id"`
	UIDAutor     string              `json:"uidAutor"`
	MovieID      int64               `json:"movieId"`
	MediaType    string              `json:"mediaType"`
	MovieTitle   string              `json:"movieTitle"`
	PosterPath   string              `json:"poster_path"`
	Nota         float64             `json:"nota"`
	Comentario   string              `json:"comentario"`
	CommentCount int64               `json:"commentCount"`
	Reactions    map[string][]string `json:"reactions"`
	LikeCount    int64               `json:"likeCount"`
	Timestamp    time.Time           `json:"timestamp"`
}

// Voters returns every distinct uid across the reaction buckets
func (r *Review) Voters() map[string]struct{} {
	out := make(map[string]struct{})
	for _, uids := range r.Reactions {
		for _, uid := range uids {
			out[uid] = struct{}{}
		}
	}
	return out
}

// ReactionOf returns the emoji the uid reacted with, if any
func (r *Review) ReactionOf(uid string) (string, bool) {
	for emoji, uids := range r.Reactions {
		for _, u := range uids {
			if u == uid {
				return emoji, true
			}
		}
	}
	return "", false
}

// Comment lives under reviews/{id}/comments and groups/{g}/posts/{p}/comments
type Comment struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	UIDAutor   string       `json:"uidAutor"`
	AuthorInfo UserSnapshot `json:"authorInfo"`
	Timestamp  time.Time    `json:"timestamp"`
}

// List is a user curated list (lists/{id})
type List struct {
	ID          string     `json:"id"`
	UIDAutor    string     `json:"uidAutor"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Items       []ListItem `json:"items"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ListItem is one entry of a List
type ListItem struct {
	MediaID     int64     `json:"mediaId"`
	MediaType   string    `json:"mediaType"`
	Title       string    `json:"title"`
	PosterPath  string    `json:"poster_path"`
	VoteAverage float64   `json:"vote_average"`
	AddedAt     time.Time `json:"addedAt"`
}

// Achievement is a feed entry written when a badge unlocks
type Achievement struct {
	ID        string    `json:"id"`
	UIDAutor  string    `json:"uidAutor"`
	BadgeID   string    `json:"badgeId"`
	BadgeName string    `json:"badgeName"`
	Icon      string    `json:"icon"`
	Timestamp time.Time `json:"timestamp"`
}

// AwardEntry records one processed award under users/{uid}/awards/{key}
type AwardEntry struct {
	Points    int64     `json:"points"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
