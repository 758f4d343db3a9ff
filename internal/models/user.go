package models

import (
	"strings"
	"time"
)

// User is a profile document (users/{uid})
type User struct {
	UID            string           `json:"uid"`
	Nome           string           `json:"nome"`
	Sobrenome      string           `json:"sobrenome"`
	Username       string           `json:"username"`
	NomeLower      string           `json:"nomeLower"`
	SobrenomeLower string           `json:"sobrenomeLower"`
	UsernameLower  string           `json:"usernameLower"`
	Foto           string           `json:"foto"`
	Capa           string           `json:"capa"`
	Bio            string           `json:"bio"`
	Localizacao    string           `json:"localizacao"`
	Seguidores     []string         `json:"seguidores"`
	Seguindo       []string         `json:"seguindo"`
	Stats          map[string]int64 `json:"stats"`
	XP             int64            `json:"xp"`
	Badges         []string         `json:"badges"`
	FCMToken       *string          `json:"fcmToken"`
	LastSeen       *time.Time       `json:"lastSeen,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// NewUser builds a profile with empty sets and zeroed counters
func NewUser(uid, nome, sobrenome, username string) *User {
	u := &User{
		UID:        uid,
		Nome:       nome,
		Sobrenome:  sobrenome,
		Username:   username,
		Seguidores: []string{},
		Seguindo:   []string{},
		Stats: map[string]int64{
			StatReviews:       0,
			StatLists:         0,
			StatClubPosts:     0,
			StatComments:      0,
			StatLikesReceived: 0,
		},
		Badges:    []string{},
		CreatedAt: time.Now().UTC(),
	}
	u.NormalizeSearchFields()
	return u
}

// NormalizeSearchFields refreshes the lowercase prefix search fields
func (u *User) NormalizeSearchFields() {
	u.NomeLower = strings.ToLower(strings.TrimSpace(u.Nome))
	u.SobrenomeLower = strings.ToLower(strings.TrimSpace(u.Sobrenome))
	u.UsernameLower = strings.ToLower(strings.TrimSpace(u.Username))
}

// DisplayName joins the name parts
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.Nome + " " + u.Sobrenome)
}

// StatValues returns stored counters plus the derived follower counts
func (u *User) StatValues() map[string]int64 {
	out := make(map[string]int64, len(u.Stats)+2)
	for k, v := range u.Stats {
		out[k] = v
	}
	out[StatFollowers] = int64(len(u.Seguidores))
	out[StatFollowing] = int64(len(u.Seguindo))
	return out
}

// HasBadge reports whether the badge id is owned
func (u *User) HasBadge(id string) bool {
	for _, b := range u.Badges {
		if b == id {
			return true
		}
	}
	return false
}

// Snapshot returns the denormalized author info embedded in other documents
func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{UID: u.UID, Nome: u.DisplayName(), Username: u.Username, Foto: u.Foto}
}

// UserSnapshot is a denormalized profile copy
type UserSnapshot struct {
	UID      string `json:"uid"`
	Nome     string `json:"nome"`
	Username string `json:"username"`
	Foto     string `json:"foto"`
}
