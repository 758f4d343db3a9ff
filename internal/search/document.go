package search

import "github.com/cinesync/backend/internal/models"

// UserDocument is the indexed projection of a profile
type UserDocument struct {
	UID           string `json:"uid"`
	Username      string `json:"username"`
	Nome          string `json:"nome"`
	Sobrenome     string `json:"sobrenome"`
	Foto          string `json:"foto"`
	FollowerCount int    `json:"followerCount"`
	XP            int64  `json:"xp"`
}

// UserToDocument projects a profile onto its search document
func UserToDocument(u *models.User) UserDocument {
	return UserDocument{
		UID:           u.UID,
		Username:      u.UsernameLower,
		Nome:          u.Nome,
		Sobrenome:     u.Sobrenome,
		Foto:          u.Foto,
		FollowerCount: len(u.Seguidores),
		XP:            u.XP,
	}
}
