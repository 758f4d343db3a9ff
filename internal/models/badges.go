package models

import "sort"

// Badge categories
const (
	BadgeCritic    = "critic"
	BadgeMarathon  = "marathon"
	BadgeCommunity = "community"
	BadgeSocial    = "social"
	BadgePopular   = "popular"
)

// Badge is a static catalog entry. Badges sharing a Type form a rank chain
// with strictly increasing Limit on StatField.
type Badge struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Rank      int    `json:"rank"`
	StatField string `json:"statField"`
	Limit     int64  `json:"limit"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Desc      string `json:"desc"`
}

// BadgeCatalog is ordered by category then rank
var BadgeCatalog = []Badge{
	{ID: "critic_bronze", Type: BadgeCritic, Rank: 1, StatField: StatReviews, Limit: 1, Name: "Crítico Iniciante", Icon: "🎬", Desc: "Publicou a primeira review"},
	{ID: "critic_silver", Type: BadgeCritic, Rank: 2, StatField: StatReviews, Limit: 10, Name: "Crítico de Prata", Icon: "🎞️", Desc: "Publicou 10 reviews"},
	{ID: "critic_gold", Type: BadgeCritic, Rank: 3, StatField: StatReviews, Limit: 50, Name: "Crítico de Ouro", Icon: "🏆", Desc: "Publicou 50 reviews"},

	{ID: "marathon_bronze", Type: BadgeMarathon, Rank: 1, StatField: StatLists, Limit: 3, Name: "Maratonista", Icon: "📺", Desc: "Criou 3 listas"},
	{ID: "marathon_silver", Type: BadgeMarathon, Rank: 2, StatField: StatLists, Limit: 10, Name: "Maratonista de Prata", Icon: "🍿", Desc: "Criou 10 listas"},
	{ID: "marathon_gold", Type: BadgeMarathon, Rank: 3, StatField: StatLists, Limit: 25, Name: "Maratonista de Ouro", Icon: "🎥", Desc: "Criou 25 listas"},

	{ID: "community_bronze", Type: BadgeCommunity, Rank: 1, StatField: StatClubPosts, Limit: 1, Name: "Membro Ativo", Icon: "💬", Desc: "Primeiro post em um clube"},
	{ID: "community_silver", Type: BadgeCommunity, Rank: 2, StatField: StatClubPosts, Limit: 20, Name: "Voz do Clube", Icon: "📣", Desc: "20 posts em clubes"},
	{ID: "community_gold", Type: BadgeCommunity, Rank: 3, StatField: StatClubPosts, Limit: 100, Name: "Pilar da Comunidade", Icon: "🏛️", Desc: "100 posts em clubes"},

	{ID: "social_bronze", Type: BadgeSocial, Rank: 1, StatField: StatFollowers, Limit: 10, Name: "Sociável", Icon: "🤝", Desc: "10 seguidores"},
	{ID: "social_silver", Type: BadgeSocial, Rank: 2, StatField: StatFollowers, Limit: 50, Name: "Influente", Icon: "🌟", Desc: "50 seguidores"},
	{ID: "social_gold", Type: BadgeSocial, Rank: 3, StatField: StatFollowers, Limit: 200, Name: "Celebridade", Icon: "👑", Desc: "200 seguidores"},

	{ID: "popular_bronze", Type: BadgePopular, Rank: 1, StatField: StatLikesReceived, Limit: 10, Name: "Curtido", Icon: "❤️", Desc: "Recebeu 10 curtidas"},
	{ID: "popular_silver", Type: BadgePopular, Rank: 2, StatField: StatLikesReceived, Limit: 100, Name: "Querido do Público", Icon: "💖", Desc: "Recebeu 100 curtidas"},
	{ID: "popular_gold", Type: BadgePopular, Rank: 3, StatField: StatLikesReceived, Limit: 500, Name: "Ícone", Icon: "🔥", Desc: "Recebeu 500 curtidas"},
}

// BadgeByID looks a badge up in the catalog
func BadgeByID(id string) (Badge, bool) {
	for _, b := range BadgeCatalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// BadgeChain returns the badges of one category ordered by rank
func BadgeChain(catalog []Badge, badgeType string) []Badge {
	var out []Badge
	for _, b := range catalog {
		if b.Type == badgeType {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// BadgeTypes lists categories in catalog order
func BadgeTypes(catalog []Badge) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range catalog {
		if !seen[b.Type] {
			seen[b.Type] = true
			out = append(out, b.Type)
		}
	}
	return out
}
