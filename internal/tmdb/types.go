package tmdb

// Media types accepted by the catalog
const (
	MediaMovie = "movie"
	MediaTV    = "tv"
)

// Media is one discovery or search result
type Media struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	Popularity   float64 `json:"popularity"`
	GenreIDs     []int64 `json:"genre_ids"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	MediaType    string  `json:"media_type,omitempty"`
}

// DisplayTitle returns the movie title or the show name
func (m Media) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Name
}

// PagedResponse is the envelope of discovery and search endpoints
type PagedResponse struct {
	Page         int     `json:"page"`
	Results      []Media `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

// Genre is a catalog genre
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type genreList struct {
	Genres []Genre `json:"genres"`
}

// Provider is a streaming/rental service
type Provider struct {
	ProviderID   int64  `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	LogoPath     string `json:"logo_path"`
}

// RegionProviders lists where an item is available in one region
type RegionProviders struct {
	Link     string     `json:"link"`
	Flatrate []Provider `json:"flatrate,omitempty"`
	Rent     []Provider `json:"rent,omitempty"`
	Buy      []Provider `json:"buy,omitempty"`
}

// WatchProviders is keyed by region code
type WatchProviders struct {
	Results map[string]RegionProviders `json:"results"`
}

// Details is a movie or show with embedded watch providers
type Details struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title,omitempty"`
	Name             string         `json:"name,omitempty"`
	Overview         string         `json:"overview"`
	Tagline          string         `json:"tagline,omitempty"`
	PosterPath       string         `json:"poster_path"`
	BackdropPath     string         `json:"backdrop_path"`
	VoteAverage      float64        `json:"vote_average"`
	VoteCount        int64          `json:"vote_count"`
	Runtime          int            `json:"runtime,omitempty"`
	EpisodeRunTime   []int          `json:"episode_run_time,omitempty"`
	NumberOfSeasons  int            `json:"number_of_seasons,omitempty"`
	ReleaseDate      string         `json:"release_date,omitempty"`
	FirstAirDate     string         `json:"first_air_date,omitempty"`
	Genres           []Genre        `json:"genres"`
	WatchProviders   WatchProviders `json:"watch/providers"`
	OriginalLanguage string         `json:"original_language"`
}

// DisplayTitle returns the movie title or the show name
func (d Details) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// CastMember is one credited actor
type CastMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order"`
}

// CrewMember is one credited crew member
type CrewMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Job         string `json:"job"`
	Department  string `json:"department"`
	ProfilePath string `json:"profile_path"`
}

// Credits of a movie or show
type Credits struct {
	ID   int64        `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Image is one poster, backdrop or logo
type Image struct {
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Language    string  `json:"iso_639_1"`
}

// Images of a movie or show
type Images struct {
	ID        int64   `json:"id"`
	Backdrops []Image `json:"backdrops"`
	Posters   []Image `json:"posters"`
	Logos     []Image `json:"logos"`
}

// DiscoverParams filters a discovery query
type DiscoverParams struct {
	MediaType string
	Providers []int64
	Genres    []int64
	SortBy    string
	Page      int
	Region    string
}
