package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/tmdb"
	"github.com/cinesync/backend/internal/util"
)

func idList(c *gin.Context, name string) ([]int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			util.RespondValidationError(c, name, "must be a comma separated list of ids")
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// SearchCatalog runs a multi search over movies and shows
// GET /api/v1/catalog/search?q=&page=
func (h *Handlers) SearchCatalog(c *gin.Context) {
	resp, err := h.Catalog.Search(c.Request.Context(), c.Query("q"), util.ParseInt(c.Query("page"), 1))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DiscoverCatalog lists titles filtered by providers and genres
// GET /api/v1/catalog/discover/:mediaType?providers=8,337&genres=28&sort=&page=&region=
func (h *Handlers) DiscoverCatalog(c *gin.Context) {
	providers, ok := idList(c, "providers")
	if !ok {
		return
	}
	genres, ok := idList(c, "genres")
	if !ok {
		return
	}

	resp, err := h.Catalog.Discover(c.Request.Context(), tmdb.DiscoverParams{
		MediaType: c.Param("mediaType"),
		Providers: providers,
		Genres:    genres,
		SortBy:    c.Query("sort"),
		Page:      util.ParseInt(c.Query("page"), 1),
		Region:    strings.ToUpper(c.Query("region")),
	})
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetGenres lists the genres of movies or shows
// GET /api/v1/catalog/genres/:mediaType
func (h *Handlers) GetGenres(c *gin.Context) {
	genres, err := h.Catalog.Genres(c.Request.Context(), c.Param("mediaType"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

// GetTitle returns details and watch providers of one title
// GET /api/v1/catalog/titles/:mediaType/:id
func (h *Handlers) GetTitle(c *gin.Context) {
	id, ok := util.ParseInt64Param(c, "id")
	if !ok {
		return
	}
	details, err := h.Catalog.Details(c.Request.Context(), c.Param("mediaType"), id)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// GetTitleCredits returns cast and crew
// GET /api/v1/catalog/titles/:mediaType/:id/credits
func (h *Handlers) GetTitleCredits(c *gin.Context) {
	id, ok := util.ParseInt64Param(c, "id")
	if !ok {
		return
	}
	credits, err := h.Catalog.Credits(c.Request.Context(), c.Param("mediaType"), id)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, credits)
}

// GetTitleImages returns posters and backdrops
// GET /api/v1/catalog/titles/:mediaType/:id/images
func (h *Handlers) GetTitleImages(c *gin.Context) {
	id, ok := util.ParseInt64Param(c, "id")
	if !ok {
		return
	}
	images, err := h.Catalog.Images(c.Request.Context(), c.Param("mediaType"), id)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, images)
}
