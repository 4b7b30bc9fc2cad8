package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/plantid/internal/catalog"
)

// SpeciesSearchResponse is one page of catalog matches.
type SpeciesSearchResponse struct {
	Species []catalog.Species `json:"species"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// SearchSpecies handles GET /api/v2/species/search?q=&limit=&offset=.
// It is the manual fallback after a low confidence identification.
func (c *Controller) SearchSpecies(ctx echo.Context) error {
	query := strings.TrimSpace(ctx.QueryParam("q"))

	limit, err := intParam(ctx, "limit", catalog.DefaultSearchLimit)
	if err != nil || limit < 1 {
		return c.HandleError(ctx, nil, "limit must be a positive integer", http.StatusBadRequest)
	}
	limit = min(limit, catalog.MaxSearchLimit)

	offset, err := intParam(ctx, "offset", 0)
	if err != nil || offset < 0 {
		return c.HandleError(ctx, nil, "offset must be zero or a positive integer", http.StatusBadRequest)
	}

	results, total, err := c.species.Search(ctx.Request().Context(), query, limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "species search failed", http.StatusInternalServerError)
	}
	if results == nil {
		results = []catalog.Species{}
	}

	return ctx.JSON(http.StatusOK, SpeciesSearchResponse{
		Species: results,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func intParam(ctx echo.Context, name string, def int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
