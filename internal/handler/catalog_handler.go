package handler

import (
	"net/http"
	"strconv"
	"time"

	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves the public read-only surface: warp packages and the
// supporter leaderboard.
type CatalogHandler struct {
	catalogService     service.CatalogService
	leaderboardService service.LeaderboardService
}

func NewCatalogHandler(catalogService service.CatalogService, leaderboardService service.LeaderboardService) *CatalogHandler {
	return &CatalogHandler{
		catalogService:     catalogService,
		leaderboardService: leaderboardService,
	}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/packages", h.ListPackages)
	router.GET("/api/venues/:venueId/leaderboard", h.GetLeaderboard)
}

// ListPackages returns the active warp packages ordered by price
func (h *CatalogHandler) ListPackages(c *gin.Context) {
	packages, err := h.catalogService.ListPackages(c.Request.Context())
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, packages))
}

// GetLeaderboard ranks supporters by paid amount over a period. Defaults to
// the last 30 days when no range is given.
func (h *CatalogHandler) GetLeaderboard(c *gin.Context) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "start must be RFC3339"))
			return
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "end must be RFC3339"))
			return
		}
		end = parsed
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	board, err := h.leaderboardService.TopSupporters(c.Request.Context(), c.Param("venueId"), start, end, limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, board))
}
