package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"backend/internal/middleware"
	"backend/internal/service"
	ws "backend/internal/websocket"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// DisplayHandler exposes the display queue to venue screens: the atomic
// claim/complete pair plus the websocket streams.
type DisplayHandler struct {
	queueService       service.QueueService
	leaderboardService service.LeaderboardService
	hub                *ws.Hub
}

func NewDisplayHandler(queueService service.QueueService, leaderboardService service.LeaderboardService, hub *ws.Hub) *DisplayHandler {
	return &DisplayHandler{
		queueService:       queueService,
		leaderboardService: leaderboardService,
		hub:                hub,
	}
}

func (h *DisplayHandler) RegisterRoutes(router *gin.RouterGroup) {
	display := router.Group("/api/venues/:venueId/display")
	display.Use(middleware.RequireRole("admin", "venue_staff", "display"))
	{
		display.GET("", h.GetState)
		display.POST("/claim", h.ClaimNext)
	}
	router.POST("/api/display/:id/complete",
		middleware.RequireRole("admin", "venue_staff", "display"), h.Complete)

	router.GET("/ws/display/:venueId", h.ServeDisplaySocket)
	router.GET("/ws/leaderboard/:venueId", h.ServeLeaderboardSocket)
}

// GetState returns the venue's current display item and queue depth
func (h *DisplayHandler) GetState(c *gin.Context) {
	state, err := h.queueService.Snapshot(c.Request.Context(), c.Param("venueId"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, state))
}

// ClaimNext atomically promotes the oldest paid transaction to displaying
// @Summary      Claim the next display item
// @Description  Returns the currently displaying item, or atomically claims the oldest paid transaction; 200 with null data when the queue is empty
// @Tags         display
// @Produce      json
// @Security     BearerAuth
// @Param        venueId  path      string  true  "Venue ID"
// @Success      200      {object}  response.Response{data=service.DisplayItemResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/venues/{venueId}/display/claim [post]
func (h *DisplayHandler) ClaimNext(c *gin.Context) {
	item, err := h.queueService.ClaimNext(c.Request.Context(), c.Param("venueId"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// Complete marks the currently displaying item as displayed
func (h *DisplayHandler) Complete(c *gin.Context) {
	actor := c.GetString("userRole")

	item, err := h.queueService.Complete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// ServeDisplaySocket upgrades to the venue's display stream. The current
// queue state is queued as the first frame so a reconnecting screen never
// renders stale data.
func (h *DisplayHandler) ServeDisplaySocket(c *gin.Context) {
	venueID := c.Param("venueId")

	snapshot, err := h.snapshotFrame(c, venueID)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	ws.ServeWs(h.hub, c, venueID, ws.StreamDisplay, snapshot)
}

// ServeLeaderboardSocket upgrades to the venue's leaderboard stream with the
// last 30 days of standings as the first frame.
func (h *DisplayHandler) ServeLeaderboardSocket(c *gin.Context) {
	venueID := c.Param("venueId")

	end := time.Now()
	board, err := h.leaderboardService.TopSupporters(c.Request.Context(), venueID, end.AddDate(0, 0, -30), end, 0)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	frame, err := json.Marshal(ws.Event{Event: "snapshot", Data: board})
	if err != nil {
		log.Println("WARNING: failed to marshal leaderboard snapshot:", err)
		frame = nil
	}

	ws.ServeWs(h.hub, c, venueID, ws.StreamLeaderboard, frame)
}

func (h *DisplayHandler) snapshotFrame(c *gin.Context, venueID string) ([]byte, error) {
	state, err := h.queueService.Snapshot(c.Request.Context(), venueID)
	if err != nil {
		return nil, err
	}
	frame, err := json.Marshal(ws.Event{Event: "snapshot", Data: state})
	if err != nil {
		log.Println("WARNING: failed to marshal display snapshot:", err)
		return nil, nil
	}
	return frame, nil
}
