package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type SongRequestHandler struct {
	songService service.SongRequestService
}

func NewSongRequestHandler(songService service.SongRequestService) *SongRequestHandler {
	return &SongRequestHandler{songService: songService}
}

func (h *SongRequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/api/venues/:venueId/song-requests", h.CreateSongRequest)
	router.GET("/api/venues/:venueId/song-requests/queue", h.GetQueue)

	staff := router.Group("/api/song-requests")
	staff.Use(middleware.RequireRole("admin", "venue_staff"))
	{
		staff.POST("/:id/reject", h.Reject)
		staff.POST("/:id/played", h.MarkPlayed)
	}
}

// CreateSongRequest opens a paid song request and initiates payment
// @Summary      Create a song request
// @Description  Creates a pending song request backed by a payment, returning the redirect URL or QR payload
// @Tags         song-requests
// @Accept       json
// @Produce      json
// @Param        venueId  path      string                             true  "Venue ID"
// @Param        payload  body      service.CreateSongRequestRequest   true  "Create Song Request Payload"
// @Success      201      {object}  response.Response{data=service.CreateSongRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/venues/{venueId}/song-requests [post]
func (h *SongRequestHandler) CreateSongRequest(c *gin.Context) {
	var req service.CreateSongRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	song, err := h.songService.CreateSongRequest(c.Request.Context(), c.Param("venueId"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, song))
}

// GetQueue returns the venue's paid song requests ordered by donation amount
func (h *SongRequestHandler) GetQueue(c *gin.Context) {
	queue, err := h.songService.Queue(c.Request.Context(), c.Param("venueId"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, queue))
}

// Reject voids a pending or paid song request
func (h *SongRequestHandler) Reject(c *gin.Context) {
	if err := h.songService.Reject(c.Request.Context(), c.Param("id"), c.GetString("userRole")); err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"rejected": true}))
}

// MarkPlayed closes out a playing song request
func (h *SongRequestHandler) MarkPlayed(c *gin.Context) {
	if err := h.songService.MarkPlayed(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"played": true}))
}
