package handler

import (
	"net/http"
	"strconv"
	"time"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// SettlementHandler exposes the revenue split reports and the tax profile
// that drives them. Everything here is back-office only.
type SettlementHandler struct {
	settlementService service.SettlementService
	taxProfileService service.TaxProfileService
}

func NewSettlementHandler(settlementService service.SettlementService, taxProfileService service.TaxProfileService) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		taxProfileService: taxProfileService,
	}
}

func (h *SettlementHandler) RegisterRoutes(router *gin.RouterGroup) {
	venues := router.Group("/api/venues/:venueId")
	venues.Use(middleware.RequireRole("admin", "venue_owner"))
	{
		venues.GET("/settlements/monthly", h.SettleMonth)
		venues.GET("/settlements/weekly", h.SettleWeek)
		venues.GET("/tax-profile", h.GetTaxProfile)
		venues.PUT("/tax-profile", h.UpsertTaxProfile)
	}
}

// SettleMonth computes the monthly revenue split for a venue
// @Summary      Monthly settlement report
// @Description  Splits the venue's gross revenue for a calendar month into tax, gateway fee, owner share and store share
// @Tags         settlements
// @Produce      json
// @Security     BearerAuth
// @Param        venueId  path      string  true   "Venue ID"
// @Param        year     query     int     true   "Calendar year"
// @Param        month    query     int     true   "Month (1-12)"
// @Success      200      {object}  response.Response{data=service.SettlementReport}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/venues/{venueId}/settlements/monthly [get]
func (h *SettlementHandler) SettleMonth(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "year query parameter is required"))
		return
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "month query parameter is required"))
		return
	}

	report, err := h.settlementService.SettleMonth(c.Request.Context(), c.Param("venueId"), year, time.Month(month))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// SettleWeek computes the split for a Monday-start ISO week
func (h *SettlementHandler) SettleWeek(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "year query parameter is required"))
		return
	}
	week, err := strconv.Atoi(c.Query("week"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "week query parameter is required"))
		return
	}

	report, err := h.settlementService.SettleWeek(c.Request.Context(), c.Param("venueId"), year, week)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// GetTaxProfile returns the venue's settlement configuration
func (h *SettlementHandler) GetTaxProfile(c *gin.Context) {
	profile, err := h.taxProfileService.Get(c.Request.Context(), c.Param("venueId"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, profile))
}

// UpsertTaxProfile creates or replaces the venue's settlement configuration
func (h *SettlementHandler) UpsertTaxProfile(c *gin.Context) {
	var req service.UpsertTaxProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	profile, err := h.taxProfileService.Upsert(c.Request.Context(), c.Param("venueId"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, profile))
}
