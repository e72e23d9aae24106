package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	txService service.TransactionService
}

func NewTransactionHandler(txService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{txService: txService}
}

func (h *TransactionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/api/venues/:venueId/transactions", h.CreateTransaction)
	router.GET("/api/transactions/:id/status", h.CheckStatus)
	router.GET("/api/transactions/:id/activities", h.ListActivities)
	router.POST("/api/transactions/:id/cancel",
		middleware.RequireRole("admin", "venue_staff"), h.Cancel)
}

// CreateTransaction opens a warp transaction and initiates payment
// @Summary      Create a warp transaction
// @Description  Creates a pending transaction for a venue and initiates payment with the chosen gateway, returning the redirect URL or QR payload
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        venueId  path      string                             true  "Venue ID"
// @Param        payload  body      service.CreateTransactionRequest   true  "Create Transaction Payload"
// @Success      201      {object}  response.Response{data=service.CreateTransactionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/venues/{venueId}/transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req service.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	tx, err := h.txService.CreateTransaction(c.Request.Context(), c.Param("venueId"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, tx))
}

// CheckStatus polls the gateway for a pending transaction and reconciles
// @Summary      Check transaction status
// @Description  Returns the current transaction status; pending transactions are verified against the gateway first
// @Tags         transactions
// @Produce      json
// @Param        id   path      string  true  "Transaction ID or gateway reference"
// @Success      200  {object}  response.Response{data=service.TransactionStatusResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/transactions/{id}/status [get]
func (h *TransactionHandler) CheckStatus(c *gin.Context) {
	status, err := h.txService.CheckStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

// Cancel voids a pending or paid transaction before it reaches the screen
func (h *TransactionHandler) Cancel(c *gin.Context) {
	if err := h.txService.Cancel(c.Request.Context(), c.Param("id"), c.GetString("userRole")); err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"cancelled": true}))
}

// ListActivities returns the audit trail of a transaction
func (h *TransactionHandler) ListActivities(c *gin.Context) {
	params := pagination.Parse(c)

	activities, total, err := h.txService.ListActivities(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"items": activities,
		"total": total,
		"page":  params.Page,
		"limit": params.Limit,
	}))
}
