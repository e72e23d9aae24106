package handler

import (
	"context"
	"io"
	"net/http"

	"backend/internal/gateway"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// callbackGuard is the slice of the idempotency guard the handler needs.
type callbackGuard interface {
	CheckAndMark(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string)
}

// CallbackHandler terminates gateway webhooks. Each provider gets its own
// endpoint because signature placement differs: the modern providers sign
// the raw body into a header, the legacy pay-link embeds the signature in
// the payload itself.
type CallbackHandler struct {
	gateways   *gateway.Registry
	reconciler service.ReconcileService
	guard      callbackGuard
}

func NewCallbackHandler(gateways *gateway.Registry, reconciler service.ReconcileService, guard callbackGuard) *CallbackHandler {
	return &CallbackHandler{
		gateways:   gateways,
		reconciler: reconciler,
		guard:      guard,
	}
}

func (h *CallbackHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/api/callbacks/checkout", h.handle(gateway.ProviderRedirectCheckout, "X-Checkout-Signature"))
	router.POST("/api/callbacks/qrpay", h.handle(gateway.ProviderQrPush, "X-QrPay-Signature"))
	router.POST("/api/callbacks/paylink", h.handle(gateway.ProviderPayLink, ""))
}

// handle runs the shared pipeline: verify the signature on the raw bytes,
// parse, dedupe on the provider event id, reconcile. The signature check
// always comes first; an unsigned payload never reaches the parser.
func (h *CallbackHandler) handle(provider, signatureHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		gw, err := h.gateways.Get(provider)
		if err != nil {
			c.JSON(response.FromError(err))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "failed to read callback body"))
			return
		}

		var signature string
		if signatureHeader != "" {
			signature = c.GetHeader(signatureHeader)
		}
		if !gw.VerifyCallbackSignature(payload, signature) {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "invalid callback signature"))
			return
		}

		event, err := gw.ParseCallback(payload)
		if err != nil {
			c.JSON(response.FromError(err))
			return
		}

		first, err := h.guard.CheckAndMark(c.Request.Context(), provider, event.EventID)
		if err != nil {
			c.JSON(response.FromError(err))
			return
		}
		if !first {
			// Replayed delivery: acknowledge so the provider stops retrying.
			c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
				"duplicate": true,
				"event_id":  event.EventID,
			}))
			return
		}

		result, err := h.reconciler.Reconcile(c.Request.Context(), service.ReconcileInput{
			Provider:    provider,
			ExternalRef: event.ExternalRef,
			Source:      service.ReconcileSourceCallback,
			RawStatus:   event.RawStatus,
			Paid:        event.Paid,
			Failed:      event.Failed,
		})
		if err != nil {
			// Free the claim so the provider's retry gets another attempt.
			h.guard.Release(c.Request.Context(), provider, event.EventID)
			c.JSON(response.FromError(err))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
	}
}
