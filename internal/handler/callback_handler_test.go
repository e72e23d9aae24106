package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/gateway"
	"backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	calls  int
	lastIn service.ReconcileInput
	result *service.ReconcileResult
	err    error
}

func (s *stubReconciler) Reconcile(ctx context.Context, in service.ReconcileInput) (*service.ReconcileResult, error) {
	s.calls++
	s.lastIn = in
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubGuard struct {
	duplicate bool
	released  int
}

func (s *stubGuard) CheckAndMark(ctx context.Context, provider, eventID string) (bool, error) {
	return !s.duplicate, nil
}

func (s *stubGuard) Release(ctx context.Context, provider, eventID string) {
	s.released++
}

func newCallbackRouter(t *testing.T, reconciler *stubReconciler, guard *stubGuard) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := gateway.NewRegistry(
		gateway.NewRedirectCheckoutGateway(gateway.RedirectCheckoutConfig{
			SigningSecret: "whsec_test",
		}, nil),
	)

	router := gin.New()
	NewCallbackHandler(registry, reconciler, guard).RegisterRoutes(router.Group(""))
	return router
}

func hmacHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postCallback(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/callbacks/checkout", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Checkout-Signature", signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCallbackAppliesConfirmation(t *testing.T) {
	reconciler := &stubReconciler{result: &service.ReconcileResult{
		EntityType: "transaction", ID: "tx-1", Status: "paid", Changed: true,
	}}
	guard := &stubGuard{}
	router := newCallbackRouter(t, reconciler, guard)

	body := []byte(`{"event_id":"evt_1","session_id":"sess_abc","status":"paid"}`)
	rec := postCallback(router, body, hmacHex("whsec_test", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, reconciler.calls)
	assert.Equal(t, "redirect_checkout", reconciler.lastIn.Provider)
	assert.Equal(t, "sess_abc", reconciler.lastIn.ExternalRef)
	assert.Equal(t, service.ReconcileSourceCallback, reconciler.lastIn.Source)
	assert.True(t, reconciler.lastIn.Paid)
}

func TestCallbackRejectsInvalidSignature(t *testing.T) {
	reconciler := &stubReconciler{}
	router := newCallbackRouter(t, reconciler, &stubGuard{})

	body := []byte(`{"event_id":"evt_1","session_id":"sess_abc","status":"paid"}`)

	rec := postCallback(router, body, hmacHex("wrong_secret", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postCallback(router, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An unverified payload must never reach reconciliation.
	assert.Equal(t, 0, reconciler.calls)
}

func TestCallbackDropsDuplicateDelivery(t *testing.T) {
	reconciler := &stubReconciler{}
	router := newCallbackRouter(t, reconciler, &stubGuard{duplicate: true})

	body := []byte(`{"event_id":"evt_1","session_id":"sess_abc","status":"paid"}`)
	rec := postCallback(router, body, hmacHex("whsec_test", body))

	// Duplicates are acknowledged so the provider stops retrying, but the
	// ledger is untouched.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)
	assert.Equal(t, 0, reconciler.calls)
}

func TestCallbackReleasesClaimOnReconcileError(t *testing.T) {
	reconciler := &stubReconciler{err: context.DeadlineExceeded}
	guard := &stubGuard{}
	router := newCallbackRouter(t, reconciler, guard)

	body := []byte(`{"event_id":"evt_1","session_id":"sess_abc","status":"paid"}`)
	rec := postCallback(router, body, hmacHex("whsec_test", body))

	assert.GreaterOrEqual(t, rec.Code, 500)
	// The event claim is freed so the provider's retry can re-apply.
	assert.Equal(t, 1, guard.released)
}

func TestCallbackUnconfiguredProvider(t *testing.T) {
	router := newCallbackRouter(t, &stubReconciler{}, &stubGuard{})

	req := httptest.NewRequest(http.MethodPost, "/api/callbacks/paylink", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
