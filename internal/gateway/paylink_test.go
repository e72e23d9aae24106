package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacySign(secret string, fields ...string) string {
	sum := md5.Sum([]byte(strings.Join(fields, "|") + "|" + secret))
	return hex.EncodeToString(sum[:])
}

func TestPayLinkInitiateBuildsSignedLink(t *testing.T) {
	gw := NewPayLinkGateway(PayLinkConfig{
		BaseURL:    "https://legacy.example.com",
		MerchantID: "m-77",
		Secret:     "s3cret",
	}, nil)

	txID := uuid.New()
	result, err := gw.Initiate(context.Background(), InitiateInput{
		TransactionID: txID,
		Amount:        decimal.NewFromInt(100),
		Currency:      "THB",
	})
	require.NoError(t, err)

	// The legacy provider has no session API: the ref is the transaction id.
	assert.Equal(t, txID.String(), result.ExternalRef)

	parsed, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "m-77", q.Get("merchant_id"))
	assert.Equal(t, txID.String(), q.Get("ref"))
	assert.Equal(t, "100.00", q.Get("amount"))
	assert.Equal(t, legacySign("s3cret", "m-77", txID.String(), "100.00", "THB"), q.Get("sig"))
}

func TestPayLinkVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, legacySign("s3cret", "m-77", q.Get("ref")), q.Get("sig"))
		json.NewEncoder(w).Encode(payLinkStatusResponse{Ref: q.Get("ref"), Status: "success"})
	}))
	defer server.Close()

	gw := NewPayLinkGateway(PayLinkConfig{
		BaseURL:    server.URL,
		MerchantID: "m-77",
		Secret:     "s3cret",
	}, server.Client())

	result, err := gw.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.True(t, result.Paid)
	assert.Equal(t, "success", result.RawStatus)
}

func TestPayLinkCallbackSignatureInsidePayload(t *testing.T) {
	gw := NewPayLinkGateway(PayLinkConfig{MerchantID: "m-77", Secret: "s3cret"}, nil)

	ref := uuid.NewString()
	sig := legacySign("s3cret", "m-77", ref, "success", "100.00")
	payload := []byte(fmt.Sprintf(`{"ref":%q,"status":"success","amount":"100.00","sig":%q}`, ref, sig))

	// The header argument is unused for this provider.
	assert.True(t, gw.VerifyCallbackSignature(payload, ""))

	// Tampering with any signed field breaks the digest.
	forged := []byte(fmt.Sprintf(`{"ref":%q,"status":"success","amount":"999.00","sig":%q}`, ref, sig))
	assert.False(t, gw.VerifyCallbackSignature(forged, ""))

	missing := []byte(fmt.Sprintf(`{"ref":%q,"status":"success","amount":"100.00"}`, ref))
	assert.False(t, gw.VerifyCallbackSignature(missing, ""))
}

func TestPayLinkParseCallback(t *testing.T) {
	gw := NewPayLinkGateway(PayLinkConfig{}, nil)

	event, err := gw.ParseCallback([]byte(`{"ref":"tx-1","status":"failed","amount":"50.00","sig":"x"}`))
	require.NoError(t, err)
	// Legacy callbacks have no event id; the composite keeps replays deduped.
	assert.Equal(t, "tx-1:failed", event.EventID)
	assert.Equal(t, "tx-1", event.ExternalRef)
	assert.True(t, event.Failed)
}

func TestQrPushCallbackSignature(t *testing.T) {
	gw := NewQrPushGateway(QrPushConfig{SigningSecret: "qr_secret"}, nil)
	body := []byte(`{"event_id":"evt_9","charge_id":"ch_1","status":"successful"}`)

	assert.True(t, gw.VerifyCallbackSignature(body, signBody("qr_secret", body)))
	assert.False(t, gw.VerifyCallbackSignature(body, signBody("other", body)))

	event, err := gw.ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "evt_9", event.EventID)
	assert.Equal(t, "ch_1", event.ExternalRef)
	assert.True(t, event.Paid)
}

func TestMetaRoundTripKeepsDiscriminant(t *testing.T) {
	meta := Meta{
		Provider: ProviderRedirectCheckout,
		RedirectCheckout: &RedirectCheckoutMeta{
			SessionID:   "sess_abc",
			RedirectURL: "https://pay.example.com/sess_abc",
		},
	}

	encoded, err := meta.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMeta(encoded)
	require.NoError(t, err)
	assert.Equal(t, ProviderRedirectCheckout, decoded.Provider)
	require.NotNil(t, decoded.RedirectCheckout)
	assert.Equal(t, "sess_abc", decoded.RedirectCheckout.SessionID)
	assert.Nil(t, decoded.QrPush)
	assert.Nil(t, decoded.PayLink)
}
