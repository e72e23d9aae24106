package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"backend/pkg/apperror"
)

// QrPushGateway integrates the QR provider: a charge is created and
// confirmed in one call to obtain a scannable QR image plus expiry. The
// confirmation arrives either as a signed callback or via client-driven
// polling of the same charge.
type QrPushGateway struct {
	cfg    QrPushConfig
	client *http.Client
}

type QrPushConfig struct {
	BaseURL       string
	APIKey        string
	SigningSecret string
}

func NewQrPushGateway(cfg QrPushConfig, client *http.Client) *QrPushGateway {
	return &QrPushGateway{cfg: cfg, client: client}
}

func (g *QrPushGateway) Provider() string { return ProviderQrPush }

type qrChargeRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	Type      string `json:"type"`
	Confirm   bool   `json:"confirm"`
}

type qrChargeResponse struct {
	ID         string     `json:"id"`
	QRImageURL string     `json:"qr_image_url"`
	ExpiresAt  *time.Time `json:"expires_at"`
	Status     string     `json:"status"`
}

func (g *QrPushGateway) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	body, _ := json.Marshal(qrChargeRequest{
		Amount:    in.Amount.StringFixed(2),
		Currency:  in.Currency,
		Reference: in.TransactionID.String(),
		Type:      "qr",
		Confirm:   true,
	})

	var charge qrChargeResponse
	if err := g.do(ctx, http.MethodPost, "/v2/charges", body, &charge); err != nil {
		return nil, err
	}
	if charge.ID == "" || charge.QRImageURL == "" {
		return nil, apperror.New(apperror.KindGateway, "qr charge response missing id or image")
	}

	return &InitiateResult{
		ExternalRef: charge.ID,
		QRImageURL:  charge.QRImageURL,
		QRExpiresAt: charge.ExpiresAt,
		Meta: Meta{
			Provider: ProviderQrPush,
			QrPush: &QrPushMeta{
				ChargeID:    charge.ID,
				QRImageURL:  charge.QRImageURL,
				QRExpiresAt: charge.ExpiresAt,
			},
		},
	}, nil
}

func (g *QrPushGateway) Verify(ctx context.Context, externalRef string) (*VerifyResult, error) {
	var charge qrChargeResponse
	if err := g.do(ctx, http.MethodGet, "/v2/charges/"+externalRef, nil, &charge); err != nil {
		return nil, err
	}
	return &VerifyResult{
		Paid:      charge.Status == "successful" || charge.Status == "paid",
		Failed:    charge.Status == "expired" || charge.Status == "failed",
		RawStatus: charge.Status,
	}, nil
}

func (g *QrPushGateway) VerifyCallbackSignature(payload []byte, signature string) bool {
	if signature == "" || g.cfg.SigningSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.cfg.SigningSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type qrCallbackPayload struct {
	EventID  string `json:"event_id"`
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
}

func (g *QrPushGateway) ParseCallback(payload []byte) (*CallbackEvent, error) {
	var cb qrCallbackPayload
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, err, "decode qr callback")
	}
	if cb.ChargeID == "" {
		return nil, apperror.New(apperror.KindValidation, "qr callback missing charge_id")
	}

	eventID := cb.EventID
	if eventID == "" {
		eventID = cb.ChargeID + ":" + cb.Status
	}

	return &CallbackEvent{
		EventID:     eventID,
		ExternalRef: cb.ChargeID,
		RawStatus:   cb.Status,
		Paid:        cb.Status == "successful" || cb.Status == "paid",
		Failed:      cb.Status == "expired" || cb.Status == "failed",
	}, nil
}

func (g *QrPushGateway) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "build qr request")
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.KindGateway, err, "qr provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperror.Newf(apperror.KindGateway,
			"qr provider returned %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Wrap(apperror.KindGateway, err, "decode qr charge response")
	}
	return nil
}
