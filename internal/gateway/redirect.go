package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"backend/pkg/apperror"
)

// RedirectCheckoutGateway integrates the hosted-checkout provider: we create
// a session, send the customer to its redirect URL, and the provider
// confirms asynchronously with a signed callback carrying the session id.
type RedirectCheckoutGateway struct {
	cfg    RedirectCheckoutConfig
	client *http.Client
}

type RedirectCheckoutConfig struct {
	BaseURL       string
	APIKey        string
	SigningSecret string
}

func NewRedirectCheckoutGateway(cfg RedirectCheckoutConfig, client *http.Client) *RedirectCheckoutGateway {
	return &RedirectCheckoutGateway{cfg: cfg, client: client}
}

func (g *RedirectCheckoutGateway) Provider() string { return ProviderRedirectCheckout }

type checkoutSessionRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	ReturnURL string `json:"return_url,omitempty"`
}

type checkoutSessionResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (g *RedirectCheckoutGateway) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	body, _ := json.Marshal(checkoutSessionRequest{
		Amount:    in.Amount.StringFixed(2),
		Currency:  in.Currency,
		Reference: in.TransactionID.String(),
		ReturnURL: in.ReturnURL,
	})

	var session checkoutSessionResponse
	if err := g.do(ctx, http.MethodPost, "/v1/sessions", body, &session); err != nil {
		return nil, err
	}
	if session.ID == "" || session.URL == "" {
		return nil, apperror.New(apperror.KindGateway, "checkout session response missing id or url")
	}

	return &InitiateResult{
		ExternalRef: session.ID,
		RedirectURL: session.URL,
		Meta: Meta{
			Provider: ProviderRedirectCheckout,
			RedirectCheckout: &RedirectCheckoutMeta{
				SessionID:   session.ID,
				RedirectURL: session.URL,
			},
		},
	}, nil
}

func (g *RedirectCheckoutGateway) Verify(ctx context.Context, externalRef string) (*VerifyResult, error) {
	var session checkoutSessionResponse
	if err := g.do(ctx, http.MethodGet, "/v1/sessions/"+externalRef, nil, &session); err != nil {
		return nil, err
	}
	return &VerifyResult{
		Paid:      session.Status == "paid" || session.Status == "completed",
		Failed:    session.Status == "expired" || session.Status == "failed",
		RawStatus: session.Status,
	}, nil
}

// VerifyCallbackSignature checks the hex HMAC-SHA256 of the raw body sent in
// the X-Checkout-Signature header.
func (g *RedirectCheckoutGateway) VerifyCallbackSignature(payload []byte, signature string) bool {
	if signature == "" || g.cfg.SigningSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.cfg.SigningSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type checkoutCallbackPayload struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func (g *RedirectCheckoutGateway) ParseCallback(payload []byte) (*CallbackEvent, error) {
	var cb checkoutCallbackPayload
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, err, "decode checkout callback")
	}
	if cb.SessionID == "" {
		return nil, apperror.New(apperror.KindValidation, "checkout callback missing session_id")
	}

	eventID := cb.EventID
	if eventID == "" {
		eventID = cb.SessionID + ":" + cb.Status
	}

	return &CallbackEvent{
		EventID:     eventID,
		ExternalRef: cb.SessionID,
		RawStatus:   cb.Status,
		Paid:        cb.Status == "paid" || cb.Status == "completed",
		Failed:      cb.Status == "expired" || cb.Status == "failed",
	}, nil
}

func (g *RedirectCheckoutGateway) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "build checkout request")
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// Provider unreachable — the transaction stays in its prior status
		// and the caller may retry.
		return apperror.Wrap(apperror.KindGateway, err, "checkout provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperror.Newf(apperror.KindGateway,
			"checkout provider returned %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Wrap(apperror.KindGateway, err, fmt.Sprintf("decode checkout %s response", path))
	}
	return nil
}
