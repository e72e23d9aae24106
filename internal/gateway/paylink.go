package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"backend/pkg/apperror"
)

// PayLinkGateway integrates the legacy pay-link provider. There is no
// session API: the hosted link is built from an ordered field concatenation
// hashed with the shared secret, and the callback carries a reference equal
// to the transaction id with the signature inside the payload itself.
type PayLinkGateway struct {
	cfg    PayLinkConfig
	client *http.Client
}

type PayLinkConfig struct {
	BaseURL    string
	MerchantID string
	Secret     string
}

func NewPayLinkGateway(cfg PayLinkConfig, client *http.Client) *PayLinkGateway {
	return &PayLinkGateway{cfg: cfg, client: client}
}

func (g *PayLinkGateway) Provider() string { return ProviderPayLink }

// sign hashes the pipe-joined fields followed by the shared secret, the
// provider's documented legacy scheme.
func (g *PayLinkGateway) sign(fields ...string) string {
	joined := strings.Join(fields, "|") + "|" + g.cfg.Secret
	sum := md5.Sum([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func (g *PayLinkGateway) Initiate(_ context.Context, in InitiateInput) (*InitiateResult, error) {
	ref := in.TransactionID.String()
	amount := in.Amount.StringFixed(2)
	sig := g.sign(g.cfg.MerchantID, ref, amount, in.Currency)

	q := url.Values{}
	q.Set("merchant_id", g.cfg.MerchantID)
	q.Set("ref", ref)
	q.Set("amount", amount)
	q.Set("currency", in.Currency)
	q.Set("sig", sig)
	link := g.cfg.BaseURL + "/pay?" + q.Encode()

	return &InitiateResult{
		ExternalRef: ref,
		RedirectURL: link,
		Meta: Meta{
			Provider: ProviderPayLink,
			PayLink: &PayLinkMeta{
				LinkURL:   link,
				Signature: sig,
			},
		},
	}, nil
}

type payLinkStatusResponse struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
}

func (g *PayLinkGateway) Verify(ctx context.Context, externalRef string) (*VerifyResult, error) {
	q := url.Values{}
	q.Set("merchant_id", g.cfg.MerchantID)
	q.Set("ref", externalRef)
	q.Set("sig", g.sign(g.cfg.MerchantID, externalRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.cfg.BaseURL+"/api/v1/status?"+q.Encode(), nil)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "build paylink status request")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindGateway, err, "paylink provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.Newf(apperror.KindGateway,
			"paylink provider returned %d: %s", resp.StatusCode, string(raw))
	}

	var status payLinkStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, apperror.Wrap(apperror.KindGateway, err, "decode paylink status response")
	}

	return &VerifyResult{
		Paid:      status.Status == "success" || status.Status == "paid",
		Failed:    status.Status == "failed" || status.Status == "expired",
		RawStatus: status.Status,
	}, nil
}

type payLinkCallbackPayload struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
	Amount string `json:"amount"`
	Sig    string `json:"sig"`
}

// VerifyCallbackSignature recomputes the legacy field digest. The signature
// travels inside the payload, so the header argument is ignored; the
// payload is decoded here solely to extract the signed fields and is not
// trusted until the digest matches.
func (g *PayLinkGateway) VerifyCallbackSignature(payload []byte, _ string) bool {
	var cb payLinkCallbackPayload
	if err := json.Unmarshal(payload, &cb); err != nil {
		return false
	}
	if cb.Sig == "" || g.cfg.Secret == "" {
		return false
	}
	expected := g.sign(g.cfg.MerchantID, cb.Ref, cb.Status, cb.Amount)
	return hmac.Equal([]byte(expected), []byte(cb.Sig))
}

func (g *PayLinkGateway) ParseCallback(payload []byte) (*CallbackEvent, error) {
	var cb payLinkCallbackPayload
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, err, "decode paylink callback")
	}
	if cb.Ref == "" {
		return nil, apperror.New(apperror.KindValidation, "paylink callback missing ref")
	}

	return &CallbackEvent{
		EventID:     cb.Ref + ":" + cb.Status,
		ExternalRef: cb.Ref,
		RawStatus:   cb.Status,
		Paid:        cb.Status == "success" || cb.Status == "paid",
		Failed:      cb.Status == "failed" || cb.Status == "expired",
	}, nil
}
