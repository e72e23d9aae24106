package gateway

import (
	"context"
	"net/http"
	"os"
	"time"

	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider name constants — doubles as the activity-log actor for
// gateway-sourced transitions.
const (
	ProviderRedirectCheckout = "redirect_checkout"
	ProviderQrPush           = "qr_push"
	ProviderPayLink          = "pay_link"
)

// InitiateInput carries everything an adapter needs to start a payment.
type InitiateInput struct {
	TransactionID uuid.UUID
	VenueID       string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	ReturnURL     string
}

// InitiateResult is the normalized initiation outcome: a redirect URL
// (hosted checkout / pay link) or QR assets, plus the provider's reference.
type InitiateResult struct {
	ExternalRef string
	RedirectURL string
	QRImageURL  string
	QRExpiresAt *time.Time
	Meta        Meta
}

// VerifyResult is the normalized pull-verification outcome.
type VerifyResult struct {
	Paid      bool
	Failed    bool
	RawStatus string
}

// CallbackEvent is a parsed, signature-verified inbound confirmation.
type CallbackEvent struct {
	EventID     string
	ExternalRef string
	RawStatus   string
	Paid        bool
	Failed      bool
}

// Gateway is the single conceptual contract all three provider shapes are
// normalized behind. Adapters never silently retry a money-moving call: on
// timeout they surface a gateway error and leave the transaction pending.
type Gateway interface {
	Provider() string
	Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error)
	Verify(ctx context.Context, externalRef string) (*VerifyResult, error)

	// VerifyCallbackSignature must be called on the raw payload before any
	// parsing; an invalid signature means the payload is never trusted.
	VerifyCallbackSignature(payload []byte, signature string) bool
	ParseCallback(payload []byte) (*CallbackEvent, error)
}

// Registry holds the configured adapters keyed by provider name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}
	return r
}

// Get returns the adapter for a provider, or a configuration error when the
// provider is unknown or its credentials were never supplied. Calls fail
// fast instead of silently defaulting.
func (r *Registry) Get(provider string) (Gateway, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return nil, apperror.Newf(apperror.KindConfiguration,
			"payment gateway '%s' is not configured", provider)
	}
	return g, nil
}

func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}

// NewRegistryFromEnv builds the registry from environment credentials.
// Providers with no credentials are simply absent; Get surfaces that as a
// configuration error at call time.
func NewRegistryFromEnv() *Registry {
	client := &http.Client{Timeout: 10 * time.Second}

	var gateways []Gateway

	if key := os.Getenv("CHECKOUT_API_KEY"); key != "" {
		gateways = append(gateways, NewRedirectCheckoutGateway(RedirectCheckoutConfig{
			BaseURL:       envOr("CHECKOUT_BASE_URL", "https://api.checkout-pay.example.com"),
			APIKey:        key,
			SigningSecret: os.Getenv("CHECKOUT_SIGNING_SECRET"),
		}, client))
	}

	if key := os.Getenv("QRPAY_API_KEY"); key != "" {
		gateways = append(gateways, NewQrPushGateway(QrPushConfig{
			BaseURL:       envOr("QRPAY_BASE_URL", "https://api.qrpay.example.com"),
			APIKey:        key,
			SigningSecret: os.Getenv("QRPAY_SIGNING_SECRET"),
		}, client))
	}

	if merchantID := os.Getenv("PAYLINK_MERCHANT_ID"); merchantID != "" {
		gateways = append(gateways, NewPayLinkGateway(PayLinkConfig{
			BaseURL:    envOr("PAYLINK_BASE_URL", "https://legacy.paylink.example.com"),
			MerchantID: merchantID,
			Secret:     os.Getenv("PAYLINK_SECRET"),
		}, client))
	}

	return NewRegistry(gateways...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
