package gateway

import (
	"encoding/json"
	"time"

	"backend/pkg/apperror"
)

// Meta is the tagged union of per-provider metadata stored on the ledger
// row. Provider is the discriminant; exactly one arm is populated. The union
// is decoded only at the adapter boundary — everything else treats the blob
// as opaque.
type Meta struct {
	Provider string `json:"provider"`

	RedirectCheckout *RedirectCheckoutMeta `json:"redirect_checkout,omitempty"`
	QrPush           *QrPushMeta           `json:"qr_push,omitempty"`
	PayLink          *PayLinkMeta          `json:"pay_link,omitempty"`
}

type RedirectCheckoutMeta struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	RawCallback string `json:"raw_callback,omitempty"`
}

type QrPushMeta struct {
	ChargeID    string     `json:"charge_id"`
	QRImageURL  string     `json:"qr_image_url"`
	QRExpiresAt *time.Time `json:"qr_expires_at,omitempty"`
	RawCallback string     `json:"raw_callback,omitempty"`
}

type PayLinkMeta struct {
	LinkURL     string `json:"link_url"`
	Signature   string `json:"signature"`
	RawCallback string `json:"raw_callback,omitempty"`
}

// Encode serializes the union for the jsonb column.
func (m Meta) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", apperror.Wrap(apperror.KindInternal, err, "encode gateway metadata")
	}
	return string(raw), nil
}

// DecodeMeta parses a stored metadata blob and checks the discriminant
// matches the populated arm.
func DecodeMeta(raw string) (Meta, error) {
	var m Meta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Meta{}, apperror.Wrap(apperror.KindInternal, err, "decode gateway metadata")
	}

	switch m.Provider {
	case ProviderRedirectCheckout:
		if m.RedirectCheckout == nil {
			return Meta{}, apperror.New(apperror.KindInternal, "redirect_checkout metadata arm missing")
		}
	case ProviderQrPush:
		if m.QrPush == nil {
			return Meta{}, apperror.New(apperror.KindInternal, "qr_push metadata arm missing")
		}
	case ProviderPayLink:
		if m.PayLink == nil {
			return Meta{}, apperror.New(apperror.KindInternal, "pay_link metadata arm missing")
		}
	default:
		return Meta{}, apperror.Newf(apperror.KindInternal, "unknown gateway metadata provider '%s'", m.Provider)
	}

	return m, nil
}
