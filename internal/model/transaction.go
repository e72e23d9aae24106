package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction status enum constants
const (
	TxStatusPending    = "pending"
	TxStatusPaid       = "paid"
	TxStatusDisplaying = "displaying"
	TxStatusDisplayed  = "displayed"
	TxStatusCancelled  = "cancelled"
	TxStatusFailed     = "failed"
)

// Activity actor constants. Gateway-sourced entries use the provider name
// (redirect_checkout, qr_push, pay_link) as the actor instead.
const (
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

// Activity action constants
const (
	ActionTransactionCreated = "TRANSACTION_CREATED"
	ActionPaymentConfirmed   = "PAYMENT_CONFIRMED"
	ActionDisplayStarted     = "DISPLAY_STARTED"
	ActionDisplayCompleted   = "DISPLAY_COMPLETED"
	ActionTransactionFailed  = "TRANSACTION_FAILED"
	ActionCancelled          = "TRANSACTION_CANCELLED"
	ActionGatewayError       = "GATEWAY_ERROR"
)

// PaidEquivalentStatuses are the transaction statuses that count toward
// revenue: money has been confirmed and is never un-confirmed afterwards.
var PaidEquivalentStatuses = []string{TxStatusPaid, TxStatusDisplaying, TxStatusDisplayed}

// Transaction is a purchased on-screen shout-out slot. Rows are created on
// submission and only ever move forward through the status machine; they are
// never deleted.
type Transaction struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VenueID         string          `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_tx_venue_code" json:"venue_id"`
	Code            string          `gorm:"type:varchar(30);not null;uniqueIndex:idx_tx_venue_code" json:"code"`
	CustomerName    string          `gorm:"type:varchar(100);not null" json:"customer_name"`
	CustomerMessage string          `gorm:"type:text" json:"customer_message"`
	ImageURL        string          `gorm:"type:text" json:"image_url"` // opaque, external storage
	DisplaySeconds  int             `gorm:"not null" json:"display_seconds"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency        string          `gorm:"type:varchar(8);not null" json:"currency"`
	Status          string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Gateway bookkeeping. GatewayMeta holds the provider-shaped metadata
	// blob (tagged union, decoded only at the adapter boundary).
	GatewayProvider string `gorm:"type:varchar(30);not null;index" json:"gateway_provider"`
	GatewayRef      string `gorm:"type:varchar(128);index" json:"gateway_ref"`
	GatewayMeta     string `gorm:"type:jsonb" json:"gateway_meta,omitempty"`

	PaidAt             *time.Time `json:"paid_at"`
	DisplayStartedAt   *time.Time `json:"display_started_at"`
	DisplayEndsAt      *time.Time `json:"display_ends_at"`
	DisplayCompletedAt *time.Time `json:"display_completed_at"`

	Activities []TransactionActivity `gorm:"foreignKey:TransactionID" json:"activities,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionActivity is the append-only audit trail of a transaction.
// Exactly one entry is written per state transition; entries are
// time-ordered and never rewritten.
type TransactionActivity struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null;index" json:"transaction_id"`
	Action        string    `gorm:"type:varchar(50);not null" json:"action"`
	Description   string    `gorm:"type:text" json:"description"`
	Actor         string    `gorm:"type:varchar(50);not null" json:"actor"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}
