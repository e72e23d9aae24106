package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tax type enum constants
const (
	TaxTypeFlat        = "flat"
	TaxTypeProgressive = "progressive"
	TaxTypeBracket     = "bracket"
)

// TaxBracket taxes the slice of income between Min and Max at Rate percent.
// A nil Max means the bracket is unbounded.
type TaxBracket struct {
	Min  decimal.Decimal  `json:"min"`
	Max  *decimal.Decimal `json:"max"`
	Rate decimal.Decimal  `json:"rate"`
}

// TaxBrackets is the ordered bracket list, persisted as a jsonb column.
type TaxBrackets []TaxBracket

func (b TaxBrackets) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (b *TaxBrackets) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("unsupported tax bracket column type %T", value)
	}
}

// VenueTaxProfile configures how the settlement engine splits a venue's gross
// revenue. One row per venue; mutated only through the tax-profile upsert.
type VenueTaxProfile struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VenueID string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"venue_id"`

	TaxType  string          `gorm:"type:varchar(20);not null;default:'flat'" json:"tax_type"`
	TaxRate  decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"tax_rate"`
	Brackets TaxBrackets     `gorm:"type:jsonb" json:"brackets"`

	// Exemption rules applied before tax
	PersonalAllowance  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"personal_allowance"`
	BusinessExpensePct decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"business_expense_pct"`
	OtherDeductions    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"other_deductions"`

	GatewayFeeRate decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"gateway_fee_rate"`
	OwnerShareRate decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"owner_share_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (VenueTaxProfile) TableName() string { return "venue_tax_profiles" }

// StoreShareRate is derived: whatever is not tax, fee, or owner share stays
// with the store.
func (p VenueTaxProfile) StoreShareRate() decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(p.TaxRate).Sub(p.GatewayFeeRate).Sub(p.OwnerShareRate)
}
