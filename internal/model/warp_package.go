package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WarpPackage is a duration/price catalog entry customers pick from when
// buying a shout-out slot. Simple reference data.
type WarpPackage struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name           string          `gorm:"type:varchar(100);not null" json:"name"`
	DisplaySeconds int             `gorm:"not null" json:"display_seconds"`
	Price          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	Currency       string          `gorm:"type:varchar(8);not null;default:'THB'" json:"currency"`
	Active         bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (WarpPackage) TableName() string { return "warp_packages" }
