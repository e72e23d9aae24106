package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SongRequest status enum constants
const (
	SongStatusPending  = "pending"
	SongStatusPaid     = "paid"
	SongStatusPlaying  = "playing"
	SongStatusPlayed   = "played"
	SongStatusRejected = "rejected"
)

// SongAutoPlayDelay is how long a request stays "paid" before it self-demotes
// to "playing" without any admin action.
const SongAutoPlayDelay = 60 * time.Second

// PaidEquivalentSongStatuses count toward revenue, mirroring
// PaidEquivalentStatuses on transactions.
var PaidEquivalentSongStatuses = []string{SongStatusPaid, SongStatusPlaying, SongStatusPlayed}

// SongRequest is a donation-backed song request. Priority equals the donated
// amount: higher donations surface first in the queue.
type SongRequest struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VenueID       string          `gorm:"type:varchar(64);not null;index" json:"venue_id"`
	SongTitle     string          `gorm:"type:varchar(200);not null" json:"song_title"`
	Artist        string          `gorm:"type:varchar(200)" json:"artist"`
	RequesterName string          `gorm:"type:varchar(100);not null" json:"requester_name"`
	Note          string          `gorm:"type:text" json:"note"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(8);not null" json:"currency"`
	Status        string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	GatewayProvider string `gorm:"type:varchar(30);not null;index" json:"gateway_provider"`
	GatewayRef      string `gorm:"type:varchar(128);index" json:"gateway_ref"`
	GatewayMeta     string `gorm:"type:jsonb" json:"gateway_meta,omitempty"`

	PaidAt   *time.Time `gorm:"index" json:"paid_at"`
	PlayedAt *time.Time `json:"played_at"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SongRequest) TableName() string { return "song_requests" }
