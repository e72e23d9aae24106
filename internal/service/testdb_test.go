package service

import (
	"testing"
	"time"

	"backend/internal/model"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens an isolated in-memory database. The schema is written
// out by hand because the postgres column defaults in the models do not
// exist on sqlite; ids are always assigned by the tests.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	transactions := `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  venue_id TEXT NOT NULL,
  code TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  customer_message TEXT,
  image_url TEXT,
  display_seconds INTEGER NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  gateway_provider TEXT NOT NULL DEFAULT '',
  gateway_ref TEXT,
  gateway_meta TEXT,
  paid_at DATETIME,
  display_started_at DATETIME,
  display_ends_at DATETIME,
  display_completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (venue_id, code)
);`
	activities := `
CREATE TABLE IF NOT EXISTS transaction_activities (
  id TEXT PRIMARY KEY,
  transaction_id TEXT NOT NULL,
  action TEXT NOT NULL,
  description TEXT,
  actor TEXT NOT NULL,
  created_at DATETIME
);`
	songRequests := `
CREATE TABLE IF NOT EXISTS song_requests (
  id TEXT PRIMARY KEY,
  venue_id TEXT NOT NULL,
  song_title TEXT NOT NULL,
  artist TEXT,
  requester_name TEXT NOT NULL,
  note TEXT,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  gateway_provider TEXT NOT NULL DEFAULT '',
  gateway_ref TEXT,
  gateway_meta TEXT,
  paid_at DATETIME,
  played_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	taxProfiles := `
CREATE TABLE IF NOT EXISTS venue_tax_profiles (
  id TEXT PRIMARY KEY,
  venue_id TEXT NOT NULL UNIQUE,
  tax_type TEXT NOT NULL DEFAULT 'flat',
  tax_rate NUMERIC NOT NULL DEFAULT 0,
  brackets TEXT,
  personal_allowance NUMERIC NOT NULL DEFAULT 0,
  business_expense_pct NUMERIC NOT NULL DEFAULT 0,
  other_deductions NUMERIC NOT NULL DEFAULT 0,
  gateway_fee_rate NUMERIC NOT NULL DEFAULT 0,
  owner_share_rate NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(transactions).Error)
	require.NoError(t, db.Exec(activities).Error)
	require.NoError(t, db.Exec(songRequests).Error)
	require.NoError(t, db.Exec(taxProfiles).Error)
	return db
}

func newTestTransaction(t *testing.T, db *gorm.DB, venueID, code, status string, amount int64) *model.Transaction {
	t.Helper()

	tx := &model.Transaction{
		ID:              uuid.New(),
		VenueID:         venueID,
		Code:            code,
		CustomerName:    "Somchai",
		CustomerMessage: "warp!",
		DisplaySeconds:  30,
		Amount:          decimal.NewFromInt(amount),
		Currency:        "THB",
		Status:          status,
		GatewayProvider: "redirect_checkout",
		GatewayRef:      "sess_" + code,
	}
	if status != model.TxStatusPending {
		now := time.Now()
		tx.PaidAt = &now
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}

func newTestSongRequest(t *testing.T, db *gorm.DB, venueID, status string, amount int64, paidAt *time.Time) *model.SongRequest {
	t.Helper()

	song := &model.SongRequest{
		ID:              uuid.New(),
		VenueID:         venueID,
		SongTitle:       "Live and Learn",
		RequesterName:   "Nok",
		Amount:          decimal.NewFromInt(amount),
		Currency:        "THB",
		Status:          status,
		GatewayProvider: "qr_push",
		GatewayRef:      "ch_" + uuid.NewString(),
		PaidAt:          paidAt,
	}
	require.NoError(t, db.Create(song).Error)
	return song
}

func newTestHub(t *testing.T) *ws.Hub {
	t.Helper()

	hub := ws.NewHub()
	go hub.Run()
	return hub
}

func countActivities(t *testing.T, db *gorm.DB, txID uuid.UUID, action string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&model.TransactionActivity{}).
		Where("transaction_id = ? AND action = ?", txID, action).
		Count(&count).Error)
	return count
}
