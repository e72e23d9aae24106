package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilePaidConfirmationIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	txRepo := repository.NewTransactionRepository(db)
	songRepo := repository.NewSongRequestRepository(db)
	hub := ws.NewHub()
	go hub.Run()
	svc := NewReconcileService(txRepo, songRepo,
		repository.NewActivityRepository(db),
		repository.NewTransactionManager(db), hub)

	tx := newTestTransaction(t, db, "venue-1", "WARP1", model.TxStatusPending, 100)

	in := ReconcileInput{
		Provider:    "redirect_checkout",
		ExternalRef: tx.GatewayRef,
		Source:      ReconcileSourceCallback,
		RawStatus:   "paid",
		Paid:        true,
	}

	first, err := svc.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, model.TxStatusPaid, first.Status)

	// The gateway retries the webhook; the replay must change nothing.
	second, err := svc.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, model.TxStatusPaid, second.Status)

	assert.EqualValues(t, 1, countActivities(t, db, tx.ID, model.ActionPaymentConfirmed))

	reloaded, err := txRepo.FindByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusPaid, reloaded.Status)
	assert.NotNil(t, reloaded.PaidAt)
}

func TestReconcileFailureNeverUnwindsPaid(t *testing.T) {
	db := setupTestDB(t)
	txRepo := repository.NewTransactionRepository(db)
	hub := ws.NewHub()
	go hub.Run()
	svc := NewReconcileService(txRepo,
		repository.NewSongRequestRepository(db),
		repository.NewActivityRepository(db),
		repository.NewTransactionManager(db), hub)

	tx := newTestTransaction(t, db, "venue-1", "WARP2", model.TxStatusPaid, 100)

	result, err := svc.Reconcile(context.Background(), ReconcileInput{
		Provider:    "redirect_checkout",
		ExternalRef: tx.GatewayRef,
		Source:      ReconcileSourceStatusCheck,
		RawStatus:   "expired",
		Failed:      true,
	})
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, model.TxStatusPaid, result.Status)
	assert.EqualValues(t, 0, countActivities(t, db, tx.ID, model.ActionTransactionFailed))
}

func TestReconcileFailureFromPending(t *testing.T) {
	db := setupTestDB(t)
	txRepo := repository.NewTransactionRepository(db)
	hub := ws.NewHub()
	go hub.Run()
	svc := NewReconcileService(txRepo,
		repository.NewSongRequestRepository(db),
		repository.NewActivityRepository(db),
		repository.NewTransactionManager(db), hub)

	tx := newTestTransaction(t, db, "venue-1", "WARP3", model.TxStatusPending, 100)

	result, err := svc.Reconcile(context.Background(), ReconcileInput{
		TransactionID: tx.ID.String(),
		Provider:      "redirect_checkout",
		Source:        ReconcileSourceCallback,
		RawStatus:     "failed",
		Failed:        true,
	})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, model.TxStatusFailed, result.Status)
	assert.EqualValues(t, 1, countActivities(t, db, tx.ID, model.ActionTransactionFailed))
}

func TestReconcileNonTerminalStatusIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	txRepo := repository.NewTransactionRepository(db)
	hub := ws.NewHub()
	go hub.Run()
	svc := NewReconcileService(txRepo,
		repository.NewSongRequestRepository(db),
		repository.NewActivityRepository(db),
		repository.NewTransactionManager(db), hub)

	tx := newTestTransaction(t, db, "venue-1", "WARP4", model.TxStatusPending, 100)

	result, err := svc.Reconcile(context.Background(), ReconcileInput{
		TransactionID: tx.ID.String(),
		Provider:      "redirect_checkout",
		Source:        ReconcileSourceStatusCheck,
		RawStatus:     "processing",
	})
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, model.TxStatusPending, result.Status)
}

func TestReconcileResolvesSongRequestByGatewayRef(t *testing.T) {
	db := setupTestDB(t)
	songRepo := repository.NewSongRequestRepository(db)
	hub := ws.NewHub()
	go hub.Run()
	svc := NewReconcileService(
		repository.NewTransactionRepository(db),
		songRepo,
		repository.NewActivityRepository(db),
		repository.NewTransactionManager(db), hub)

	song := newTestSongRequest(t, db, "venue-1", model.SongStatusPending, 200, nil)

	in := ReconcileInput{
		Provider:    "qr_push",
		ExternalRef: song.GatewayRef,
		Source:      ReconcileSourceCallback,
		RawStatus:   "successful",
		Paid:        true,
	}

	result, err := svc.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "song_request", result.EntityType)
	assert.True(t, result.Changed)
	assert.Equal(t, model.SongStatusPaid, result.Status)

	replay, err := svc.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, replay.Changed)

	reloaded, err := songRepo.FindByID(context.Background(), song.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SongStatusPaid, reloaded.Status)
	assert.NotNil(t, reloaded.PaidAt)
	assert.WithinDuration(t, time.Now(), *reloaded.PaidAt, 5*time.Second)
}
