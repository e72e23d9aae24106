package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newQueueService(t *testing.T, db *gorm.DB) QueueService {
	t.Helper()

	hub := ws.NewHub()
	go hub.Run()
	return NewQueueService(
		repository.NewTransactionRepository(db),
		repository.NewActivityRepository(db),
		repository.NewTransactionManager(db),
		hub,
	)
}

func TestClaimNextPromotesOldestPaid(t *testing.T) {
	db := setupTestDB(t)
	svc := newQueueService(t, db)

	older := newTestTransaction(t, db, "venue-1", "OLD", model.TxStatusPaid, 100)
	// Force a later created_at on the second row so the ordering is
	// deterministic regardless of insert timing resolution.
	newer := newTestTransaction(t, db, "venue-1", "NEW", model.TxStatusPaid, 300)
	require.NoError(t, db.Model(newer).Update("created_at", time.Now().Add(time.Minute)).Error)

	item, err := svc.ClaimNext(context.Background(), "venue-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, older.ID.String(), item.ID)
	assert.True(t, item.NewlyClaimed)
	assert.NotEmpty(t, item.StartedAt)
	assert.NotEmpty(t, item.EndsAt)

	assert.EqualValues(t, 1, countActivities(t, db, older.ID, model.ActionDisplayStarted))
}

func TestClaimNextReturnsCurrentWhenAlreadyDisplaying(t *testing.T) {
	db := setupTestDB(t)
	svc := newQueueService(t, db)

	displaying := newTestTransaction(t, db, "venue-1", "CUR", model.TxStatusDisplaying, 100)
	newTestTransaction(t, db, "venue-1", "QUEUED", model.TxStatusPaid, 100)

	item, err := svc.ClaimNext(context.Background(), "venue-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, displaying.ID.String(), item.ID)
	// A reconnecting display gets the existing slot, never a fresh claim.
	assert.False(t, item.NewlyClaimed)
}

func TestClaimNextEmptyQueue(t *testing.T) {
	db := setupTestDB(t)
	svc := newQueueService(t, db)

	item, err := svc.ClaimNext(context.Background(), "venue-1")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestClaimNextIgnoresOtherVenues(t *testing.T) {
	db := setupTestDB(t)
	svc := newQueueService(t, db)

	newTestTransaction(t, db, "venue-2", "OTHER", model.TxStatusPaid, 100)

	item, err := svc.ClaimNext(context.Background(), "venue-1")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCompleteOnlyAffectsDisplayingItem(t *testing.T) {
	db := setupTestDB(t)
	svc := newQueueService(t, db)

	displaying := newTestTransaction(t, db, "venue-1", "CUR", model.TxStatusDisplaying, 100)
	queued := newTestTransaction(t, db, "venue-1", "QUEUED", model.TxStatusPaid, 100)

	// Completing a queued (not displaying) id is a not-found no-op.
	_, err := svc.Complete(context.Background(), queued.ID.String(), model.ActorAdmin)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	item, err := svc.Complete(context.Background(), displaying.ID.String(), model.ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, displaying.ID.String(), item.ID)

	var reloaded model.Transaction
	require.NoError(t, db.First(&reloaded, "id = ?", displaying.ID).Error)
	assert.Equal(t, model.TxStatusDisplayed, reloaded.Status)
	assert.NotNil(t, reloaded.DisplayCompletedAt)

	var untouched model.Transaction
	require.NoError(t, db.First(&untouched, "id = ?", queued.ID).Error)
	assert.Equal(t, model.TxStatusPaid, untouched.Status)
}

func TestCompleteIsIdempotentPerSlot(t *testing.T) {
	db := setupTestDB(t)
	svc := newQueueService(t, db)

	displaying := newTestTransaction(t, db, "venue-1", "CUR", model.TxStatusDisplaying, 100)

	_, err := svc.Complete(context.Background(), displaying.ID.String(), model.ActorSystem)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), displaying.ID.String(), model.ActorSystem)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	assert.EqualValues(t, 1, countActivities(t, db, displaying.ID, model.ActionDisplayCompleted))
}

func TestSnapshotReportsQueueDepth(t *testing.T) {
	db := setupTestDB(t)
	svc := newQueueService(t, db)

	newTestTransaction(t, db, "venue-1", "CUR", model.TxStatusDisplaying, 100)
	newTestTransaction(t, db, "venue-1", "Q1", model.TxStatusPaid, 100)
	newTestTransaction(t, db, "venue-1", "Q2", model.TxStatusPaid, 100)

	state, err := svc.Snapshot(context.Background(), "venue-1")
	require.NoError(t, err)
	require.NotNil(t, state.Current)
	assert.EqualValues(t, 2, state.QueueDepth)
	assert.NotEmpty(t, state.ServerTime)
}
