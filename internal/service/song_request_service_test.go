package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/gateway"
	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSongService(t *testing.T, db *gorm.DB) SongRequestService {
	t.Helper()

	hub := ws.NewHub()
	go hub.Run()
	return NewSongRequestService(repository.NewSongRequestRepository(db), gateway.NewRegistry(), hub)
}

func TestSongQueueOrdersByAmountThenAge(t *testing.T) {
	db := setupTestDB(t)
	svc := newSongService(t, db)
	now := time.Now()

	small := newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 50, &now)
	bigLate := newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 200, &now)
	bigEarly := newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 200, &now)
	require.NoError(t, db.Model(bigEarly).Update("created_at", now.Add(-time.Hour)).Error)
	require.NoError(t, db.Model(bigLate).Update("created_at", now).Error)

	// Pending requests never surface in the queue.
	newTestSongRequest(t, db, "venue-1", model.SongStatusPending, 500, nil)

	queue, err := svc.Queue(context.Background(), "venue-1")
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, bigEarly.ID.String(), queue[0].ID)
	assert.Equal(t, bigLate.ID.String(), queue[1].ID)
	assert.Equal(t, small.ID.String(), queue[2].ID)
}

func TestDemoteExpiredFlipsOnlyOverduePaid(t *testing.T) {
	db := setupTestDB(t)
	svc := newSongService(t, db)
	now := time.Now()

	overdue := now.Add(-90 * time.Second)
	fresh := now.Add(-10 * time.Second)
	expired := newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 100, &overdue)
	recent := newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 100, &fresh)

	count, err := svc.DemoteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var reloaded model.SongRequest
	require.NoError(t, db.First(&reloaded, "id = ?", expired.ID).Error)
	assert.Equal(t, model.SongStatusPlaying, reloaded.Status)
	assert.NotNil(t, reloaded.PlayedAt)

	var reloadedRecent model.SongRequest
	require.NoError(t, db.First(&reloadedRecent, "id = ?", recent.ID).Error)
	assert.Equal(t, model.SongStatusPaid, reloadedRecent.Status)
}

func TestDemoteExpiredIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := newSongService(t, db)
	overdue := time.Now().Add(-2 * time.Minute)
	newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 100, &overdue)

	count, err := svc.DemoteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.DemoteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRejectSongRequest(t *testing.T) {
	db := setupTestDB(t)
	svc := newSongService(t, db)
	now := time.Now()

	song := newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 100, &now)

	require.NoError(t, svc.Reject(context.Background(), song.ID.String(), model.ActorAdmin))

	var reloaded model.SongRequest
	require.NoError(t, db.First(&reloaded, "id = ?", song.ID).Error)
	assert.Equal(t, model.SongStatusRejected, reloaded.Status)

	// Rejecting a final request is a not-found no-op.
	err := svc.Reject(context.Background(), song.ID.String(), model.ActorAdmin)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestMarkPlayedRequiresPlayingStatus(t *testing.T) {
	db := setupTestDB(t)
	svc := newSongService(t, db)
	now := time.Now()

	song := newTestSongRequest(t, db, "venue-1", model.SongStatusPaid, 100, &now)

	err := svc.MarkPlayed(context.Background(), song.ID.String())
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	require.NoError(t, db.Model(song).Update("status", model.SongStatusPlaying).Error)
	require.NoError(t, svc.MarkPlayed(context.Background(), song.ID.String()))

	var reloaded model.SongRequest
	require.NoError(t, db.First(&reloaded, "id = ?", song.ID).Error)
	assert.Equal(t, model.SongStatusPlayed, reloaded.Status)
}

func TestCreateSongRequestUnknownProvider(t *testing.T) {
	db := setupTestDB(t)
	svc := newSongService(t, db)

	_, err := svc.CreateSongRequest(context.Background(), "venue-1", CreateSongRequestRequest{
		SongTitle:     "Zombie",
		RequesterName: "Mali",
		Amount:        "100",
		Currency:      "THB",
		Provider:      "qr_push", // registry is empty in this fixture
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindConfiguration, apperror.KindOf(err))
}
