package service

import (
	"context"
	"errors"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type DisplayItemResponse struct {
	ID              string `json:"id"`
	VenueID         string `json:"venue_id"`
	CustomerName    string `json:"customer_name"`
	CustomerMessage string `json:"customer_message"`
	ImageURL        string `json:"image_url,omitempty"`
	DisplaySeconds  int    `json:"display_seconds"`
	Amount          string `json:"amount"`
	StartedAt       string `json:"started_at,omitempty"`
	EndsAt          string `json:"ends_at,omitempty"`
	NewlyClaimed    bool   `json:"newly_claimed"`
}

type DisplayStateResponse struct {
	Current    *DisplayItemResponse `json:"current"`
	QueueDepth int64                `json:"queue_depth"`
	ServerTime string               `json:"server_time"`
}

// --- Interface ---

// QueueService is the display queue orchestrator: it promotes exactly one
// paid transaction per venue to "displaying" via an atomic conditional
// claim, and completes it the same way.
type QueueService interface {
	ClaimNext(ctx context.Context, venueID string) (*DisplayItemResponse, error)
	Complete(ctx context.Context, id string, actor string) (*DisplayItemResponse, error)
	Snapshot(ctx context.Context, venueID string) (*DisplayStateResponse, error)
}

type queueService struct {
	txRepo       repository.TransactionRepository
	activityRepo repository.ActivityRepository
	txManager    repository.TransactionManager
	hub          *ws.Hub
}

func NewQueueService(
	txRepo repository.TransactionRepository,
	activityRepo repository.ActivityRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
) QueueService {
	return &queueService{
		txRepo:       txRepo,
		activityRepo: activityRepo,
		txManager:    txManager,
		hub:          hub,
	}
}

// --- Implementation ---

// claimAttempts bounds the retry loop for callers that keep losing the
// conditional update to concurrent claimers.
const claimAttempts = 3

// ClaimNext returns the venue's currently displaying item if there is one —
// reconnecting displays must never desynchronize the queue — otherwise it
// atomically claims the oldest paid transaction. Returns nil when the queue
// is empty.
func (s *queueService) ClaimNext(ctx context.Context, venueID string) (*DisplayItemResponse, error) {
	if venueID == "" {
		return nil, apperror.New(apperror.KindValidation, "venue id is required")
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		current, err := s.txRepo.FindDisplaying(ctx, venueID)
		if err == nil {
			return toDisplayItem(current, false), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.KindInternal, err, "load displaying transaction")
		}

		candidate, err := s.txRepo.OldestPaid(ctx, venueID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil // queue is empty
			}
			return nil, apperror.Wrap(apperror.KindInternal, err, "load paid queue")
		}

		startedAt := time.Now()
		endsAt := startedAt.Add(time.Duration(candidate.DisplaySeconds) * time.Second)

		var claimed bool
		err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			var claimErr error
			claimed, claimErr = s.txRepo.Claim(txCtx, candidate.ID, startedAt, endsAt)
			if claimErr != nil {
				return apperror.Wrap(apperror.KindInternal, claimErr, "claim transaction")
			}
			if !claimed {
				return nil
			}
			return s.activityRepo.Append(txCtx, &model.TransactionActivity{
				TransactionID: candidate.ID,
				Action:        model.ActionDisplayStarted,
				Description:   "claimed for display until " + endsAt.Format(time.RFC3339),
				Actor:         model.ActorSystem,
			})
		})
		if err != nil {
			return nil, err
		}

		if claimed {
			candidate.Status = model.TxStatusDisplaying
			candidate.DisplayStartedAt = &startedAt
			candidate.DisplayEndsAt = &endsAt
			s.publishDisplayState(ctx, venueID, candidate)
			return toDisplayItem(candidate, true), nil
		}
		// Lost the race: another caller claimed or reconciliation moved the
		// row. Re-read and try again.
	}

	return nil, apperror.New(apperror.KindConflict, "claim contention, retry")
}

// Complete flips displaying -> displayed only when id names the currently
// claimed item; anything else is a not-found no-op that leaves the real
// displaying item untouched.
func (s *queueService) Complete(ctx context.Context, id string, actor string) (*DisplayItemResponse, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.New(apperror.KindValidation, "invalid transaction id")
	}
	if actor == "" {
		actor = model.ActorSystem
	}

	completedAt := time.Now()
	var completed bool
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var completeErr error
		completed, completeErr = s.txRepo.CompleteDisplay(txCtx, txID, completedAt)
		if completeErr != nil {
			return apperror.Wrap(apperror.KindInternal, completeErr, "complete display")
		}
		if !completed {
			return nil
		}
		return s.activityRepo.Append(txCtx, &model.TransactionActivity{
			TransactionID: txID,
			Action:        model.ActionDisplayCompleted,
			Description:   "display slot completed",
			Actor:         actor,
		})
	})
	if err != nil {
		return nil, err
	}
	if !completed {
		return nil, apperror.New(apperror.KindNotFound, "id is not the currently displaying item")
	}

	tx, err := s.txRepo.FindByID(ctx, txID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "reload transaction")
	}
	s.publishDisplayState(ctx, tx.VenueID, nil)
	return toDisplayItem(tx, false), nil
}

func (s *queueService) Snapshot(ctx context.Context, venueID string) (*DisplayStateResponse, error) {
	state := &DisplayStateResponse{ServerTime: time.Now().Format(time.RFC3339)}

	current, err := s.txRepo.FindDisplaying(ctx, venueID)
	if err == nil {
		state.Current = toDisplayItem(current, false)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.KindInternal, err, "load displaying transaction")
	}

	depth, err := s.txRepo.QueueDepth(ctx, venueID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "count queue")
	}
	state.QueueDepth = depth
	return state, nil
}

func (s *queueService) publishDisplayState(ctx context.Context, venueID string, current *model.Transaction) {
	depth, err := s.txRepo.QueueDepth(ctx, venueID)
	if err != nil {
		depth = -1
	}
	data := map[string]interface{}{
		"venue_id":    venueID,
		"queue_depth": depth,
	}
	if current != nil {
		data["current"] = toDisplayItem(current, false)
	}
	s.hub.Publish(venueID, ws.StreamDisplay, ws.Event{Event: "display_updated", Data: data})
}

func toDisplayItem(tx *model.Transaction, newlyClaimed bool) *DisplayItemResponse {
	item := &DisplayItemResponse{
		ID:              tx.ID.String(),
		VenueID:         tx.VenueID,
		CustomerName:    tx.CustomerName,
		CustomerMessage: tx.CustomerMessage,
		ImageURL:        tx.ImageURL,
		DisplaySeconds:  tx.DisplaySeconds,
		Amount:          tx.Amount.StringFixed(2),
		NewlyClaimed:    newlyClaimed,
	}
	if tx.DisplayStartedAt != nil {
		item.StartedAt = tx.DisplayStartedAt.Format(time.RFC3339)
	}
	if tx.DisplayEndsAt != nil {
		item.EndsAt = tx.DisplayEndsAt.Format(time.RFC3339)
	}
	return item
}
