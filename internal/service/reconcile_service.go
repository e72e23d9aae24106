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

// Reconciliation sources
const (
	ReconcileSourceCallback    = "callback"
	ReconcileSourceStatusCheck = "status_check"
)

// --- DTOs ---

// ReconcileInput identifies a ledger record either by transaction id or by
// the gateway's external reference, plus what the gateway reported.
type ReconcileInput struct {
	TransactionID string
	Provider      string
	ExternalRef   string
	Source        string
	RawStatus     string
	Paid          bool
	Failed        bool
}

type ReconcileResult struct {
	EntityType string `json:"entity_type"` // "transaction" or "song_request"
	ID         string `json:"id"`
	Status     string `json:"status"`
	Changed    bool   `json:"changed"`
	Note       string `json:"note,omitempty"`
}

// --- Interface ---

// ReconcileService applies gateway confirmations to the ledger. It is the
// single entry point for both push (callbacks) and pull (status checks),
// and it is idempotent: re-applying an identical terminal status is a
// no-op, and a record never transitions away from paid.
type ReconcileService interface {
	Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error)
}

type reconcileService struct {
	txRepo       repository.TransactionRepository
	songRepo     repository.SongRequestRepository
	activityRepo repository.ActivityRepository
	txManager    repository.TransactionManager
	hub          *ws.Hub
}

func NewReconcileService(
	txRepo repository.TransactionRepository,
	songRepo repository.SongRequestRepository,
	activityRepo repository.ActivityRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
) ReconcileService {
	return &reconcileService{
		txRepo:       txRepo,
		songRepo:     songRepo,
		activityRepo: activityRepo,
		txManager:    txManager,
		hub:          hub,
	}
}

// --- Implementation ---

func (s *reconcileService) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	if in.TransactionID == "" && in.ExternalRef == "" {
		return nil, apperror.New(apperror.KindValidation, "reconcile needs a transaction id or external ref")
	}

	tx, err := s.locateTransaction(ctx, in)
	if err == nil {
		return s.reconcileTransaction(ctx, tx, in)
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	// Not a warp transaction — the reference may belong to a song request.
	song, songErr := s.locateSongRequest(ctx, in)
	if songErr != nil {
		return nil, songErr
	}
	return s.reconcileSongRequest(ctx, song, in)
}

func (s *reconcileService) reconcileTransaction(ctx context.Context, tx *model.Transaction, in ReconcileInput) (*ReconcileResult, error) {
	actor := in.Provider
	if actor == "" {
		actor = model.ActorSystem
	}

	switch {
	case in.Paid:
		var changed bool
		err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			var markErr error
			changed, markErr = s.txRepo.MarkPaid(txCtx, tx.ID, time.Now())
			if markErr != nil {
				return apperror.Wrap(apperror.KindInternal, markErr, "mark transaction paid")
			}
			if !changed {
				return nil
			}
			return s.activityRepo.Append(txCtx, &model.TransactionActivity{
				TransactionID: tx.ID,
				Action:        model.ActionPaymentConfirmed,
				Description:   "payment confirmed via " + in.Source + " (" + in.RawStatus + ")",
				Actor:         actor,
			})
		})
		if err != nil {
			return nil, err
		}

		if changed {
			s.publishQueueUpdate(ctx, tx.VenueID)
			return &ReconcileResult{
				EntityType: "transaction", ID: tx.ID.String(),
				Status: model.TxStatusPaid, Changed: true,
			}, nil
		}
		// Already paid or further along — identical confirmation is a
		// silent no-op and revenue is never double-counted.
		current, err := s.txRepo.FindByID(ctx, tx.ID)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindInternal, err, "reload transaction")
		}
		return &ReconcileResult{
			EntityType: "transaction", ID: tx.ID.String(),
			Status: current.Status, Changed: false,
			Note: "confirmation already applied",
		}, nil

	case in.Failed:
		var changed bool
		err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			var markErr error
			changed, markErr = s.txRepo.MarkFailed(txCtx, tx.ID)
			if markErr != nil {
				return apperror.Wrap(apperror.KindInternal, markErr, "mark transaction failed")
			}
			if !changed {
				return nil
			}
			return s.activityRepo.Append(txCtx, &model.TransactionActivity{
				TransactionID: tx.ID,
				Action:        model.ActionTransactionFailed,
				Description:   "gateway reported '" + in.RawStatus + "' via " + in.Source,
				Actor:         actor,
			})
		})
		if err != nil {
			return nil, err
		}
		status := model.TxStatusFailed
		if !changed {
			// A paid transaction never transitions away from paid.
			current, err := s.txRepo.FindByID(ctx, tx.ID)
			if err != nil {
				return nil, apperror.Wrap(apperror.KindInternal, err, "reload transaction")
			}
			status = current.Status
		}
		return &ReconcileResult{
			EntityType: "transaction", ID: tx.ID.String(),
			Status: status, Changed: changed,
		}, nil

	default:
		return &ReconcileResult{
			EntityType: "transaction", ID: tx.ID.String(),
			Status: tx.Status, Changed: false,
			Note: "gateway status '" + in.RawStatus + "' is not terminal",
		}, nil
	}
}

func (s *reconcileService) reconcileSongRequest(ctx context.Context, song *model.SongRequest, in ReconcileInput) (*ReconcileResult, error) {
	if in.Failed {
		// Gateway failures only void pending requests; admin rejection is
		// the path that may void a paid one.
		if song.Status != model.SongStatusPending {
			return &ReconcileResult{
				EntityType: "song_request", ID: song.ID.String(),
				Status: song.Status, Changed: false,
				Note: "failure ignored for non-pending request",
			}, nil
		}
		changed, err := s.songRepo.MarkRejected(ctx, song.ID)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindInternal, err, "reject song request")
		}
		status := model.SongStatusRejected
		if !changed {
			current, err := s.songRepo.FindByID(ctx, song.ID)
			if err != nil {
				return nil, apperror.Wrap(apperror.KindInternal, err, "reload song request")
			}
			status = current.Status
		}
		return &ReconcileResult{
			EntityType: "song_request", ID: song.ID.String(),
			Status: status, Changed: changed,
		}, nil
	}
	if !in.Paid {
		return &ReconcileResult{
			EntityType: "song_request", ID: song.ID.String(),
			Status: song.Status, Changed: false,
			Note: "gateway status '" + in.RawStatus + "' is not terminal",
		}, nil
	}

	changed, err := s.songRepo.MarkPaid(ctx, song.ID, time.Now())
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "mark song request paid")
	}
	if changed {
		s.hub.Publish(song.VenueID, ws.StreamLeaderboard, ws.Event{
			Event: "song_request_paid",
			Data: map[string]interface{}{
				"song_request_id": song.ID.String(),
				"venue_id":        song.VenueID,
			},
		})
		return &ReconcileResult{
			EntityType: "song_request", ID: song.ID.String(),
			Status: model.SongStatusPaid, Changed: true,
		}, nil
	}

	current, err := s.songRepo.FindByID(ctx, song.ID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "reload song request")
	}
	return &ReconcileResult{
		EntityType: "song_request", ID: song.ID.String(),
		Status: current.Status, Changed: false,
		Note: "confirmation already applied",
	}, nil
}

func (s *reconcileService) locateTransaction(ctx context.Context, in ReconcileInput) (*model.Transaction, error) {
	if in.TransactionID != "" {
		id, err := uuid.Parse(in.TransactionID)
		if err != nil {
			return nil, apperror.New(apperror.KindValidation, "invalid transaction id")
		}
		tx, err := s.txRepo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.New(apperror.KindNotFound, "transaction not found")
			}
			return nil, apperror.Wrap(apperror.KindInternal, err, "load transaction")
		}
		return tx, nil
	}

	tx, err := s.txRepo.FindByGatewayRef(ctx, in.Provider, in.ExternalRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "transaction not found for gateway ref")
		}
		return nil, apperror.Wrap(apperror.KindInternal, err, "load transaction by ref")
	}
	return tx, nil
}

func (s *reconcileService) locateSongRequest(ctx context.Context, in ReconcileInput) (*model.SongRequest, error) {
	song, err := s.songRepo.FindByGatewayRef(ctx, in.Provider, in.ExternalRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Newf(apperror.KindNotFound,
				"no ledger record for gateway ref '%s'", in.ExternalRef)
		}
		return nil, apperror.Wrap(apperror.KindInternal, err, "load song request by ref")
	}
	return song, nil
}

func (s *reconcileService) publishQueueUpdate(ctx context.Context, venueID string) {
	depth, err := s.txRepo.QueueDepth(ctx, venueID)
	if err != nil {
		depth = -1
	}
	s.hub.Publish(venueID, ws.StreamDisplay, ws.Event{
		Event: "queue_updated",
		Data: map[string]interface{}{
			"venue_id":    venueID,
			"queue_depth": depth,
		},
	})
	s.hub.Publish(venueID, ws.StreamLeaderboard, ws.Event{
		Event: "leaderboard_updated",
		Data:  map[string]interface{}{"venue_id": venueID},
	})
}
