package service

import (
	"context"
	"errors"
	"log"
	"time"

	"backend/internal/gateway"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"
	"backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateTransactionRequest struct {
	Code            string `json:"code" binding:"required,min=3,max=30"`
	CustomerName    string `json:"customer_name" binding:"required,max=100"`
	CustomerMessage string `json:"customer_message" binding:"max=500"`
	ImageURL        string `json:"image_url"`
	DisplaySeconds  int    `json:"display_seconds" binding:"required,gte=5,lte=600"`
	Amount          string `json:"amount" binding:"required"` // Decimal string, e.g. "100.00"
	Currency        string `json:"currency" binding:"required,len=3"`
	Provider        string `json:"provider" binding:"required,oneof=redirect_checkout qr_push pay_link"`
	ReturnURL       string `json:"return_url"`
}

type CreateTransactionResponse struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	RedirectURL string  `json:"redirect_url,omitempty"`
	QRImageURL  string  `json:"qr_image_url,omitempty"`
	QRExpiresAt *string `json:"qr_expires_at,omitempty"`
}

type TransactionStatusResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	GatewayStatus string `json:"gateway_status,omitempty"`
	Note          string `json:"note,omitempty"`
}

type ActivityResponse struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Actor       string `json:"actor"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

type TransactionService interface {
	CreateTransaction(ctx context.Context, venueID string, req CreateTransactionRequest) (*CreateTransactionResponse, error)
	CheckStatus(ctx context.Context, idOrRef string) (*TransactionStatusResponse, error)
	Cancel(ctx context.Context, id string, actor string) error
	ListActivities(ctx context.Context, id string, p pagination.Params) ([]ActivityResponse, int64, error)
}

type transactionService struct {
	txRepo       repository.TransactionRepository
	activityRepo repository.ActivityRepository
	txManager    repository.TransactionManager
	gateways     *gateway.Registry
	reconciler   ReconcileService
}

func NewTransactionService(
	txRepo repository.TransactionRepository,
	activityRepo repository.ActivityRepository,
	txManager repository.TransactionManager,
	gateways *gateway.Registry,
	reconciler ReconcileService,
) TransactionService {
	return &transactionService{
		txRepo:       txRepo,
		activityRepo: activityRepo,
		txManager:    txManager,
		gateways:     gateways,
		reconciler:   reconciler,
	}
}

// --- Implementation ---

func (s *transactionService) CreateTransaction(ctx context.Context, venueID string, req CreateTransactionRequest) (*CreateTransactionResponse, error) {
	if venueID == "" {
		return nil, apperror.New(apperror.KindValidation, "venue id is required")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, apperror.New(apperror.KindValidation, "amount must be a positive decimal string")
	}

	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	exists, err := s.txRepo.CodeExists(ctx, venueID, req.Code)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "check submission code")
	}
	if exists {
		return nil, apperror.Newf(apperror.KindConflict, "submission code '%s' already used for this venue", req.Code)
	}

	tx := &model.Transaction{
		ID:              uuid.New(),
		VenueID:         venueID,
		Code:            req.Code,
		CustomerName:    req.CustomerName,
		CustomerMessage: req.CustomerMessage,
		ImageURL:        req.ImageURL,
		DisplaySeconds:  req.DisplaySeconds,
		Amount:          amount,
		Currency:        req.Currency,
		Status:          model.TxStatusPending,
		GatewayProvider: req.Provider,
	}

	// Persist the pending row before talking to the provider so a timeout
	// never loses the transaction.
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.Create(txCtx, tx); err != nil {
			return apperror.Wrap(apperror.KindInternal, err, "create transaction")
		}
		return s.appendActivity(txCtx, tx.ID, model.ActionTransactionCreated,
			"transaction submitted via "+req.Provider, model.ActorCustomer)
	})
	if err != nil {
		return nil, err
	}

	initiated, err := gw.Initiate(ctx, gateway.InitiateInput{
		TransactionID: tx.ID,
		VenueID:       venueID,
		Amount:        amount,
		Currency:      req.Currency,
		Description:   req.CustomerName + ": " + req.CustomerMessage,
		ReturnURL:     req.ReturnURL,
	})
	if err != nil {
		// Transaction stays pending; detail goes into the activity log and
		// the caller gets a retryable error.
		if logErr := s.appendActivity(ctx, tx.ID, model.ActionGatewayError,
			err.Error(), req.Provider); logErr != nil {
			log.Println("WARNING: failed to record gateway error activity:", logErr)
		}
		return nil, err
	}

	meta, err := initiated.Meta.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.txRepo.SetGatewayResult(ctx, tx.ID, initiated.ExternalRef, meta); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "store gateway reference")
	}

	resp := &CreateTransactionResponse{
		ID:          tx.ID.String(),
		Status:      tx.Status,
		RedirectURL: initiated.RedirectURL,
		QRImageURL:  initiated.QRImageURL,
	}
	if initiated.QRExpiresAt != nil {
		formatted := initiated.QRExpiresAt.Format(time.RFC3339)
		resp.QRExpiresAt = &formatted
	}
	return resp, nil
}

func (s *transactionService) CheckStatus(ctx context.Context, idOrRef string) (*TransactionStatusResponse, error) {
	tx, err := s.findByIDOrRef(ctx, idOrRef)
	if err != nil {
		return nil, err
	}

	resp := &TransactionStatusResponse{ID: tx.ID.String(), Status: tx.Status}

	// Terminal and post-payment statuses need no gateway round-trip.
	if tx.Status != model.TxStatusPending {
		resp.Note = "status is final from the gateway's perspective"
		return resp, nil
	}
	if tx.GatewayRef == "" {
		resp.Note = "payment was never initiated with the gateway"
		return resp, nil
	}

	gw, err := s.gateways.Get(tx.GatewayProvider)
	if err != nil {
		return nil, err
	}

	verified, err := gw.Verify(ctx, tx.GatewayRef)
	if err != nil {
		return nil, err
	}
	resp.GatewayStatus = verified.RawStatus

	if verified.Paid || verified.Failed {
		result, err := s.reconciler.Reconcile(ctx, ReconcileInput{
			Provider:    tx.GatewayProvider,
			ExternalRef: tx.GatewayRef,
			Source:      ReconcileSourceStatusCheck,
			RawStatus:   verified.RawStatus,
			Paid:        verified.Paid,
			Failed:      verified.Failed,
		})
		if err != nil {
			return nil, err
		}
		resp.Status = result.Status
		resp.Note = result.Note
	}

	return resp, nil
}

// Cancel voids a transaction that has not started displaying. Displaying and
// terminal rows are left untouched.
func (s *transactionService) Cancel(ctx context.Context, id string, actor string) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return apperror.New(apperror.KindValidation, "invalid transaction id")
	}
	if actor == "" {
		actor = model.ActorAdmin
	}

	var cancelled bool
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var markErr error
		cancelled, markErr = s.txRepo.MarkCancelled(txCtx, txID)
		if markErr != nil {
			return apperror.Wrap(apperror.KindInternal, markErr, "cancel transaction")
		}
		if !cancelled {
			return nil
		}
		return s.appendActivity(txCtx, txID, model.ActionCancelled,
			"transaction cancelled", actor)
	})
	if err != nil {
		return err
	}
	if !cancelled {
		return apperror.New(apperror.KindNotFound, "transaction not found or already final")
	}
	return nil
}

func (s *transactionService) ListActivities(ctx context.Context, id string, p pagination.Params) ([]ActivityResponse, int64, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return nil, 0, apperror.New(apperror.KindValidation, "invalid transaction id")
	}

	entries, total, err := s.activityRepo.List(ctx, txID, p)
	if err != nil {
		return nil, 0, apperror.Wrap(apperror.KindInternal, err, "list activities")
	}

	res := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, ActivityResponse{
			Action:      e.Action,
			Description: e.Description,
			Actor:       e.Actor,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	return res, total, nil
}

func (s *transactionService) findByIDOrRef(ctx context.Context, idOrRef string) (*model.Transaction, error) {
	if id, parseErr := uuid.Parse(idOrRef); parseErr == nil {
		tx, err := s.txRepo.FindByID(ctx, id)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.KindInternal, err, "load transaction")
		}
		// A pay-link ref is also a UUID; fall through to the ref lookup.
	}

	tx, err := s.txRepo.FindByRef(ctx, idOrRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "transaction not found")
		}
		return nil, apperror.Wrap(apperror.KindInternal, err, "load transaction")
	}
	return tx, nil
}

func (s *transactionService) appendActivity(ctx context.Context, txID uuid.UUID, action, description, actor string) error {
	return s.activityRepo.Append(ctx, &model.TransactionActivity{
		TransactionID: txID,
		Action:        action,
		Description:   description,
		Actor:         actor,
	})
}
