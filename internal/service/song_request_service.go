package service

import (
	"context"
	"log"
	"time"

	"backend/internal/gateway"
	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateSongRequestRequest struct {
	SongTitle     string `json:"song_title" binding:"required,max=200"`
	Artist        string `json:"artist" binding:"max=200"`
	RequesterName string `json:"requester_name" binding:"required,max=100"`
	Note          string `json:"note" binding:"max=500"`
	Amount        string `json:"amount" binding:"required"`
	Currency      string `json:"currency" binding:"required,len=3"`
	Provider      string `json:"provider" binding:"required,oneof=redirect_checkout qr_push pay_link"`
	ReturnURL     string `json:"return_url"`
}

type CreateSongRequestResponse struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	RedirectURL string  `json:"redirect_url,omitempty"`
	QRImageURL  string  `json:"qr_image_url,omitempty"`
	QRExpiresAt *string `json:"qr_expires_at,omitempty"`
}

type SongRequestResponse struct {
	ID            string `json:"id"`
	SongTitle     string `json:"song_title"`
	Artist        string `json:"artist,omitempty"`
	RequesterName string `json:"requester_name"`
	Note          string `json:"note,omitempty"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	PaidAt        string `json:"paid_at,omitempty"`
}

// --- Interface ---

type SongRequestService interface {
	CreateSongRequest(ctx context.Context, venueID string, req CreateSongRequestRequest) (*CreateSongRequestResponse, error)
	Queue(ctx context.Context, venueID string) ([]SongRequestResponse, error)
	Reject(ctx context.Context, id string, actor string) error
	MarkPlayed(ctx context.Context, id string) error

	// DemoteExpired flips every request still paid 60 seconds after its
	// paid timestamp to playing. Called by the sweeper; safe to call
	// concurrently because each flip is a conditional update.
	DemoteExpired(ctx context.Context, asOf time.Time) (int, error)
	StartSweeper(interval time.Duration)
}

type songRequestService struct {
	songRepo repository.SongRequestRepository
	gateways *gateway.Registry
	hub      *ws.Hub
}

func NewSongRequestService(
	songRepo repository.SongRequestRepository,
	gateways *gateway.Registry,
	hub *ws.Hub,
) SongRequestService {
	return &songRequestService{
		songRepo: songRepo,
		gateways: gateways,
		hub:      hub,
	}
}

// --- Implementation ---

func (s *songRequestService) CreateSongRequest(ctx context.Context, venueID string, req CreateSongRequestRequest) (*CreateSongRequestResponse, error) {
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

	song := &model.SongRequest{
		ID:              uuid.New(),
		VenueID:         venueID,
		SongTitle:       req.SongTitle,
		Artist:          req.Artist,
		RequesterName:   req.RequesterName,
		Note:            req.Note,
		Amount:          amount,
		Currency:        req.Currency,
		Status:          model.SongStatusPending,
		GatewayProvider: req.Provider,
	}
	if err := s.songRepo.Create(ctx, song); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "create song request")
	}

	initiated, err := gw.Initiate(ctx, gateway.InitiateInput{
		TransactionID: song.ID,
		VenueID:       venueID,
		Amount:        amount,
		Currency:      req.Currency,
		Description:   "song request: " + req.SongTitle,
		ReturnURL:     req.ReturnURL,
	})
	if err != nil {
		return nil, err
	}

	meta, err := initiated.Meta.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.songRepo.SetGatewayResult(ctx, song.ID, initiated.ExternalRef, meta); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "store gateway reference")
	}

	resp := &CreateSongRequestResponse{
		ID:          song.ID.String(),
		Status:      song.Status,
		RedirectURL: initiated.RedirectURL,
		QRImageURL:  initiated.QRImageURL,
	}
	if initiated.QRExpiresAt != nil {
		formatted := initiated.QRExpiresAt.Format(time.RFC3339)
		resp.QRExpiresAt = &formatted
	}
	return resp, nil
}

func (s *songRequestService) Queue(ctx context.Context, venueID string) ([]SongRequestResponse, error) {
	reqs, err := s.songRepo.Queue(ctx, venueID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "load song queue")
	}

	res := make([]SongRequestResponse, 0, len(reqs))
	for _, r := range reqs {
		res = append(res, toSongRequestResponse(r))
	}
	return res, nil
}

func (s *songRequestService) Reject(ctx context.Context, id string, actor string) error {
	songID, err := uuid.Parse(id)
	if err != nil {
		return apperror.New(apperror.KindValidation, "invalid song request id")
	}
	if actor == "" {
		actor = model.ActorAdmin
	}

	changed, err := s.songRepo.MarkRejected(ctx, songID)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "reject song request")
	}
	if !changed {
		return apperror.New(apperror.KindNotFound, "song request not found or already final")
	}

	song, err := s.songRepo.FindByID(ctx, songID)
	if err == nil {
		s.publishQueue(song.VenueID)
	}
	return nil
}

func (s *songRequestService) MarkPlayed(ctx context.Context, id string) error {
	songID, err := uuid.Parse(id)
	if err != nil {
		return apperror.New(apperror.KindValidation, "invalid song request id")
	}

	changed, err := s.songRepo.MarkPlayed(ctx, songID)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "mark song request played")
	}
	if !changed {
		return apperror.New(apperror.KindNotFound, "song request is not playing")
	}
	return nil
}

func (s *songRequestService) DemoteExpired(ctx context.Context, asOf time.Time) (int, error) {
	cutoff := asOf.Add(-model.SongAutoPlayDelay)

	expired, err := s.songRepo.ExpiredPaid(ctx, cutoff)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindInternal, err, "list expired song requests")
	}

	demoted := 0
	venues := make(map[string]bool)
	for _, song := range expired {
		changed, err := s.songRepo.Demote(ctx, song.ID, asOf)
		if err != nil {
			return demoted, apperror.Wrap(apperror.KindInternal, err, "demote song request")
		}
		if changed {
			demoted++
			venues[song.VenueID] = true
		}
	}

	for venueID := range venues {
		s.publishQueue(venueID)
	}
	return demoted, nil
}

// StartSweeper launches the background loop that enforces the 60-second
// paid -> playing self-demotion without any admin involvement.
func (s *songRequestService) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if _, err := s.DemoteExpired(ctx, time.Now()); err != nil {
				log.Println("WARNING: song request sweep failed:", err)
			}
			cancel()
		}
	}()
}

func (s *songRequestService) publishQueue(venueID string) {
	s.hub.Publish(venueID, ws.StreamDisplay, ws.Event{
		Event: "song_queue_updated",
		Data:  map[string]interface{}{"venue_id": venueID},
	})
}

func toSongRequestResponse(r model.SongRequest) SongRequestResponse {
	resp := SongRequestResponse{
		ID:            r.ID.String(),
		SongTitle:     r.SongTitle,
		Artist:        r.Artist,
		RequesterName: r.RequesterName,
		Note:          r.Note,
		Amount:        r.Amount.StringFixed(2),
		Status:        r.Status,
	}
	if r.PaidAt != nil {
		resp.PaidAt = r.PaidAt.Format(time.RFC3339)
	}
	return resp
}
