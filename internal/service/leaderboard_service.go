package service

import (
	"context"
	"time"

	"backend/internal/model"
	"backend/pkg/apperror"

	"gorm.io/gorm"
)

// --- DTOs ---

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	Name        string `json:"name"`
	TotalAmount string `json:"total_amount"`
	Count       int    `json:"count"`
}

type LeaderboardResponse struct {
	VenueID     string             `json:"venue_id"`
	PeriodStart string             `json:"period_start"`
	PeriodEnd   string             `json:"period_end"`
	Entries     []LeaderboardEntry `json:"entries"`
}

// --- Interface ---

// LeaderboardService ranks supporters by total paid amount across warp
// transactions and song requests combined.
type LeaderboardService interface {
	TopSupporters(ctx context.Context, venueID string, start, end time.Time, limit int) (*LeaderboardResponse, error)
}

type leaderboardService struct {
	db *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) LeaderboardService {
	return &leaderboardService{db: db}
}

// --- Implementation ---

const defaultLeaderboardLimit = 10

func (s *leaderboardService) TopSupporters(ctx context.Context, venueID string, start, end time.Time, limit int) (*LeaderboardResponse, error) {
	if venueID == "" {
		return nil, apperror.New(apperror.KindValidation, "venue id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = defaultLeaderboardLimit
	}

	var rows []struct {
		Name  string `gorm:"column:name"`
		Total string `gorm:"column:total"`
		Count int    `gorm:"column:cnt"`
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT name, SUM(amount) AS total, COUNT(*) AS cnt FROM (
			SELECT customer_name AS name, amount
			FROM transactions
			WHERE venue_id = ? AND status IN ? AND paid_at >= ? AND paid_at < ?
			UNION ALL
			SELECT requester_name AS name, amount
			FROM song_requests
			WHERE venue_id = ? AND status IN ? AND paid_at >= ? AND paid_at < ?
		) combined
		GROUP BY name
		ORDER BY total DESC, name ASC
		LIMIT ?`,
		venueID, model.PaidEquivalentStatuses, start, end,
		venueID, model.PaidEquivalentSongStatuses, start, end,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "query leaderboard")
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			Name:        row.Name,
			TotalAmount: row.Total,
			Count:       row.Count,
		})
	}
	return &LeaderboardResponse{
		VenueID:     venueID,
		PeriodStart: start.Format(time.RFC3339),
		PeriodEnd:   end.Format(time.RFC3339),
		Entries:     entries,
	}, nil
}
