package service

import (
	"context"
	"errors"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type TaxBracketRequest struct {
	Min  string  `json:"min" binding:"required"`
	Max  *string `json:"max"`
	Rate string  `json:"rate" binding:"required"`
}

type UpsertTaxProfileRequest struct {
	TaxType            string              `json:"tax_type" binding:"required,oneof=flat progressive bracket"`
	TaxRate            string              `json:"tax_rate"`
	Brackets           []TaxBracketRequest `json:"brackets"`
	PersonalAllowance  string              `json:"personal_allowance"`
	BusinessExpensePct string              `json:"business_expense_pct"`
	OtherDeductions    string              `json:"other_deductions"`
	GatewayFeeRate     string              `json:"gateway_fee_rate" binding:"required"`
	OwnerShareRate     string              `json:"owner_share_rate" binding:"required"`
}

type TaxProfileResponse struct {
	VenueID            string            `json:"venue_id"`
	TaxType            string            `json:"tax_type"`
	TaxRate            string            `json:"tax_rate"`
	Brackets           model.TaxBrackets `json:"brackets,omitempty"`
	PersonalAllowance  string            `json:"personal_allowance"`
	BusinessExpensePct string            `json:"business_expense_pct"`
	OtherDeductions    string            `json:"other_deductions"`
	GatewayFeeRate     string            `json:"gateway_fee_rate"`
	OwnerShareRate     string            `json:"owner_share_rate"`
	StoreShareRate     string            `json:"store_share_rate"`
	UpdatedAt          string            `json:"updated_at"`
}

// --- Interface ---

type TaxProfileService interface {
	Get(ctx context.Context, venueID string) (*TaxProfileResponse, error)
	Upsert(ctx context.Context, venueID string, req UpsertTaxProfileRequest) (*TaxProfileResponse, error)
}

type taxProfileService struct {
	profileRepo repository.TaxProfileRepository
}

func NewTaxProfileService(profileRepo repository.TaxProfileRepository) TaxProfileService {
	return &taxProfileService{profileRepo: profileRepo}
}

// --- Implementation ---

func (s *taxProfileService) Get(ctx context.Context, venueID string) (*TaxProfileResponse, error) {
	if venueID == "" {
		return nil, apperror.New(apperror.KindValidation, "venue id is required")
	}
	profile, err := s.profileRepo.FindByVenue(ctx, venueID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Newf(apperror.KindNotFound, "venue '%s' has no tax profile", venueID)
		}
		return nil, apperror.Wrap(apperror.KindInternal, err, "load tax profile")
	}
	return toTaxProfileResponse(profile), nil
}

// Upsert validates and stores a venue's tax profile. Rates that do not add
// up to a non-negative store share are rejected before they can break a
// settlement run.
func (s *taxProfileService) Upsert(ctx context.Context, venueID string, req UpsertTaxProfileRequest) (*TaxProfileResponse, error) {
	if venueID == "" {
		return nil, apperror.New(apperror.KindValidation, "venue id is required")
	}

	profile := &model.VenueTaxProfile{
		VenueID: venueID,
		TaxType: req.TaxType,
	}

	var err error
	if profile.TaxRate, err = parseRate(req.TaxRate, "tax_rate"); err != nil {
		return nil, err
	}
	if profile.GatewayFeeRate, err = parseRate(req.GatewayFeeRate, "gateway_fee_rate"); err != nil {
		return nil, err
	}
	if profile.OwnerShareRate, err = parseRate(req.OwnerShareRate, "owner_share_rate"); err != nil {
		return nil, err
	}
	if profile.BusinessExpensePct, err = parseRate(req.BusinessExpensePct, "business_expense_pct"); err != nil {
		return nil, err
	}
	if profile.PersonalAllowance, err = parseAmount(req.PersonalAllowance, "personal_allowance"); err != nil {
		return nil, err
	}
	if profile.OtherDeductions, err = parseAmount(req.OtherDeductions, "other_deductions"); err != nil {
		return nil, err
	}

	switch req.TaxType {
	case model.TaxTypeFlat:
		if len(req.Brackets) > 0 {
			return nil, apperror.New(apperror.KindValidation, "flat tax type does not take brackets")
		}
	case model.TaxTypeProgressive, model.TaxTypeBracket:
		brackets, err := parseBrackets(req.Brackets)
		if err != nil {
			return nil, err
		}
		profile.Brackets = brackets
	}

	// The effective worst-case percentage take must leave the store a
	// non-negative share.
	worstTax := profile.TaxRate
	for _, b := range profile.Brackets {
		if b.Rate.GreaterThan(worstTax) {
			worstTax = b.Rate
		}
	}
	total := worstTax.Add(profile.GatewayFeeRate).Add(profile.OwnerShareRate)
	if total.GreaterThan(hundred) {
		return nil, apperror.Newf(apperror.KindValidation,
			"tax, fee and owner rates add up to %s%%, leaving the store a negative share", total.StringFixed(2))
	}

	if err := s.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "store tax profile")
	}

	stored, err := s.profileRepo.FindByVenue(ctx, venueID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "reload tax profile")
	}
	return toTaxProfileResponse(stored), nil
}

// --- Helpers ---

func parseRate(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.Newf(apperror.KindValidation, "%s must be a decimal string", field)
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return decimal.Zero, apperror.Newf(apperror.KindValidation, "%s must be between 0 and 100", field)
	}
	return rate, nil
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.Newf(apperror.KindValidation, "%s must be a decimal string", field)
	}
	if amount.IsNegative() {
		return decimal.Zero, apperror.Newf(apperror.KindValidation, "%s must not be negative", field)
	}
	return amount, nil
}

// parseBrackets requires brackets ordered by min, starting at zero, each
// max meeting the next min, and only the last one open-ended.
func parseBrackets(reqs []TaxBracketRequest) (model.TaxBrackets, error) {
	if len(reqs) == 0 {
		return nil, apperror.New(apperror.KindValidation, "at least one bracket is required")
	}

	brackets := make(model.TaxBrackets, 0, len(reqs))
	for i, b := range reqs {
		min, err := decimal.NewFromString(b.Min)
		if err != nil || min.IsNegative() {
			return nil, apperror.Newf(apperror.KindValidation, "bracket %d: min must be a non-negative decimal", i)
		}
		rate, err := parseRate(b.Rate, "bracket rate")
		if err != nil {
			return nil, err
		}
		bracket := model.TaxBracket{Min: min, Rate: rate}
		if b.Max != nil {
			max, err := decimal.NewFromString(*b.Max)
			if err != nil || !max.GreaterThan(min) {
				return nil, apperror.Newf(apperror.KindValidation, "bracket %d: max must be a decimal greater than min", i)
			}
			bracket.Max = &max
		}
		brackets = append(brackets, bracket)
	}

	if !brackets[0].Min.IsZero() {
		return nil, apperror.New(apperror.KindValidation, "first bracket must start at 0")
	}
	for i := 0; i < len(brackets)-1; i++ {
		if brackets[i].Max == nil {
			return nil, apperror.Newf(apperror.KindValidation, "bracket %d: only the last bracket may be open-ended", i)
		}
		if !brackets[i].Max.Equal(brackets[i+1].Min) {
			return nil, apperror.Newf(apperror.KindValidation,
				"bracket %d: max %s does not meet the next bracket's min %s",
				i, brackets[i].Max.String(), brackets[i+1].Min.String())
		}
	}
	return brackets, nil
}

func toTaxProfileResponse(p *model.VenueTaxProfile) *TaxProfileResponse {
	return &TaxProfileResponse{
		VenueID:            p.VenueID,
		TaxType:            p.TaxType,
		TaxRate:            p.TaxRate.StringFixed(2),
		Brackets:           p.Brackets,
		PersonalAllowance:  p.PersonalAllowance.StringFixed(2),
		BusinessExpensePct: p.BusinessExpensePct.StringFixed(2),
		OtherDeductions:    p.OtherDeductions.StringFixed(2),
		GatewayFeeRate:     p.GatewayFeeRate.StringFixed(2),
		OwnerShareRate:     p.OwnerShareRate.StringFixed(2),
		StoreShareRate:     p.StoreShareRate().StringFixed(2),
		UpdatedAt:          p.UpdatedAt.Format(time.RFC3339),
	}
}
