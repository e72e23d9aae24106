package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type SettlementRates struct {
	TaxType        string            `json:"tax_type"`
	TaxRate        string            `json:"tax_rate"`
	GatewayFeeRate string            `json:"gateway_fee_rate"`
	OwnerShareRate string            `json:"owner_share_rate"`
	StoreShareRate string            `json:"store_share_rate"`
	Brackets       model.TaxBrackets `json:"brackets,omitempty"`
}

type SettlementExemptions struct {
	PersonalAllowance  string `json:"personal_allowance"`
	BusinessExpensePct string `json:"business_expense_pct"`
	OtherDeductions    string `json:"other_deductions"`
}

// SettlementReport exposes both the computed amounts and the rates applied
// so the split is auditable after the fact.
type SettlementReport struct {
	VenueID           string               `json:"venue_id"`
	Period            string               `json:"period"`
	PeriodStart       string               `json:"period_start"`
	PeriodEnd         string               `json:"period_end"`
	GrossTransactions string               `json:"gross_transactions"`
	GrossSongRequests string               `json:"gross_song_requests"`
	Gross             string               `json:"gross"`
	TaxableIncome     string               `json:"taxable_income"`
	Tax               string               `json:"tax"`
	GatewayFee        string               `json:"gateway_fee"`
	OwnerShare        string               `json:"owner_share"`
	StoreShare        string               `json:"store_share"`
	Rates             SettlementRates      `json:"rates"`
	Exemptions        SettlementExemptions `json:"exemptions"`
}

// --- Interface ---

// revenueSummer is the slice of the ledger repositories the engine needs.
type revenueSummer interface {
	SumPaidInPeriod(ctx context.Context, venueID string, start, end time.Time) (decimal.Decimal, error)
}

type taxProfileFinder interface {
	FindByVenue(ctx context.Context, venueID string) (*model.VenueTaxProfile, error)
}

// SettlementService periodically splits a venue's gross revenue into tax,
// gateway fee, owner share and store share according to its tax profile.
type SettlementService interface {
	SettleMonth(ctx context.Context, venueID string, year int, month time.Month) (*SettlementReport, error)
	SettleWeek(ctx context.Context, venueID string, isoYear, isoWeek int) (*SettlementReport, error)
}

type settlementService struct {
	txSums      revenueSummer
	songSums    revenueSummer
	profileRepo taxProfileFinder
}

func NewSettlementService(txSums, songSums revenueSummer, profileRepo taxProfileFinder) SettlementService {
	return &settlementService{
		txSums:      txSums,
		songSums:    songSums,
		profileRepo: profileRepo,
	}
}

// --- Implementation ---

var hundred = decimal.NewFromInt(100)

func (s *settlementService) SettleMonth(ctx context.Context, venueID string, year int, month time.Month) (*SettlementReport, error) {
	if month < time.January || month > time.December {
		return nil, apperror.New(apperror.KindValidation, "month must be between 1 and 12")
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	label := fmt.Sprintf("%04d-%02d", year, month)
	return s.settle(ctx, venueID, start, end, label)
}

// SettleWeek computes the identical breakdown over a Monday-start ISO week.
func (s *settlementService) SettleWeek(ctx context.Context, venueID string, isoYear, isoWeek int) (*SettlementReport, error) {
	if isoWeek < 1 || isoWeek > 53 {
		return nil, apperror.New(apperror.KindValidation, "iso week must be between 1 and 53")
	}
	start := isoWeekStart(isoYear, isoWeek)
	end := start.AddDate(0, 0, 7)
	label := fmt.Sprintf("%04d-W%02d", isoYear, isoWeek)
	return s.settle(ctx, venueID, start, end, label)
}

func (s *settlementService) settle(ctx context.Context, venueID string, start, end time.Time, label string) (*SettlementReport, error) {
	if venueID == "" {
		return nil, apperror.New(apperror.KindValidation, "venue id is required")
	}

	profile, err := s.profileRepo.FindByVenue(ctx, venueID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Newf(apperror.KindConfiguration,
				"venue '%s' has no tax profile configured", venueID)
		}
		return nil, apperror.Wrap(apperror.KindInternal, err, "load tax profile")
	}

	grossTx, err := s.txSums.SumPaidInPeriod(ctx, venueID, start, end)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "sum transaction revenue")
	}
	grossSong, err := s.songSums.SumPaidInPeriod(ctx, venueID, start, end)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "sum song request revenue")
	}
	gross := grossTx.Add(grossSong)

	taxable := applyExemptions(gross, profile)

	tax, err := computeTax(taxable, profile)
	if err != nil {
		return nil, err
	}

	// Fee and owner share are computed on gross, matching the sequential
	// split the business runs today; the store share is the remainder so
	// the four parts always reconcile to gross exactly.
	gatewayFee := gross.Mul(profile.GatewayFeeRate).Div(hundred)
	ownerShare := gross.Mul(profile.OwnerShareRate).Div(hundred)
	storeShare := gross.Sub(tax).Sub(gatewayFee).Sub(ownerShare)

	report := &SettlementReport{
		VenueID:           venueID,
		Period:            label,
		PeriodStart:       start.Format(time.RFC3339),
		PeriodEnd:         end.Format(time.RFC3339),
		GrossTransactions: grossTx.StringFixed(2),
		GrossSongRequests: grossSong.StringFixed(2),
		Gross:             gross.StringFixed(2),
		TaxableIncome:     taxable.StringFixed(2),
		Tax:               tax.StringFixed(2),
		GatewayFee:        gatewayFee.StringFixed(2),
		OwnerShare:        ownerShare.StringFixed(2),
		StoreShare:        storeShare.StringFixed(2),
		Rates: SettlementRates{
			TaxType:        profile.TaxType,
			TaxRate:        profile.TaxRate.StringFixed(2),
			GatewayFeeRate: profile.GatewayFeeRate.StringFixed(2),
			OwnerShareRate: profile.OwnerShareRate.StringFixed(2),
			StoreShareRate: profile.StoreShareRate().StringFixed(2),
		},
		Exemptions: SettlementExemptions{
			PersonalAllowance:  profile.PersonalAllowance.StringFixed(2),
			BusinessExpensePct: profile.BusinessExpensePct.StringFixed(2),
			OtherDeductions:    profile.OtherDeductions.StringFixed(2),
		},
	}
	if profile.TaxType != model.TaxTypeFlat {
		report.Rates.Brackets = profile.Brackets
	}
	return report, nil
}

// applyExemptions deducts the personal allowance, the business-expense
// percentage of gross, and other deductions, flooring at zero after each
// subtraction.
func applyExemptions(gross decimal.Decimal, profile *model.VenueTaxProfile) decimal.Decimal {
	taxable := floorZero(gross.Sub(profile.PersonalAllowance))
	expense := gross.Mul(profile.BusinessExpensePct).Div(hundred)
	taxable = floorZero(taxable.Sub(expense))
	return floorZero(taxable.Sub(profile.OtherDeductions))
}

func computeTax(taxable decimal.Decimal, profile *model.VenueTaxProfile) (decimal.Decimal, error) {
	switch profile.TaxType {
	case model.TaxTypeFlat:
		return taxable.Mul(profile.TaxRate).Div(hundred), nil
	case model.TaxTypeProgressive:
		if len(profile.Brackets) == 0 {
			return decimal.Zero, apperror.New(apperror.KindConfiguration,
				"progressive tax type requires brackets")
		}
		return progressiveTax(taxable, profile.Brackets), nil
	case model.TaxTypeBracket:
		if len(profile.Brackets) == 0 {
			return decimal.Zero, apperror.New(apperror.KindConfiguration,
				"bracket tax type requires brackets")
		}
		return bracketTax(taxable, profile.Brackets), nil
	default:
		return decimal.Zero, apperror.Newf(apperror.KindConfiguration,
			"unknown tax type '%s'", profile.TaxType)
	}
}

// progressiveTax taxes only the slice of taxable income falling within each
// bracket, walking the ordered brackets until income is exhausted.
func progressiveTax(taxable decimal.Decimal, brackets model.TaxBrackets) decimal.Decimal {
	tax := decimal.Zero
	for _, b := range brackets {
		if taxable.LessThanOrEqual(b.Min) {
			break
		}
		upper := taxable
		if b.Max != nil && b.Max.LessThan(taxable) {
			upper = *b.Max
		}
		slice := upper.Sub(b.Min)
		if slice.IsNegative() {
			continue
		}
		tax = tax.Add(slice.Mul(b.Rate).Div(hundred))
	}
	return tax
}

// bracketTax taxes the whole taxable income at the rate of the single
// bracket containing it, falling back to the last bracket when none
// matches.
func bracketTax(taxable decimal.Decimal, brackets model.TaxBrackets) decimal.Decimal {
	rate := brackets[len(brackets)-1].Rate
	for _, b := range brackets {
		if taxable.GreaterThanOrEqual(b.Min) && (b.Max == nil || taxable.LessThanOrEqual(*b.Max)) {
			rate = b.Rate
			break
		}
	}
	return taxable.Mul(rate).Div(hundred)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// isoWeekStart returns the Monday beginning the given ISO week. January 4th
// is always inside ISO week 1 of its year.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := jan4.AddDate(0, 0, -(weekday - 1))
	return monday.AddDate(0, 0, (week-1)*7)
}
