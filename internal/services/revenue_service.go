package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
	"meikon/internal/money"
)

// MEI annual revenue ceiling and its monthly share, in reais.
var (
	MEIAnnualLimit  = decimal.NewFromInt(81000)
	MEIMonthlyIdeal = MEIAnnualLimit.Div(decimal.NewFromInt(12))
)

// revenueWarningPercent is the used share at which the cap status turns to warning.
var revenueWarningPercent = decimal.NewFromInt(80)

// revenueService measures yearly income against the MEI ceiling.
type revenueService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRevenueService creates a new RevenueServicer.
func NewRevenueService(db *gorm.DB) RevenueServicer {
	return &revenueService{db: db, now: time.Now}
}

// GetRevenueCap summarizes the income booked in year.
func (s *revenueService) GetRevenueCap(userID string, year int) (*RevenueCapSummary, error) {
	if year < 2000 || year > 2100 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "year must be between 2000 and 2100")
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	var rows []models.Transaction
	err := s.db.Select("amount", "date").Scopes(models.OwnedBy(userID)).
		Where("type = ? AND date >= ? AND date < ?", models.TransactionTypeIncome, from, from.AddDate(1, 0, 0)).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	months := make([]MonthlyRevenue, 12)
	for i := range months {
		months[i] = MonthlyRevenue{Month: i + 1, Income: decimal.Zero}
	}
	total := decimal.Zero
	for _, r := range rows {
		m := r.Date.UTC().Month()
		months[m-1].Income = months[m-1].Income.Add(r.Amount)
		total = total.Add(r.Amount)
	}

	remaining := MEIAnnualLimit.Sub(total)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	used := money.Percent(total, MEIAnnualLimit)

	return &RevenueCapSummary{
		Year:             year,
		Limit:            MEIAnnualLimit,
		Total:            total,
		Remaining:        remaining,
		UsedPercentage:   used,
		ProjectedAnnual:  projectAnnual(total, elapsedMonths(year, s.now().UTC())),
		MonthlyIdeal:     MEIMonthlyIdeal,
		Status:           capStatus(total, used),
		Months:           months,
		TotalDisplay:     money.FormatBRL(total),
		RemainingDisplay: money.FormatBRL(remaining),
		LimitDisplay:     money.FormatBRL(MEIAnnualLimit),
	}, nil
}

// elapsedMonths counts the months of year that have started by now.
func elapsedMonths(year int, now time.Time) int {
	switch {
	case year < now.Year():
		return 12
	case year > now.Year():
		return 0
	}
	return int(now.Month())
}

func projectAnnual(total decimal.Decimal, elapsed int) decimal.Decimal {
	if elapsed == 0 {
		return total
	}
	return total.Div(decimal.NewFromInt(int64(elapsed))).Mul(decimal.NewFromInt(12)).Round(2)
}

func capStatus(total, usedPercent decimal.Decimal) RevenueCapStatus {
	switch {
	case total.GreaterThan(MEIAnnualLimit):
		return RevenueCapExceeded
	case usedPercent.GreaterThanOrEqual(revenueWarningPercent):
		return RevenueCapWarning
	}
	return RevenueCapOK
}
