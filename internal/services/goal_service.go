package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
	"meikon/internal/money"
)

// goalService handles monthly revenue goals.
type goalService struct {
	db *gorm.DB
}

// NewGoalService creates a new GoalServicer.
func NewGoalService(db *gorm.DB) GoalServicer {
	return &goalService{db: db}
}

// UpsertGoal sets the target for a month, replacing any earlier target.
func (s *goalService) UpsertGoal(userID string, month, year int, target decimal.Decimal) (*models.Goal, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	if !target.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "target_amount must be greater than zero")
	}

	goal := &models.Goal{UserID: userID, Month: month, Year: year, TargetAmount: target}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "month"}, {Name: "year"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_amount", "updated_at"}),
	}).Create(goal).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.findGoal(userID, month, year)
}

// GetGoalProgress returns the goal together with the income booked in its month.
func (s *goalService) GetGoalProgress(userID string, month, year int) (*GoalProgress, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	goal, err := s.findGoal(userID, month, year)
	if err != nil {
		return nil, err
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	achieved, err := sumIncome(s.db, userID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}

	remaining := goal.TargetAmount.Sub(achieved)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &GoalProgress{
		Goal:       *goal,
		Achieved:   achieved,
		Remaining:  remaining,
		Percentage: money.Percent(achieved, goal.TargetAmount),
	}, nil
}

func (s *goalService) findGoal(userID string, month, year int) (*models.Goal, error) {
	var goal models.Goal
	err := s.db.Scopes(models.OwnedBy(userID)).Where("month = ? AND year = ?", month, year).First(&goal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrGoalNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &goal, nil
}

func validatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "year must be between 2000 and 2100")
	}
	return nil
}

// sumIncome adds the user's income booked in [from, to). Amounts are summed
// as decimals so no precision is lost to the driver's numeric type.
func sumIncome(db *gorm.DB, userID string, from, to time.Time) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := db.Model(&models.Transaction{}).Scopes(models.OwnedBy(userID)).
		Where("type = ? AND date >= ? AND date < ?", models.TransactionTypeIncome, from, to).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}
