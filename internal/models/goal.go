package models

import "github.com/shopspring/decimal"

// Goal is a monthly revenue target, one per (user, month, year).
type Goal struct {
	Base
	UserID       string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_goals_period" json:"user_id"`
	Month        int             `gorm:"not null;uniqueIndex:idx_goals_period" json:"month"`
	Year         int             `gorm:"not null;uniqueIndex:idx_goals_period" json:"year"`
	TargetAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"target_amount"`
}
