package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Transaction is a single income or expense entry in the MEI ledger.
// ProductID and Quantity are only ever set together on income rows.
type Transaction struct {
	Base
	UserID      string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Type        TransactionType `gorm:"type:varchar(10);not null" json:"type"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Description string          `gorm:"not null" json:"description"`
	Category    string          `gorm:"not null" json:"category"`
	Date        time.Time       `gorm:"not null;index" json:"date"`
	IsPaid      bool            `gorm:"not null" json:"is_paid"`
	ProductID   *string         `gorm:"type:uuid;index" json:"product_id,omitempty"`
	Quantity    *int            `json:"quantity,omitempty"`
}

// StockEffect returns the product and number of units this transaction
// takes out of inventory. ok is false for rows that do not touch stock.
func (t *Transaction) StockEffect() (productID string, units int, ok bool) {
	if t.Type != TransactionTypeIncome || t.ProductID == nil || *t.ProductID == "" {
		return "", 0, false
	}
	units = 1
	if t.Quantity != nil && *t.Quantity > 0 {
		units = *t.Quantity
	}
	return *t.ProductID, units, true
}
