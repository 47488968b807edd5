package models

import (
	"time"

	"gorm.io/gorm"

	"meikon/internal/uuid"
)

// StockMovementReason describes why a product's stock changed.
type StockMovementReason string

const (
	StockMovementSale       StockMovementReason = "sale"
	StockMovementSaleRevert StockMovementReason = "sale_revert"
)

// StockMovement is an append-only, signed stock delta. For every product,
// InitialStock plus the sum of its movements equals Product.Stock.
type StockMovement struct {
	ID            string              `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string              `gorm:"type:varchar(64);not null;index" json:"user_id"`
	ProductID     string              `gorm:"type:uuid;not null;index" json:"product_id"`
	TransactionID string              `gorm:"type:uuid;not null;index" json:"transaction_id"`
	Delta         int                 `gorm:"not null" json:"delta"`
	Reason        StockMovementReason `gorm:"type:varchar(20);not null" json:"reason"`
	CreatedAt     time.Time           `json:"created_at"`
}

// BeforeCreate assigns a UUIDv7 id.
func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New()
	}
	return nil
}
