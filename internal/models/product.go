package models

import "github.com/shopspring/decimal"

// Product is an inventory item. Stock is only changed by sales recorded as
// income transactions; it may go negative.
type Product struct {
	Base
	UserID       string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Name         string          `gorm:"not null" json:"name"`
	SKU          string          `gorm:"column:sku" json:"sku"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	CostPrice    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"cost_price"`
	Stock        int             `gorm:"not null;default:0" json:"stock"`
	InitialStock int             `gorm:"not null;default:0" json:"initial_stock"`
	MinStock     int             `gorm:"not null;default:0" json:"min_stock"`
	Unit         string          `gorm:"type:varchar(16);not null;default:'un'" json:"unit"`
	CategoryID   *string         `gorm:"type:varchar(64)" json:"category_id,omitempty"`
	Version      int             `gorm:"not null;default:0" json:"version"`
}

// LowStock reports whether the product is at or below its restock threshold.
func (p *Product) LowStock() bool {
	return p.Stock <= p.MinStock
}
