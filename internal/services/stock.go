package services

import (
	"gorm.io/gorm"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
)

// NewSale validates the product fields of a transaction. A product may only
// be attached to income, and it sells at least one unit. Quantity without a
// product is rejected rather than silently dropped.
func NewSale(txType models.TransactionType, productID *string, quantity *int) (*Sale, error) {
	if productID == nil || *productID == "" {
		if quantity != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity requires a product_id")
		}
		return nil, nil
	}
	if txType != models.TransactionTypeIncome {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "only income transactions can reference a product")
	}
	qty := 1
	if quantity != nil {
		if *quantity < 1 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be at least 1")
		}
		qty = *quantity
	}
	return &Sale{ProductID: *productID, Quantity: qty}, nil
}

// adjustStock applies a signed delta to a product's stock inside tx and
// appends the matching ledger row. The relative update takes the row lock
// until tx commits, so concurrent adjustments serialize on the product.
// A missing product aborts the surrounding unit.
func adjustStock(tx *gorm.DB, userID, productID, transactionID string, delta int, reason models.StockMovementReason) error {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND user_id = ?", productID, userID).
		Updates(map[string]interface{}{
			"stock":   gorm.Expr("stock + ?", delta),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrProductNotFound
	}

	movement := &models.StockMovement{
		UserID:        userID,
		ProductID:     productID,
		TransactionID: transactionID,
		Delta:         delta,
		Reason:        reason,
	}
	if err := tx.Create(movement).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// applySale takes the units sold by t out of stock.
func applySale(tx *gorm.DB, t *models.Transaction) error {
	productID, units, ok := t.StockEffect()
	if !ok {
		return nil
	}
	return adjustStock(tx, t.UserID, productID, t.ID, -units, models.StockMovementSale)
}

// revertSale puts the units sold by t back into stock.
func revertSale(tx *gorm.DB, t *models.Transaction) error {
	productID, units, ok := t.StockEffect()
	if !ok {
		return nil
	}
	return adjustStock(tx, t.UserID, productID, t.ID, units, models.StockMovementSaleRevert)
}
