package testutil

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
)

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertStock reloads a product and checks its stock.
func AssertStock(t *testing.T, db *gorm.DB, productID string, want int) {
	t.Helper()

	var p models.Product
	if err := db.Unscoped().First(&p, "id = ?", productID).Error; err != nil {
		t.Fatalf("failed to reload product %s: %v", productID, err)
	}
	if p.Stock != want {
		t.Errorf("product %s stock = %d, want %d", productID, p.Stock, want)
	}
}

// AssertLedgerBalanced checks InitialStock + sum(movements) == Stock.
func AssertLedgerBalanced(t *testing.T, db *gorm.DB, productID string) {
	t.Helper()

	var p models.Product
	if err := db.Unscoped().First(&p, "id = ?", productID).Error; err != nil {
		t.Fatalf("failed to reload product %s: %v", productID, err)
	}
	var sum int64
	if err := db.Model(&models.StockMovement{}).Where("product_id = ?", productID).
		Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error; err != nil {
		t.Fatalf("failed to sum movements: %v", err)
	}
	if int64(p.InitialStock)+sum != int64(p.Stock) {
		t.Errorf("ledger out of balance: initial %d + movements %d != stock %d", p.InitialStock, sum, p.Stock)
	}
}
