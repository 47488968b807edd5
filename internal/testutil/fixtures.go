package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"meikon/internal/models"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a unique identity-provider style user id.
func NewUserID() string {
	return fmt.Sprintf("user_%d", nextID())
}

// CreateTestProduct creates a product owned by userID with the given stock.
func CreateTestProduct(t *testing.T, db *gorm.DB, userID string, stock int) *models.Product {
	t.Helper()

	n := nextID()
	p := &models.Product{
		UserID:       userID,
		Name:         fmt.Sprintf("Test Product %d", n),
		SKU:          fmt.Sprintf("SKU-%d", n),
		Price:        decimal.NewFromInt(50),
		CostPrice:    decimal.NewFromInt(20),
		Stock:        stock,
		InitialStock: stock,
		MinStock:     2,
		Unit:         "un",
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create test product: %v", err)
	}
	return p
}

// CreateTestTransaction creates a plain transaction of the given type and amount.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID string, txType models.TransactionType, amount decimal.Decimal, date time.Time) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: fmt.Sprintf("Test transaction %d", nextID()),
		Category:    "Vendas",
		Date:        date.UTC(),
		IsPaid:      true,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestTransactions creates n plain income transactions dated now.
func CreateTestTransactions(t *testing.T, db *gorm.DB, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		CreateTestTransaction(t, db, userID, models.TransactionTypeIncome, decimal.NewFromInt(10), time.Now())
	}
}

// CreateTestSubscription creates a subscription row on the given plan.
func CreateTestSubscription(t *testing.T, db *gorm.DB, userID string, plan models.Plan, status models.SubscriptionStatus) *models.Subscription {
	t.Helper()

	sub := &models.Subscription{UserID: userID, Plan: plan, Status: status}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("failed to create test subscription: %v", err)
	}
	return sub
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
