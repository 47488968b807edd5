package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"meikon/internal/models"
	"meikon/internal/pagination"
	"meikon/internal/testutil"
)

func saleInput(productID string, qty int) TransactionInput {
	return TransactionInput{
		Type:        models.TransactionTypeIncome,
		Amount:      decimal.NewFromInt(150),
		Description: "Venda balcão",
		Category:    "Vendas",
		Date:        time.Now(),
		IsPaid:      true,
		Sale:        &Sale{ProductID: productID, Quantity: qty},
	}
}

func plainInput(txType models.TransactionType) TransactionInput {
	return TransactionInput{
		Type:        txType,
		Amount:      decimal.NewFromInt(80),
		Description: "Conta de luz",
		Category:    "Despesas fixas",
		Date:        time.Now(),
	}
}

func TestCreateTransaction(t *testing.T) {
	t.Run("sale_decrements_stock", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		tx, err := svc.CreateTransaction(userID, saleInput(product.ID, 3))
		testutil.AssertNoError(t, err)

		if tx.ID == "" {
			t.Fatal("expected transaction ID to be set")
		}
		if tx.Quantity == nil || *tx.Quantity != 3 {
			t.Errorf("expected quantity 3, got %v", tx.Quantity)
		}
		testutil.AssertStock(t, db, product.ID, 7)
		testutil.AssertLedgerBalanced(t, db, product.ID)
	})

	t.Run("stock_may_go_negative", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 1)

		_, err := svc.CreateTransaction(userID, saleInput(product.ID, 4))
		testutil.AssertNoError(t, err)
		testutil.AssertStock(t, db, product.ID, -3)
	})

	t.Run("plain_income_leaves_stock", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		_, err := svc.CreateTransaction(userID, plainInput(models.TransactionTypeIncome))
		testutil.AssertNoError(t, err)
		testutil.AssertStock(t, db, product.ID, 10)
	})

	t.Run("expense_with_product_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		in := saleInput(product.ID, 2)
		in.Type = models.TransactionTypeExpense
		_, err := svc.CreateTransaction(userID, in)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
		testutil.AssertStock(t, db, product.ID, 10)
	})

	t.Run("zero_quantity_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		_, err := svc.CreateTransaction(userID, saleInput(product.ID, 0))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("zero_amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)

		in := plainInput(models.TransactionTypeIncome)
		in.Amount = decimal.Zero
		_, err := svc.CreateTransaction(testutil.NewUserID(), in)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("unknown_product_aborts", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()

		_, err := svc.CreateTransaction(userID, saleInput("018f3b1e-0000-7000-8000-000000000000", 1))
		testutil.AssertAppError(t, err, "PRODUCT_NOT_FOUND")

		var count int64
		db.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count)
		if count != 0 {
			t.Errorf("expected no transaction to be written, got %d", count)
		}
	})

	t.Run("other_users_product", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		owner := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, owner, 10)

		_, err := svc.CreateTransaction(testutil.NewUserID(), saleInput(product.ID, 1))
		testutil.AssertAppError(t, err, "PRODUCT_NOT_FOUND")
		testutil.AssertStock(t, db, product.ID, 10)
	})

	t.Run("default_date_when_zero", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)

		in := plainInput(models.TransactionTypeExpense)
		in.Date = time.Time{}
		tx, err := svc.CreateTransaction(testutil.NewUserID(), in)
		testutil.AssertNoError(t, err)
		if tx.Date.IsZero() {
			t.Error("expected date to be defaulted to now, got zero")
		}
	})
}

func TestPlanLimitGate(t *testing.T) {
	t.Run("free_user_at_nineteen_can_add_one", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		testutil.CreateTestTransactions(t, db, userID, 19)

		_, err := svc.CreateTransaction(userID, plainInput(models.TransactionTypeIncome))
		testutil.AssertNoError(t, err)
	})

	t.Run("free_user_at_twenty_blocked", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		testutil.CreateTestTransactions(t, db, userID, 20)

		_, err := svc.CreateTransaction(userID, plainInput(models.TransactionTypeIncome))
		testutil.AssertAppError(t, err, "PLAN_LIMIT_REACHED")
	})

	t.Run("explicit_free_subscription_blocked", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		testutil.CreateTestSubscription(t, db, userID, models.PlanFree, models.SubscriptionStatusCanceled)
		testutil.CreateTestTransactions(t, db, userID, 20)

		_, err := svc.CreateTransaction(userID, plainInput(models.TransactionTypeIncome))
		testutil.AssertAppError(t, err, "PLAN_LIMIT_REACHED")
	})

	t.Run("pro_user_unlimited", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		testutil.CreateTestSubscription(t, db, userID, models.PlanPro, models.SubscriptionStatusActive)
		testutil.CreateTestTransactions(t, db, userID, 25)

		_, err := svc.CreateTransaction(userID, plainInput(models.TransactionTypeIncome))
		testutil.AssertNoError(t, err)
	})

	t.Run("deleted_transactions_free_capacity", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		testutil.CreateTestTransactions(t, db, userID, 19)
		last := testutil.CreateTestTransaction(t, db, userID, models.TransactionTypeIncome, decimal.NewFromInt(10), time.Now())

		testutil.AssertNoError(t, svc.DeleteTransaction(userID, last.ID))
		_, err := svc.CreateTransaction(userID, plainInput(models.TransactionTypeIncome))
		testutil.AssertNoError(t, err)
	})

	t.Run("bulk_counts_whole_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		testutil.CreateTestTransactions(t, db, userID, 18)

		batch := []TransactionInput{
			plainInput(models.TransactionTypeIncome),
			plainInput(models.TransactionTypeIncome),
			plainInput(models.TransactionTypeExpense),
		}
		_, err := svc.BulkCreateTransactions(userID, batch)
		testutil.AssertAppError(t, err, "PLAN_LIMIT_REACHED")

		var count int64
		db.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count)
		if count != 18 {
			t.Errorf("expected 18 transactions after rejected bulk, got %d", count)
		}

		_, err = svc.BulkCreateTransactions(userID, batch[:2])
		testutil.AssertNoError(t, err)
	})

	t.Run("configured_ceiling", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, 5)
		userID := testutil.NewUserID()
		testutil.CreateTestTransactions(t, db, userID, 5)

		_, err := svc.CreateTransaction(userID, plainInput(models.TransactionTypeIncome))
		testutil.AssertAppError(t, err, "PLAN_LIMIT_REACHED")
	})
}

func TestCheckPlanLimit(t *testing.T) {
	tests := []struct {
		name    string
		plan    models.Plan
		current int64
		adding  int
		wantErr bool
	}{
		{"free_below_ceiling", models.PlanFree, 19, 1, false},
		{"free_at_ceiling", models.PlanFree, 20, 1, true},
		{"free_bulk_fits_exactly", models.PlanFree, 15, 5, false},
		{"free_bulk_overflows", models.PlanFree, 15, 6, true},
		{"pro_ignores_ceiling", models.PlanPro, 500, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPlanLimit(tt.plan, tt.current, tt.adding, 20)
			if tt.wantErr {
				testutil.AssertAppError(t, err, "PLAN_LIMIT_REACHED")
			} else {
				testutil.AssertNoError(t, err)
			}
		})
	}
}

func TestBulkCreateTransactions(t *testing.T) {
	t.Run("all_or_nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		batch := []TransactionInput{
			saleInput(product.ID, 2),
			saleInput("018f3b1e-0000-7000-8000-000000000000", 1),
		}
		_, err := svc.BulkCreateTransactions(userID, batch)
		testutil.AssertAppError(t, err, "PRODUCT_NOT_FOUND")

		testutil.AssertStock(t, db, product.ID, 10)
		testutil.AssertLedgerBalanced(t, db, product.ID)
		var count int64
		db.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count)
		if count != 0 {
			t.Errorf("expected no transactions, got %d", count)
		}
	})

	t.Run("applies_every_sale", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		created, err := svc.BulkCreateTransactions(userID, []TransactionInput{
			saleInput(product.ID, 2),
			saleInput(product.ID, 3),
			plainInput(models.TransactionTypeExpense),
		})
		testutil.AssertNoError(t, err)
		if len(created) != 3 {
			t.Fatalf("expected 3 created, got %d", len(created))
		}
		testutil.AssertStock(t, db, product.ID, 5)
		testutil.AssertLedgerBalanced(t, db, product.ID)
	})

	t.Run("empty_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)

		_, err := svc.BulkCreateTransactions(testutil.NewUserID(), nil)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestStockLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
	userID := testutil.NewUserID()
	product := testutil.CreateTestProduct(t, db, userID, 10)

	tx, err := svc.CreateTransaction(userID, saleInput(product.ID, 3))
	testutil.AssertNoError(t, err)
	testutil.AssertStock(t, db, product.ID, 7)

	// revert 3, then take 5
	_, err = svc.UpdateTransaction(userID, tx.ID, TransactionPatch{Quantity: testutil.Ptr(5)})
	testutil.AssertNoError(t, err)
	testutil.AssertStock(t, db, product.ID, 5)

	testutil.AssertNoError(t, svc.DeleteTransaction(userID, tx.ID))
	testutil.AssertStock(t, db, product.ID, 10)
	testutil.AssertLedgerBalanced(t, db, product.ID)

	var movements []models.StockMovement
	testutil.AssertNoError(t, db.Where("product_id = ?", product.ID).Order("id").Find(&movements).Error)
	want := []int{-3, 3, -5, 5}
	if len(movements) != len(want) {
		t.Fatalf("expected %d movements, got %d", len(want), len(movements))
	}
	for i, m := range movements {
		if m.Delta != want[i] {
			t.Errorf("movement %d delta = %d, want %d", i, m.Delta, want[i])
		}
	}
}

func TestUpdateTransaction(t *testing.T) {
	t.Run("quantity_and_product_changes", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		a := testutil.CreateTestProduct(t, db, userID, 10)
		b := testutil.CreateTestProduct(t, db, userID, 5)

		tx, err := svc.CreateTransaction(userID, saleInput(a.ID, 3))
		testutil.AssertNoError(t, err)
		testutil.AssertStock(t, db, a.ID, 7)

		_, err = svc.UpdateTransaction(userID, tx.ID, TransactionPatch{Quantity: testutil.Ptr(2)})
		testutil.AssertNoError(t, err)
		testutil.AssertStock(t, db, a.ID, 8)

		bID := &b.ID
		updated, err := svc.UpdateTransaction(userID, tx.ID, TransactionPatch{ProductID: &bID})
		testutil.AssertNoError(t, err)
		if updated.Quantity == nil || *updated.Quantity != 2 {
			t.Errorf("expected quantity 2 to carry over, got %v", updated.Quantity)
		}
		testutil.AssertStock(t, db, a.ID, 10)
		testutil.AssertStock(t, db, b.ID, 3)

		testutil.AssertNoError(t, svc.DeleteTransaction(userID, tx.ID))
		testutil.AssertStock(t, db, b.ID, 5)

		testutil.AssertLedgerBalanced(t, db, a.ID)
		testutil.AssertLedgerBalanced(t, db, b.ID)
	})

	t.Run("clearing_product_restores_stock", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		tx, err := svc.CreateTransaction(userID, saleInput(product.ID, 4))
		testutil.AssertNoError(t, err)

		var cleared *string
		updated, err := svc.UpdateTransaction(userID, tx.ID, TransactionPatch{ProductID: &cleared})
		testutil.AssertNoError(t, err)
		if updated.ProductID != nil || updated.Quantity != nil {
			t.Errorf("expected product and quantity cleared, got %v %v", updated.ProductID, updated.Quantity)
		}
		testutil.AssertStock(t, db, product.ID, 10)
	})

	t.Run("switching_to_expense_with_product_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		tx, err := svc.CreateTransaction(userID, saleInput(product.ID, 2))
		testutil.AssertNoError(t, err)

		expense := models.TransactionTypeExpense
		_, err = svc.UpdateTransaction(userID, tx.ID, TransactionPatch{Type: &expense})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
		testutil.AssertStock(t, db, product.ID, 8)
	})

	t.Run("non_stock_fields_keep_stock", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		tx, err := svc.CreateTransaction(userID, saleInput(product.ID, 2))
		testutil.AssertNoError(t, err)

		amount := decimal.NewFromInt(999)
		updated, err := svc.UpdateTransaction(userID, tx.ID, TransactionPatch{
			Amount:      &amount,
			Description: testutil.Ptr("Venda atacado"),
		})
		testutil.AssertNoError(t, err)
		if !updated.Amount.Equal(amount) || updated.Description != "Venda atacado" {
			t.Errorf("unexpected updated fields: %s %q", updated.Amount, updated.Description)
		}
		testutil.AssertStock(t, db, product.ID, 8)
		testutil.AssertLedgerBalanced(t, db, product.ID)
	})

	t.Run("failed_write_rolls_back_revert", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		tx, err := svc.CreateTransaction(userID, saleInput(product.ID, 3))
		testutil.AssertNoError(t, err)

		err = db.Callback().Update().Before("gorm:update").Register("test:fail_transactions", func(d *gorm.DB) {
			if d.Statement.Table == "transactions" {
				_ = d.AddError(errors.New("simulated write failure"))
			}
		})
		testutil.AssertNoError(t, err)

		_, err = svc.UpdateTransaction(userID, tx.ID, TransactionPatch{Quantity: testutil.Ptr(1)})
		testutil.AssertAppError(t, err, "INTERNAL_ERROR")

		testutil.AssertStock(t, db, product.ID, 7)
		testutil.AssertLedgerBalanced(t, db, product.ID)
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)

		_, err := svc.UpdateTransaction(testutil.NewUserID(), "018f3b1e-0000-7000-8000-000000000000", TransactionPatch{})
		testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
	})

	t.Run("wrong_user", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		owner := testutil.NewUserID()
		tx := testutil.CreateTestTransaction(t, db, owner, models.TransactionTypeIncome, decimal.NewFromInt(10), time.Now())

		_, err := svc.UpdateTransaction(testutil.NewUserID(), tx.ID, TransactionPatch{Description: testutil.Ptr("x")})
		testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
	})
}

func TestDeleteTransaction(t *testing.T) {
	t.Run("restores_stock", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		product := testutil.CreateTestProduct(t, db, userID, 10)

		tx, err := svc.CreateTransaction(userID, saleInput(product.ID, 6))
		testutil.AssertNoError(t, err)
		testutil.AssertNoError(t, svc.DeleteTransaction(userID, tx.ID))

		testutil.AssertStock(t, db, product.ID, 10)
		testutil.AssertLedgerBalanced(t, db, product.ID)

		_, err = svc.GetTransactionByID(userID, tx.ID)
		testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)

		err := svc.DeleteTransaction(testutil.NewUserID(), "018f3b1e-0000-7000-8000-000000000000")
		testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
	})
}

func TestGetUserTransactions(t *testing.T) {
	t.Run("filters_and_paginates", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewTransactionService(db, DefaultFreePlanTransactionLimit)
		userID := testutil.NewUserID()
		jan := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		feb := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
		testutil.CreateTestTransaction(t, db, userID, models.TransactionTypeIncome, decimal.NewFromInt(100), jan)
		testutil.CreateTestTransaction(t, db, userID, models.TransactionTypeExpense, decimal.NewFromInt(40), jan)
		testutil.CreateTestTransaction(t, db, userID, models.TransactionTypeIncome, decimal.NewFromInt(70), feb)
		testutil.CreateTestTransaction(t, db, testutil.NewUserID(), models.TransactionTypeIncome, decimal.NewFromInt(1), feb)

		income := models.TransactionTypeIncome
		result, err := svc.GetUserTransactions(userID, pagination.PageRequest{Page: 1, PageSize: 1}, TransactionFilter{Type: &income})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 2 {
			t.Errorf("expected 2 income transactions, got %d", result.TotalItems)
		}
		if len(result.Data) != 1 || !result.Data[0].Date.Equal(feb) {
			t.Errorf("expected newest first on page 1, got %+v", result.Data)
		}

		to := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
		result, err = svc.GetUserTransactions(userID, pagination.PageRequest{}, TransactionFilter{ToDate: &to})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 2 {
			t.Errorf("expected 2 january transactions, got %d", result.TotalItems)
		}
	})
}
