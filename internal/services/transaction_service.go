package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
	"meikon/internal/pagination"
)

// transactionService handles transaction-related business logic.
type transactionService struct {
	db        *gorm.DB
	freeLimit int
}

// NewTransactionService creates a new TransactionServicer. freeLimit is the
// free-plan transaction ceiling.
func NewTransactionService(db *gorm.DB, freeLimit int) TransactionServicer {
	if freeLimit <= 0 {
		freeLimit = DefaultFreePlanTransactionLimit
	}
	return &transactionService{db: db, freeLimit: freeLimit}
}

// CreateTransaction records a transaction and, for sales, takes the units
// out of stock in the same database transaction.
func (s *transactionService) CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error) {
	if err := validateTransactionInput(in); err != nil {
		return nil, err
	}

	var result *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := enforcePlanLimit(tx, userID, 1, s.freeLimit); err != nil {
			return err
		}
		var txErr error
		result, txErr = createTransactionWithDB(tx, userID, in)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BulkCreateTransactions imports a batch all-or-nothing. The plan limit is
// checked against the whole batch.
func (s *transactionService) BulkCreateTransactions(userID string, in []TransactionInput) ([]models.Transaction, error) {
	if len(in) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one transaction is required")
	}
	for _, item := range in {
		if err := validateTransactionInput(item); err != nil {
			return nil, err
		}
	}

	created := make([]models.Transaction, 0, len(in))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := enforcePlanLimit(tx, userID, len(in), s.freeLimit); err != nil {
			return err
		}
		for _, item := range in {
			t, err := createTransactionWithDB(tx, userID, item)
			if err != nil {
				return err
			}
			created = append(created, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func createTransactionWithDB(tx *gorm.DB, userID string, in TransactionInput) (*models.Transaction, error) {
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}

	t := &models.Transaction{
		UserID:      userID,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Date:        date.UTC(),
		IsPaid:      in.IsPaid,
	}
	if in.Sale != nil {
		productID, qty := in.Sale.ProductID, in.Sale.Quantity
		t.ProductID = &productID
		t.Quantity = &qty
	}

	if err := tx.Create(t).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := applySale(tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func validateTransactionInput(in TransactionInput) error {
	if !in.Type.Valid() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "type must be income or expense")
	}
	if !in.Amount.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if strings.TrimSpace(in.Description) == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "description is required")
	}
	if strings.TrimSpace(in.Category) == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "category is required")
	}
	if in.Sale != nil {
		if _, err := NewSale(in.Type, &in.Sale.ProductID, &in.Sale.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	return findTransaction(s.db, userID, transactionID)
}

func findTransaction(db *gorm.DB, userID, transactionID string) (*models.Transaction, error) {
	var t models.Transaction
	if err := db.Scopes(models.OwnedBy(userID)).Where("id = ?", transactionID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &t, nil
}

// GetUserTransactions retrieves a paginated, filtered list of the user's transactions, newest first.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Normalize()

	base := s.db.Model(&models.Transaction{}).Scopes(models.OwnedBy(userID))
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Scopes(pagination.Paginate(page)).
		Order("date DESC").Order("id DESC").
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page, totalItems)
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", f.FromDate.UTC())
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", f.ToDate.UTC())
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.Category != nil {
		q = q.Where("category = ?", *f.Category)
	}
	if f.ProductID != nil {
		q = q.Where("product_id = ?", *f.ProductID)
	}
	return q
}

// UpdateTransaction applies a partial update as revert, write, reapply in a
// single database transaction. The reverted and reapplied products may differ.
func (s *transactionService) UpdateTransaction(userID, transactionID string, patch TransactionPatch) (*models.Transaction, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var result *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := findTransaction(tx, userID, transactionID)
		if err != nil {
			return err
		}

		updated, err := mergePatch(existing, patch)
		if err != nil {
			return err
		}

		if err := revertSale(tx, existing); err != nil {
			return err
		}
		if err := tx.Save(updated).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := applySale(tx, updated); err != nil {
			return err
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validatePatch(p TransactionPatch) error {
	if p.Type != nil && !p.Type.Valid() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "type must be income or expense")
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "description cannot be empty")
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "category cannot be empty")
	}
	return nil
}

// mergePatch returns a copy of existing with the patch applied and the
// effective product fields validated.
func mergePatch(existing *models.Transaction, p TransactionPatch) (*models.Transaction, error) {
	updated := *existing

	if p.Type != nil {
		updated.Type = *p.Type
	}
	if p.Amount != nil {
		updated.Amount = *p.Amount
	}
	if p.Description != nil {
		updated.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		updated.Category = strings.TrimSpace(*p.Category)
	}
	if p.Date != nil {
		updated.Date = p.Date.UTC()
	}
	if p.IsPaid != nil {
		updated.IsPaid = *p.IsPaid
	}

	productID := existing.ProductID
	if p.ProductID != nil {
		productID = *p.ProductID
	}
	quantity := existing.Quantity
	if p.Quantity != nil {
		quantity = p.Quantity
	}
	if productID == nil || *productID == "" {
		if p.Quantity != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity requires a product_id")
		}
		quantity = nil
	}

	sale, err := NewSale(updated.Type, productID, quantity)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		updated.ProductID, updated.Quantity = nil, nil
	} else {
		pid, qty := sale.ProductID, sale.Quantity
		updated.ProductID, updated.Quantity = &pid, &qty
	}
	return &updated, nil
}

// DeleteTransaction puts sold units back into stock and deletes the transaction.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		t, err := findTransaction(tx, userID, transactionID)
		if err != nil {
			return err
		}
		if err := revertSale(tx, t); err != nil {
			return err
		}
		if err := tx.Delete(t).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}
