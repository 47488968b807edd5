package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
	"meikon/internal/pagination"
)

// productService handles inventory CRUD. Stock itself only moves through
// the transaction write path.
type productService struct {
	db *gorm.DB
}

// NewProductService creates a new ProductServicer.
func NewProductService(db *gorm.DB) ProductServicer {
	return &productService{db: db}
}

// CreateProduct creates a product. Its opening stock becomes the ledger baseline.
func (s *productService) CreateProduct(userID string, in ProductInput) (*models.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	p := &models.Product{
		UserID:       userID,
		Name:         strings.TrimSpace(in.Name),
		SKU:          strings.TrimSpace(in.SKU),
		Description:  in.Description,
		Price:        in.Price,
		CostPrice:    in.CostPrice,
		Stock:        in.Stock,
		InitialStock: in.Stock,
		MinStock:     in.MinStock,
		Unit:         unitOrDefault(in.Unit),
		CategoryID:   in.CategoryID,
	}
	if err := s.db.Create(p).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return p, nil
}

// GetProductByID retrieves a product owned by userID.
func (s *productService) GetProductByID(userID, productID string) (*models.Product, error) {
	return findProduct(s.db, userID, productID)
}

func findProduct(db *gorm.DB, userID, productID string) (*models.Product, error) {
	var p models.Product
	if err := db.Scopes(models.OwnedBy(userID)).Where("id = ?", productID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProductNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &p, nil
}

// GetUserProducts lists the user's products by name.
func (s *productService) GetUserProducts(userID string, page pagination.PageRequest, filter ProductFilter) (*pagination.PageResponse[models.Product], error) {
	page.Normalize()

	base := s.db.Model(&models.Product{}).Scopes(models.OwnedBy(userID))
	if q := strings.TrimSpace(filter.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		base = base.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	if filter.LowStock {
		base = base.Where("stock <= min_stock")
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var products []models.Product
	if err := base.Scopes(pagination.Paginate(page)).Order("name ASC").Find(&products).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(products, page, totalItems)
	return &result, nil
}

// UpdateProduct replaces the descriptive fields of a product. Stock is left alone.
func (s *productService) UpdateProduct(userID, productID string, in ProductInput) (*models.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	p, err := findProduct(s.db, userID, productID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":        strings.TrimSpace(in.Name),
		"sku":         strings.TrimSpace(in.SKU),
		"description": in.Description,
		"price":       in.Price,
		"cost_price":  in.CostPrice,
		"min_stock":   in.MinStock,
		"unit":        unitOrDefault(in.Unit),
		"category_id": in.CategoryID,
	}
	if err := s.db.Model(p).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return findProduct(s.db, userID, productID)
}

// DeleteProduct detaches the product from its transactions and soft deletes it.
func (s *productService) DeleteProduct(userID, productID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		p, err := findProduct(tx, userID, productID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Transaction{}).
			Scopes(models.OwnedBy(userID)).
			Where("product_id = ?", p.ID).
			Updates(map[string]interface{}{"product_id": nil, "quantity": nil}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(p).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// GetStockMovements lists a product's ledger rows, newest first.
func (s *productService) GetStockMovements(userID, productID string, page pagination.PageRequest) (*pagination.PageResponse[models.StockMovement], error) {
	page.Normalize()

	if _, err := findProduct(s.db, userID, productID); err != nil {
		return nil, err
	}

	base := s.db.Model(&models.StockMovement{}).Where("user_id = ? AND product_id = ?", userID, productID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var movements []models.StockMovement
	if err := base.Scopes(pagination.Paginate(page)).Order("id DESC").Find(&movements).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(movements, page, totalItems)
	return &result, nil
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "name is required")
	}
	if in.Price.IsNegative() || in.CostPrice.IsNegative() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "prices cannot be negative")
	}
	if in.MinStock < 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "min_stock cannot be negative")
	}
	return nil
}

func unitOrDefault(unit string) string {
	if u := strings.TrimSpace(unit); u != "" {
		return u
	}
	return "un"
}

// stockAuditor compares each product against its movement ledger.
type stockAuditor struct {
	db *gorm.DB
}

// NewStockAuditor creates a new StockAuditor.
func NewStockAuditor(db *gorm.DB) StockAuditor {
	return &stockAuditor{db: db}
}

// AuditStock returns every product whose stock differs from
// initial_stock plus the sum of its movements. An empty userID audits all users.
func (a *stockAuditor) AuditStock(userID string) ([]StockDiscrepancy, error) {
	q := a.db.Model(&models.Product{})
	if userID != "" {
		q = q.Scopes(models.OwnedBy(userID))
	}
	var products []models.Product
	if err := q.Order("id").Find(&products).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	type ledgerSum struct {
		ProductID string
		Total     int
	}
	var sums []ledgerSum
	sq := a.db.Model(&models.StockMovement{}).Select("product_id, COALESCE(SUM(delta), 0) AS total").Group("product_id")
	if userID != "" {
		sq = sq.Where("user_id = ?", userID)
	}
	if err := sq.Scan(&sums).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	byProduct := make(map[string]int, len(sums))
	for _, s := range sums {
		byProduct[s.ProductID] = s.Total
	}

	discrepancies := []StockDiscrepancy{}
	for _, p := range products {
		ledger := p.InitialStock + byProduct[p.ID]
		if ledger != p.Stock {
			discrepancies = append(discrepancies, StockDiscrepancy{
				ProductID:    p.ID,
				UserID:       p.UserID,
				Name:         p.Name,
				Stock:        p.Stock,
				LedgerStock:  ledger,
				InitialStock: p.InitialStock,
			})
		}
	}
	return discrepancies, nil
}
