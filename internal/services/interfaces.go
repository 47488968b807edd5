package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"meikon/internal/models"
	"meikon/internal/pagination"
)

// Sale links an income transaction to the product it sold.
type Sale struct {
	ProductID string
	Quantity  int
}

// TransactionInput is a validated transaction to be written. Sale is nil for
// plain transactions.
type TransactionInput struct {
	Type        models.TransactionType
	Amount      decimal.Decimal
	Description string
	Category    string
	Date        time.Time
	IsPaid      bool
	Sale        *Sale
}

// TransactionPatch holds the fields of a partial update. A nil field keeps
// the stored value. ProductID distinguishes "unchanged" (nil) from "clear"
// (pointer to nil).
type TransactionPatch struct {
	Type        *models.TransactionType
	Amount      *decimal.Decimal
	Description *string
	Category    *string
	Date        *time.Time
	IsPaid      *bool
	ProductID   **string
	Quantity    *int
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate  *time.Time
	ToDate    *time.Time
	Type      *models.TransactionType
	Category  *string
	ProductID *string
}

// TransactionServicer is the transaction write path, including the stock
// adjustments and the plan limit gate.
type TransactionServicer interface {
	CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error)
	BulkCreateTransactions(userID string, in []TransactionInput) ([]models.Transaction, error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	UpdateTransaction(userID, transactionID string, patch TransactionPatch) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
}

// ProductInput carries the writable product fields.
type ProductInput struct {
	Name        string
	SKU         string
	Description string
	Price       decimal.Decimal
	CostPrice   decimal.Decimal
	Stock       int
	MinStock    int
	Unit        string
	CategoryID  *string
}

// ProductFilter holds optional filter parameters for listing products.
type ProductFilter struct {
	Search   string
	LowStock bool
}

// ProductServicer defines the contract for inventory management.
type ProductServicer interface {
	CreateProduct(userID string, in ProductInput) (*models.Product, error)
	GetProductByID(userID, productID string) (*models.Product, error)
	GetUserProducts(userID string, page pagination.PageRequest, filter ProductFilter) (*pagination.PageResponse[models.Product], error)
	UpdateProduct(userID, productID string, in ProductInput) (*models.Product, error)
	DeleteProduct(userID, productID string) error
	GetStockMovements(userID, productID string, page pagination.PageRequest) (*pagination.PageResponse[models.StockMovement], error)
}

// StockDiscrepancy reports a product whose stock no longer matches its ledger.
type StockDiscrepancy struct {
	ProductID    string `json:"product_id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Stock        int    `json:"stock"`
	LedgerStock  int    `json:"ledger_stock"`
	InitialStock int    `json:"initial_stock"`
}

// StockAuditor verifies products against the stock-movement ledger.
type StockAuditor interface {
	AuditStock(userID string) ([]StockDiscrepancy, error)
}

// MercadoPagoNotification is a webhook notification reduced to its topic and resource id.
type MercadoPagoNotification struct {
	Topic      string
	ResourceID string
}

// SubscriptionServicer reconciles provider notifications into the canonical
// subscription record and exposes it to the user.
type SubscriptionServicer interface {
	GetSubscription(userID string) (*models.Subscription, error)
	ListSubscriptions(page pagination.PageRequest) (*pagination.PageResponse[models.Subscription], error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
	HandleMercadoPagoNotification(ctx context.Context, n MercadoPagoNotification) error
	SyncMercadoPagoPreapproval(ctx context.Context, preapprovalID string) (*models.Subscription, error)
}

// CheckoutServicer starts paid subscriptions with a payment provider.
type CheckoutServicer interface {
	StartStripeCheckout(ctx context.Context, userID, email string) (string, error)
	StartMercadoPagoCheckout(ctx context.Context, userID, email string) (string, error)
}

// GoalProgress is a monthly goal with the income booked against it.
type GoalProgress struct {
	Goal       models.Goal     `json:"goal"`
	Achieved   decimal.Decimal `json:"achieved"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
}

// GoalServicer defines the contract for monthly revenue goals.
type GoalServicer interface {
	UpsertGoal(userID string, month, year int, target decimal.Decimal) (*models.Goal, error)
	GetGoalProgress(userID string, month, year int) (*GoalProgress, error)
}

// RevenueCapStatus classifies yearly revenue against the MEI ceiling.
type RevenueCapStatus string

const (
	RevenueCapOK       RevenueCapStatus = "ok"
	RevenueCapWarning  RevenueCapStatus = "warning"
	RevenueCapExceeded RevenueCapStatus = "exceeded"
)

// MonthlyRevenue is the income booked in one month.
type MonthlyRevenue struct {
	Month  int             `json:"month"`
	Income decimal.Decimal `json:"income"`
}

// RevenueCapSummary is a user's yearly income measured against the MEI ceiling.
type RevenueCapSummary struct {
	Year             int              `json:"year"`
	Limit            decimal.Decimal  `json:"limit"`
	Total            decimal.Decimal  `json:"total"`
	Remaining        decimal.Decimal  `json:"remaining"`
	UsedPercentage   decimal.Decimal  `json:"used_percentage"`
	ProjectedAnnual  decimal.Decimal  `json:"projected_annual"`
	MonthlyIdeal     decimal.Decimal  `json:"monthly_ideal"`
	Status           RevenueCapStatus `json:"status"`
	Months           []MonthlyRevenue `json:"months"`
	TotalDisplay     string           `json:"total_display"`
	RemainingDisplay string           `json:"remaining_display"`
	LimitDisplay     string           `json:"limit_display"`
}

// RevenueServicer defines the contract for the MEI revenue-cap summary.
type RevenueServicer interface {
	GetRevenueCap(userID string, year int) (*RevenueCapSummary, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}

// AuditFilter narrows an audit listing. Empty fields match everything.
type AuditFilter struct {
	UserID       string
	ResourceType string
	ResourceID   string
}

// AuditReader reads the audit trail back for operators.
type AuditReader interface {
	ListAuditLogs(filter AuditFilter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error)
}
