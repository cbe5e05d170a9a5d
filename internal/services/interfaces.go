package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"despensa/internal/models"
	"despensa/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(username, email, password string, isAdmin bool) (*models.User, error)
	GetUsers() ([]models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateUser(id string, username, email, password *string, isAdmin *bool) (*models.User, error)
	DeleteUser(id string) error
	AttemptLogin(username, password string) (*models.User, error)
}

// CategoryServicer defines the contract for the fixed category set.
type CategoryServicer interface {
	GetCategories() ([]models.Category, error)
	GetCategoryByID(id string) (*models.Category, error)
	CategoryNames() ([]string, error)
}

// SetupStatus reports whether first-run setup has completed.
type SetupStatus struct {
	IsSetupComplete bool `json:"is_setup_complete"`
	HasOpenAIKey    bool `json:"has_openai_key"`
}

// SettingsServicer defines the contract for first-run setup and the
// stored analysis provider key. It doubles as the key provider for the
// analysis client.
type SettingsServicer interface {
	CheckSetup() (*SetupStatus, error)
	CreateAdmin(username, email, password string) (*models.User, error)
	SetOpenAIKey(rawKey string) error
	OpenAIKey(ctx context.Context) (string, error)
}

// AnalyzeResult is the outcome of a successful receipt analysis:
// the reloaded receipt plus any per-line validation warnings.
type AnalyzeResult struct {
	Receipt  *models.Receipt
	Warnings []string
}

// ReceiptServicer defines the contract for the receipt pipeline.
type ReceiptServicer interface {
	UploadReceipt(userID string, data []byte, contentType string) (*models.Receipt, error)
	AnalyzeReceipt(ctx context.Context, userID, receiptID string) (*AnalyzeResult, error)
	GetUserReceipts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Receipt], error)
	GetReceiptByID(userID, receiptID string) (*models.Receipt, error)
	GetReceiptImage(userID, receiptID string) ([]byte, string, error)
	Close()
}

// StockItemView is a stock item with its derived low-stock flag.
type StockItemView struct {
	models.StockItem
	IsLowStock bool `json:"is_low_stock"`
}

// StockItemUpdate holds the optional fields of a stock item update.
// Nil pointers leave the current value unchanged.
type StockItemUpdate struct {
	ProductName *string
	CategoryID  *string
	Quantity    *decimal.Decimal
	Unit        *string
	MinQuantity *decimal.Decimal
	MaxQuantity *decimal.Decimal
	Notes       *string
}

// StockServicer defines the contract for the stock ledger.
type StockServicer interface {
	GetStockItems(userID string) ([]StockItemView, error)
	GetStockItemByID(userID, itemID string) (*StockItemView, error)
	CreateStockItem(userID, productName string, categoryID *string, quantity decimal.Decimal, unit string, minQuantity, maxQuantity *decimal.Decimal, notes *string) (*StockItemView, error)
	UpdateStockItem(userID, itemID string, update StockItemUpdate) (*StockItemView, error)
	DeleteStockItem(userID, itemID string) error
	AdjustStock(userID, itemID string, quantity decimal.Decimal, notes *string) (*StockItemView, error)
	ConsumeStock(userID, itemID string, quantity decimal.Decimal, notes *string) (*StockItemView, error)
	ExpireStock(userID, itemID string, quantity decimal.Decimal, notes *string) (*StockItemView, error)
	GetLowStockAlerts(userID string) ([]StockItemView, error)
	GetStockTransactions(userID, itemID string, page pagination.PageRequest, txType *models.StockTransactionType) (*pagination.PageResponse[models.StockTransaction], error)
	RecordPurchases(userID, receiptID string, items []models.LineItem)
}

// StoreStat aggregates receipts for one store.
type StoreStat struct {
	StoreName        string          `json:"store_name"`
	ReceiptCount     int             `json:"receipt_count"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	AverageAmount    decimal.Decimal `json:"average_amount"`
	LastPurchaseDate time.Time       `json:"last_purchase_date"`
}

// StoreAnalytics is the full by-store report.
type StoreAnalytics struct {
	Stores        []StoreStat     `json:"stores"`
	TotalStores   int             `json:"total_stores"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	TotalReceipts int             `json:"total_receipts"`
}

// MonthlyExpense is one month's spending. Months with no receipts are
// present with zero totals so charts always get twelve entries.
type MonthlyExpense struct {
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ReceiptCount int             `json:"receipt_count"`
}

// CategoryExpense aggregates line items by category for one month.
type CategoryExpense struct {
	CategoryName  string          `json:"category_name"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ProductCount  int             `json:"product_count"`
	CategoryColor string          `json:"category_color"`
}

// AnalyticsServicer defines the read-side aggregation queries.
type AnalyticsServicer interface {
	GetStoreAnalytics(userID string) (*StoreAnalytics, error)
	GetMonthlyExpenses(userID string, year int) ([]MonthlyExpense, error)
	GetCategoryExpenses(userID string, year, month int) ([]CategoryExpense, error)
}

// ExportServicer defines the contract for spreadsheet exports.
type ExportServicer interface {
	ExportReceipts(userID string, year *int) ([]byte, string, error)
}
