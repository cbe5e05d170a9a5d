package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockTransactionType is the kind of a stock ledger entry.
// The set is closed; everywhere transactions are interpreted the four
// kinds must be handled exhaustively.
type StockTransactionType string

const (
	StockTransactionPurchase    StockTransactionType = "purchase"
	StockTransactionConsumption StockTransactionType = "consumption"
	StockTransactionAdjustment  StockTransactionType = "adjustment"
	StockTransactionExpiration  StockTransactionType = "expiration"
)

// DefaultStockUnit is assigned to stock items created from receipt analysis.
const DefaultStockUnit = "unidad"

// StockItem is a per-user running quantity for one product. At most one
// item exists per (user, product name), compared case-insensitively.
type StockItem struct {
	Base
	UserID          string           `gorm:"type:uuid;not null;index:idx_stock_user_name,unique" json:"user_id"`
	ProductName     string           `gorm:"not null;size:500" json:"product_name"`
	NameKey         string           `gorm:"not null;size:500;index:idx_stock_user_name,unique" json:"-"`
	CategoryID      *string          `gorm:"type:uuid" json:"category_id,omitempty"`
	CurrentQuantity decimal.Decimal  `gorm:"type:decimal(18,3)" json:"current_quantity"`
	Unit            string           `gorm:"not null;size:50;default:unidad" json:"unit"`
	MinQuantity     *decimal.Decimal `gorm:"type:decimal(18,3)" json:"min_quantity,omitempty"`
	MaxQuantity     *decimal.Decimal `gorm:"type:decimal(18,3)" json:"max_quantity,omitempty"`
	LastUpdated     time.Time        `json:"last_updated"`
	Notes           *string          `json:"notes,omitempty"`

	// Relationships
	User         User               `gorm:"foreignKey:UserID" json:"-"`
	Category     *Category          `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Transactions []StockTransaction `gorm:"foreignKey:StockItemID;constraint:OnDelete:CASCADE" json:"transactions,omitempty"`
}

// IsLowStock reports whether the item is at or below its minimum.
// Never stored; recomputed on every read.
func (s *StockItem) IsLowStock() bool {
	return s.MinQuantity != nil && s.CurrentQuantity.LessThanOrEqual(*s.MinQuantity)
}

// StockTransaction is one immutable ledger entry. Quantity is signed:
// positive increases stock, negative decreases it. The sum of all
// entries for a stock item equals its current quantity.
type StockTransaction struct {
	Base
	StockItemID string               `gorm:"type:uuid;not null;index" json:"stock_item_id"`
	ReceiptID   *string              `gorm:"type:uuid" json:"receipt_id,omitempty"`
	Type        StockTransactionType `gorm:"not null;size:20" json:"type"`
	Quantity    decimal.Decimal      `gorm:"type:decimal(18,3)" json:"quantity"`
	Date        time.Time            `gorm:"not null;index" json:"date"`
	Notes       *string              `json:"notes,omitempty"`

	// Relationships
	StockItem StockItem `gorm:"foreignKey:StockItemID" json:"-"`
	Receipt   *Receipt  `gorm:"foreignKey:ReceiptID" json:"-"`
}
