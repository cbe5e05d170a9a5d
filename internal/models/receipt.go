package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is a user-uploaded proof of purchase. The image is stored as a
// blob; store name, total, date and line items are filled in by analysis.
type Receipt struct {
	Base
	UserID           string           `gorm:"type:uuid;not null;index" json:"user_id"`
	StoreName        *string          `gorm:"size:200" json:"store_name,omitempty"`
	TotalAmount      *decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_amount,omitempty"`
	PurchaseDate     *time.Time       `json:"purchase_date,omitempty"`
	ImageData        []byte           `gorm:"type:bytea" json:"-"`
	ImageContentType string           `gorm:"size:100" json:"image_content_type,omitempty"`
	IsAnalyzed       bool             `gorm:"default:false" json:"is_analyzed"`

	// Relationships
	User              User               `gorm:"foreignKey:UserID" json:"-"`
	LineItems         []LineItem         `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"line_items,omitempty"`
	StockTransactions []StockTransaction `gorm:"foreignKey:ReceiptID;constraint:OnDelete:SET NULL" json:"-"`
}

// LineItem is one product or discount row extracted from a receipt.
// Rows are replaced wholesale every time the receipt is (re-)analyzed.
type LineItem struct {
	Base
	ReceiptID  string          `gorm:"type:uuid;not null;index" json:"receipt_id"`
	Name       string          `gorm:"not null;size:500" json:"name"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,3)" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,2)" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_price"`
	CategoryID *string         `gorm:"type:uuid" json:"category_id,omitempty"`
	IsDiscount bool            `gorm:"default:false" json:"is_discount"`

	// Relationships
	Receipt  Receipt   `gorm:"foreignKey:ReceiptID" json:"-"`
	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
}
