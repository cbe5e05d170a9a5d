package models

// Category is fixed reference data seeded by migration.
// Line items and stock items reference it optionally.
type Category struct {
	Base
	Name        string `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string `gorm:"size:500" json:"description"`
	Color       string `gorm:"size:7;default:#3B82F6" json:"color"`

	// Relationships
	LineItems []LineItem `gorm:"foreignKey:CategoryID" json:"line_items,omitempty"`
}

// FallbackCategoryName is assigned when the analysis reports no category label.
const FallbackCategoryName = "Otros"

// UncategorizedLabel is used in analytics for line items without a category.
const UncategorizedLabel = "Sin categoría"

// UncategorizedColor is the display color for uncategorized spending.
const UncategorizedColor = "#6B7280"
