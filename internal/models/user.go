package models

// User represents an account in the household
type User struct {
	Base
	Username     string `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Email        string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	IsAdmin      bool   `gorm:"default:false" json:"is_admin"`

	// Relationships
	Receipts   []Receipt   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"receipts,omitempty"`
	StockItems []StockItem `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"stock_items,omitempty"`
}
