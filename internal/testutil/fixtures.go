package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"despensa/internal/models"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique username.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	n := nextID()
	return CreateTestUserWithName(t, db, fmt.Sprintf("user%d", n))
}

// CreateTestUserWithName creates a user with the given username.
func CreateTestUserWithName(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        username + "@test.com",
		PasswordHash: string(hash),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAdmin creates an admin user.
func CreateTestAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := CreateTestUser(t, db)
	if err := db.Model(user).Update("is_admin", true).Error; err != nil {
		t.Fatalf("failed to promote test admin: %v", err)
	}
	user.IsAdmin = true
	return user
}

// CreateTestCategory creates a category with a unique name.
func CreateTestCategory(t *testing.T, db *gorm.DB) *models.Category {
	t.Helper()
	return CreateTestCategoryWithName(t, db, fmt.Sprintf("Categoría %d", nextID()))
}

// CreateTestCategoryWithName creates a category with the given name.
func CreateTestCategoryWithName(t *testing.T, db *gorm.DB, name string) *models.Category {
	t.Helper()

	category := &models.Category{
		Name:        name,
		Description: "Categoría de prueba",
		Color:       "#3B82F6",
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestReceipt creates an unanalyzed receipt with image bytes.
func CreateTestReceipt(t *testing.T, db *gorm.DB, userID string) *models.Receipt {
	t.Helper()

	receipt := &models.Receipt{
		UserID:           userID,
		ImageData:        []byte("fake-image-bytes"),
		ImageContentType: "image/jpeg",
	}
	if err := db.Create(receipt).Error; err != nil {
		t.Fatalf("failed to create test receipt: %v", err)
	}
	return receipt
}

// CreateTestAnalyzedReceipt creates an analyzed receipt with one line item.
func CreateTestAnalyzedReceipt(t *testing.T, db *gorm.DB, userID, storeName string, total decimal.Decimal, purchaseDate time.Time) *models.Receipt {
	t.Helper()

	receipt := &models.Receipt{
		UserID:           userID,
		StoreName:        &storeName,
		TotalAmount:      &total,
		PurchaseDate:     &purchaseDate,
		ImageData:        []byte("fake-image-bytes"),
		ImageContentType: "image/jpeg",
		IsAnalyzed:       true,
	}
	if err := db.Create(receipt).Error; err != nil {
		t.Fatalf("failed to create test receipt: %v", err)
	}

	item := &models.LineItem{
		ReceiptID:  receipt.ID,
		Name:       fmt.Sprintf("Producto %d", nextID()),
		Quantity:   decimal.NewFromInt(1),
		UnitPrice:  total,
		TotalPrice: total,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test line item: %v", err)
	}
	receipt.LineItems = []models.LineItem{*item}
	return receipt
}

// CreateTestStockItem creates a stock item with the given quantity and
// the matching initial Adjustment ledger entry.
func CreateTestStockItem(t *testing.T, db *gorm.DB, userID, productName string, quantity decimal.Decimal) *models.StockItem {
	t.Helper()

	item := &models.StockItem{
		UserID:          userID,
		ProductName:     productName,
		NameKey:         strings.ToLower(productName),
		CurrentQuantity: quantity,
		Unit:            models.DefaultStockUnit,
		LastUpdated:     time.Now().UTC(),
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test stock item: %v", err)
	}

	note := "Stock inicial"
	entry := &models.StockTransaction{
		StockItemID: item.ID,
		Type:        models.StockTransactionAdjustment,
		Quantity:    quantity,
		Date:        time.Now().UTC(),
		Notes:       &note,
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("failed to create initial stock transaction: %v", err)
	}
	return item
}

// LedgerSum returns the sum of all ledger entries for a stock item.
func LedgerSum(t *testing.T, db *gorm.DB, stockItemID string) decimal.Decimal {
	t.Helper()

	var entries []models.StockTransaction
	if err := db.Where("stock_item_id = ?", stockItemID).Find(&entries).Error; err != nil {
		t.Fatalf("failed to load stock transactions: %v", err)
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Quantity)
	}
	return sum
}
