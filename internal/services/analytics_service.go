package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "despensa/internal/errors"
	"despensa/internal/models"
)

// analyticsService computes the read-side spending aggregations.
// Receipts that never completed analysis are excluded everywhere.
type analyticsService struct {
	db *gorm.DB
}

// NewAnalyticsService creates a new AnalyticsServicer.
func NewAnalyticsService(db *gorm.DB) AnalyticsServicer {
	return &analyticsService{db: db}
}

// GetStoreAnalytics groups analyzed receipts by store name.
func (s *analyticsService) GetStoreAnalytics(userID string) (*StoreAnalytics, error) {
	var receipts []models.Receipt
	err := s.db.
		Where("user_id = ? AND is_analyzed = ? AND store_name IS NOT NULL AND total_amount IS NOT NULL", userID, true).
		Find(&receipts).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	type storeAccum struct {
		count int
		total decimal.Decimal
		last  models.Receipt
	}
	byStore := make(map[string]*storeAccum)
	totalSpent := decimal.Zero

	for i := range receipts {
		r := &receipts[i]
		acc, ok := byStore[*r.StoreName]
		if !ok {
			acc = &storeAccum{last: *r}
			byStore[*r.StoreName] = acc
		}
		acc.count++
		acc.total = acc.total.Add(*r.TotalAmount)
		if purchaseOrCreated(r).After(purchaseOrCreated(&acc.last)) {
			acc.last = *r
		}
		totalSpent = totalSpent.Add(*r.TotalAmount)
	}

	stores := make([]StoreStat, 0, len(byStore))
	for name, acc := range byStore {
		stores = append(stores, StoreStat{
			StoreName:        name,
			ReceiptCount:     acc.count,
			TotalSpent:       acc.total,
			AverageAmount:    acc.total.Div(decimal.NewFromInt(int64(acc.count))).Round(2),
			LastPurchaseDate: purchaseOrCreated(&acc.last),
		})
	}
	sort.Slice(stores, func(i, j int) bool {
		return stores[i].TotalSpent.GreaterThan(stores[j].TotalSpent)
	})

	return &StoreAnalytics{
		Stores:        stores,
		TotalStores:   len(stores),
		TotalSpent:    totalSpent,
		TotalReceipts: len(receipts),
	}, nil
}

// purchaseOrCreated prefers the receipt's purchase date, falling back to
// the upload time when the model did not report one.
func purchaseOrCreated(r *models.Receipt) time.Time {
	if r.PurchaseDate != nil {
		return *r.PurchaseDate
	}
	return r.CreatedAt
}

// GetMonthlyExpenses returns twelve entries for the given year, in
// month order, including zero months.
func (s *analyticsService) GetMonthlyExpenses(userID string, year int) ([]MonthlyExpense, error) {
	var receipts []models.Receipt
	err := s.db.
		Where("user_id = ? AND is_analyzed = ? AND total_amount IS NOT NULL AND purchase_date IS NOT NULL", userID, true).
		Find(&receipts).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	months := make([]MonthlyExpense, 12)
	for m := 1; m <= 12; m++ {
		months[m-1] = MonthlyExpense{Month: m, Year: year, TotalAmount: decimal.Zero}
	}
	for i := range receipts {
		r := &receipts[i]
		if r.PurchaseDate.Year() != year {
			continue
		}
		m := int(r.PurchaseDate.Month())
		months[m-1].TotalAmount = months[m-1].TotalAmount.Add(*r.TotalAmount)
		months[m-1].ReceiptCount++
	}
	return months, nil
}

// GetCategoryExpenses groups one month's line items by category.
// Uncategorized items are reported under their own label.
func (s *analyticsService) GetCategoryExpenses(userID string, year, month int) ([]CategoryExpense, error) {
	var items []models.LineItem
	err := s.db.
		Preload("Category").
		Preload("Receipt").
		Joins("JOIN receipts ON receipts.id = line_items.receipt_id").
		Where("receipts.user_id = ? AND receipts.is_analyzed = ? AND receipts.purchase_date IS NOT NULL", userID, true).
		Find(&items).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	type catAccum struct {
		total decimal.Decimal
		count int
		color string
	}
	byCategory := make(map[string]*catAccum)

	for i := range items {
		it := &items[i]
		if it.Receipt.PurchaseDate == nil ||
			it.Receipt.PurchaseDate.Year() != year ||
			int(it.Receipt.PurchaseDate.Month()) != month {
			continue
		}

		name := models.UncategorizedLabel
		color := models.UncategorizedColor
		if it.Category != nil {
			name = it.Category.Name
			color = it.Category.Color
		}
		acc, ok := byCategory[name]
		if !ok {
			acc = &catAccum{total: decimal.Zero, color: color}
			byCategory[name] = acc
		}
		acc.total = acc.total.Add(it.TotalPrice)
		acc.count++
	}

	expenses := make([]CategoryExpense, 0, len(byCategory))
	for name, acc := range byCategory {
		expenses = append(expenses, CategoryExpense{
			CategoryName:  name,
			TotalAmount:   acc.total,
			ProductCount:  acc.count,
			CategoryColor: acc.color,
		})
	}
	sort.Slice(expenses, func(i, j int) bool {
		return expenses[i].TotalAmount.GreaterThan(expenses[j].TotalAmount)
	})
	return expenses, nil
}
