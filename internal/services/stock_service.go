package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "despensa/internal/errors"
	"despensa/internal/logger"
	"despensa/internal/models"
	"despensa/internal/pagination"
	"despensa/internal/uuid"
)

// stockService maintains the per-user stock ledger. Every quantity
// change goes through one transaction that writes both the stock item
// and its ledger entry, so the sum of ledger entries always equals the
// current quantity. Mutations of the same product are serialized with a
// per-product lock.
type stockService struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
	locks  *keyedMutex
}

// NewStockService creates a new StockServicer.
func NewStockService(db *gorm.DB) StockServicer {
	return &stockService{
		db:     db,
		logger: logger.Get(),
		locks:  newKeyedMutex(),
	}
}

func productLockKey(userID, nameKey string) string {
	return userID + "|" + nameKey
}

func stockView(item *models.StockItem) *StockItemView {
	return &StockItemView{StockItem: *item, IsLowStock: item.IsLowStock()}
}

// GetStockItems lists the user's stock ordered by product name
func (s *stockService) GetStockItems(userID string) ([]StockItemView, error) {
	var items []models.StockItem
	err := s.db.
		Preload("Category").
		Where("user_id = ?", userID).
		Order("product_name asc").
		Find(&items).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	views := make([]StockItemView, 0, len(items))
	for i := range items {
		views = append(views, *stockView(&items[i]))
	}
	return views, nil
}

// GetStockItemByID retrieves one stock item with its recent transactions
func (s *stockService) GetStockItemByID(userID, itemID string) (*StockItemView, error) {
	item, err := s.findItem(s.db, userID, itemID, true)
	if err != nil {
		return nil, err
	}
	return stockView(item), nil
}

// findItem loads a user's stock item, optionally with category and the
// 20 most recent ledger entries.
func (s *stockService) findItem(db *gorm.DB, userID, itemID string, preload bool) (*models.StockItem, error) {
	if !uuid.IsValid(itemID) {
		return nil, apperrors.ErrStockItemNotFound
	}
	query := db.Where("id = ? AND user_id = ?", itemID, userID)
	if preload {
		query = query.
			Preload("Category").
			Preload("Transactions", func(db *gorm.DB) *gorm.DB {
				return db.Order("date desc").Limit(20)
			})
	}
	var item models.StockItem
	if err := query.First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrStockItemNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &item, nil
}

// CreateStockItem creates a stock item directly, with an initial
// Adjustment ledger entry so the sum invariant holds from the start.
func (s *stockService) CreateStockItem(userID, productName string, categoryID *string, quantity decimal.Decimal, unit string, minQuantity, maxQuantity *decimal.Decimal, notes *string) (*StockItemView, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "product name is required")
	}
	if quantity.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity cannot be negative")
	}
	if unit == "" {
		unit = models.DefaultStockUnit
	}

	nameKey := strings.ToLower(productName)
	unlock := s.locks.Lock(productLockKey(userID, nameKey))
	defer unlock()

	var item *models.StockItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		tx.Model(&models.StockItem{}).Where("user_id = ? AND name_key = ?", userID, nameKey).Count(&count)
		if count > 0 {
			return apperrors.ErrDuplicateStockItem
		}

		item = &models.StockItem{
			UserID:          userID,
			ProductName:     productName,
			NameKey:         nameKey,
			CategoryID:      categoryID,
			CurrentQuantity: quantity,
			Unit:            unit,
			MinQuantity:     minQuantity,
			MaxQuantity:     maxQuantity,
			Notes:           notes,
			LastUpdated:     time.Now().UTC(),
		}
		if err := tx.Create(item).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		initial := "Stock inicial"
		entry := &models.StockTransaction{
			StockItemID: item.ID,
			Type:        models.StockTransactionAdjustment,
			Quantity:    quantity,
			Date:        time.Now().UTC(),
			Notes:       &initial,
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetStockItemByID(userID, item.ID)
}

// UpdateStockItem partially updates a stock item's descriptive fields.
// A direct quantity change here is recorded as an Adjustment entry.
func (s *stockService) UpdateStockItem(userID, itemID string, update StockItemUpdate) (*StockItemView, error) {
	current, err := s.findItem(s.db, userID, itemID, false)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(productLockKey(userID, current.NameKey))
	defer unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		item, err := s.findItem(tx, userID, itemID, false)
		if err != nil {
			return err
		}

		if update.ProductName != nil && strings.TrimSpace(*update.ProductName) != "" {
			newName := strings.TrimSpace(*update.ProductName)
			newKey := strings.ToLower(newName)
			if newKey != item.NameKey {
				var count int64
				tx.Model(&models.StockItem{}).
					Where("user_id = ? AND name_key = ? AND id <> ?", userID, newKey, itemID).
					Count(&count)
				if count > 0 {
					return apperrors.ErrDuplicateStockItem
				}
			}
			item.ProductName = newName
			item.NameKey = newKey
		}
		if update.CategoryID != nil {
			item.CategoryID = update.CategoryID
		}
		if update.Quantity != nil && !update.Quantity.Equal(item.CurrentQuantity) {
			delta := update.Quantity.Sub(item.CurrentQuantity)
			note := fmt.Sprintf("Ajuste manual: %s → %s", item.CurrentQuantity, update.Quantity)
			entry := &models.StockTransaction{
				StockItemID: item.ID,
				Type:        models.StockTransactionAdjustment,
				Quantity:    delta,
				Date:        time.Now().UTC(),
				Notes:       &note,
			}
			if err := tx.Create(entry).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			item.CurrentQuantity = *update.Quantity
		}
		if update.Unit != nil && *update.Unit != "" {
			item.Unit = *update.Unit
		}
		if update.MinQuantity != nil {
			item.MinQuantity = update.MinQuantity
		}
		if update.MaxQuantity != nil {
			item.MaxQuantity = update.MaxQuantity
		}
		if update.Notes != nil {
			item.Notes = update.Notes
		}
		item.LastUpdated = time.Now().UTC()

		if err := tx.Save(item).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetStockItemByID(userID, itemID)
}

// DeleteStockItem removes a stock item and, via cascade, its ledger.
func (s *stockService) DeleteStockItem(userID, itemID string) error {
	item, err := s.findItem(s.db, userID, itemID, false)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(productLockKey(userID, item.NameKey))
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("stock_item_id = ?", itemID).Delete(&models.StockTransaction{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		result := tx.Where("id = ? AND user_id = ?", itemID, userID).Delete(&models.StockItem{})
		if result.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrStockItemNotFound
		}
		return nil
	})
}

// AdjustStock sets an absolute quantity and logs the signed difference.
func (s *stockService) AdjustStock(userID, itemID string, quantity decimal.Decimal, notes *string) (*StockItemView, error) {
	if quantity.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity cannot be negative")
	}
	return s.applyChange(userID, itemID, func(item *models.StockItem) (*models.StockTransaction, error) {
		note := fmt.Sprintf("Ajuste manual: %s → %s", item.CurrentQuantity, quantity)
		if notes != nil && *notes != "" {
			note = *notes
		}
		entry := &models.StockTransaction{
			StockItemID: item.ID,
			Type:        models.StockTransactionAdjustment,
			Quantity:    quantity.Sub(item.CurrentQuantity),
			Date:        time.Now().UTC(),
			Notes:       &note,
		}
		item.CurrentQuantity = quantity
		return entry, nil
	})
}

// ConsumeStock subtracts a positive amount, rejecting over-consumption.
func (s *stockService) ConsumeStock(userID, itemID string, quantity decimal.Decimal, notes *string) (*StockItemView, error) {
	if quantity.Sign() <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}
	return s.applyChange(userID, itemID, func(item *models.StockItem) (*models.StockTransaction, error) {
		if item.CurrentQuantity.LessThan(quantity) {
			return nil, apperrors.ErrInsufficientStock
		}
		note := "Consumo manual"
		if notes != nil && *notes != "" {
			note = *notes
		}
		entry := &models.StockTransaction{
			StockItemID: item.ID,
			Type:        models.StockTransactionConsumption,
			Quantity:    quantity.Neg(),
			Date:        time.Now().UTC(),
			Notes:       &note,
		}
		item.CurrentQuantity = item.CurrentQuantity.Sub(quantity)
		return entry, nil
	})
}

// ExpireStock writes off a positive amount as expired.
func (s *stockService) ExpireStock(userID, itemID string, quantity decimal.Decimal, notes *string) (*StockItemView, error) {
	if quantity.Sign() <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}
	return s.applyChange(userID, itemID, func(item *models.StockItem) (*models.StockTransaction, error) {
		if item.CurrentQuantity.LessThan(quantity) {
			return nil, apperrors.ErrInsufficientStock
		}
		note := "Producto caducado"
		if notes != nil && *notes != "" {
			note = *notes
		}
		entry := &models.StockTransaction{
			StockItemID: item.ID,
			Type:        models.StockTransactionExpiration,
			Quantity:    quantity.Neg(),
			Date:        time.Now().UTC(),
			Notes:       &note,
		}
		item.CurrentQuantity = item.CurrentQuantity.Sub(quantity)
		return entry, nil
	})
}

// applyChange runs one quantity mutation: the item update and its ledger
// entry are written in the same transaction, under the product lock.
func (s *stockService) applyChange(userID, itemID string, mutate func(*models.StockItem) (*models.StockTransaction, error)) (*StockItemView, error) {
	current, err := s.findItem(s.db, userID, itemID, false)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(productLockKey(userID, current.NameKey))
	defer unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		item, err := s.findItem(tx, userID, itemID, false)
		if err != nil {
			return err
		}

		entry, err := mutate(item)
		if err != nil {
			return err
		}

		item.LastUpdated = time.Now().UTC()
		if err := tx.Save(item).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetStockItemByID(userID, itemID)
}

// GetLowStockAlerts lists items at or below their minimum, lowest first.
func (s *stockService) GetLowStockAlerts(userID string) ([]StockItemView, error) {
	var items []models.StockItem
	err := s.db.
		Preload("Category").
		Where("user_id = ? AND min_quantity IS NOT NULL AND current_quantity <= min_quantity", userID).
		Order("current_quantity asc").
		Find(&items).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	views := make([]StockItemView, 0, len(items))
	for i := range items {
		views = append(views, *stockView(&items[i]))
	}
	return views, nil
}

// GetStockTransactions pages through an item's ledger, newest first. A
// non-nil txType narrows the ledger to entries of that kind.
func (s *stockService) GetStockTransactions(userID, itemID string, page pagination.PageRequest, txType *models.StockTransactionType) (*pagination.PageResponse[models.StockTransaction], error) {
	if _, err := s.findItem(s.db, userID, itemID, false); err != nil {
		return nil, err
	}

	page.Defaults()

	query := s.db.Model(&models.StockTransaction{}).Where("stock_item_id = ?", itemID)
	if txType != nil {
		query = query.Where("type = ?", *txType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var entries []models.StockTransaction
	err := query.
		Order("date desc").
		Scopes(pagination.Paginate(page)).
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(entries, page.Page, page.PageSize, total)
	return &resp, nil
}

// RecordPurchases reconciles stock from a committed receipt's line
// items. A failure for one product is logged and skipped; it must not
// stop the rest and must never surface to the caller, since the receipt
// itself is already durable.
func (s *stockService) RecordPurchases(userID, receiptID string, items []models.LineItem) {
	for _, item := range items {
		if err := s.recordPurchase(userID, receiptID, item); err != nil {
			s.logger.Warnw("stock reconciliation failed for product",
				"product", item.Name,
				"receipt_id", receiptID,
				"error", err,
			)
		}
	}
}

// recordPurchase upserts one product's stock and appends the Purchase
// ledger entry, both in a single transaction.
func (s *stockService) recordPurchase(userID, receiptID string, lineItem models.LineItem) error {
	nameKey := strings.ToLower(strings.TrimSpace(lineItem.Name))
	if nameKey == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "product name is required")
	}

	unlock := s.locks.Lock(productLockKey(userID, nameKey))
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var item models.StockItem
		err := tx.Where("user_id = ? AND name_key = ?", userID, nameKey).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.StockItem{
				UserID:          userID,
				ProductName:     strings.TrimSpace(lineItem.Name),
				NameKey:         nameKey,
				CategoryID:      lineItem.CategoryID,
				CurrentQuantity: lineItem.Quantity,
				Unit:            models.DefaultStockUnit,
				LastUpdated:     time.Now().UTC(),
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			item.CurrentQuantity = item.CurrentQuantity.Add(lineItem.Quantity)
			item.LastUpdated = time.Now().UTC()
			if err := tx.Save(&item).Error; err != nil {
				return err
			}
		}

		note := fmt.Sprintf("Compra desde ticket #%s", receiptID)
		entry := &models.StockTransaction{
			StockItemID: item.ID,
			ReceiptID:   &receiptID,
			Type:        models.StockTransactionPurchase,
			Quantity:    lineItem.Quantity,
			Date:        time.Now().UTC(),
			Notes:       &note,
		}
		return tx.Create(entry).Error
	})
}
