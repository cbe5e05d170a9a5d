package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"despensa/internal/analysis"
	apperrors "despensa/internal/errors"
	"despensa/internal/logger"
	"despensa/internal/models"
	"despensa/internal/pagination"
	"despensa/internal/uuid"
)

// maxReceiptImageSize is the upload limit in bytes.
const maxReceiptImageSize = 10 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/jpg":       true,
	"application/pdf": true,
}

// receiptService drives the receipt pipeline: upload, analysis,
// transactional line-item replacement and the handoff to stock
// reconciliation.
type receiptService struct {
	db       *gorm.DB
	analyzer analysis.Analyzer
	stock    StockServicer
	logger   *zap.SugaredLogger

	// analyzeLocks serializes analysis per receipt ID so two concurrent
	// re-analyses cannot interleave their replace-and-reconcile steps.
	analyzeLocks *keyedMutex

	// Lifecycle for the fire-and-forget store-name pre-fill jobs.
	baseCtx context.Context
	cancel  context.CancelFunc
	jobs    sync.WaitGroup
}

// NewReceiptService creates a new ReceiptServicer. Close must be called
// on shutdown so in-flight pre-fill jobs do not outlive the process.
func NewReceiptService(db *gorm.DB, analyzer analysis.Analyzer, stock StockServicer) ReceiptServicer {
	ctx, cancel := context.WithCancel(context.Background())
	return &receiptService{
		db:           db,
		analyzer:     analyzer,
		stock:        stock,
		logger:       logger.Get(),
		analyzeLocks: newKeyedMutex(),
		baseCtx:      ctx,
		cancel:       cancel,
	}
}

// Close cancels pending pre-fill jobs and waits for them to finish.
func (s *receiptService) Close() {
	s.cancel()
	s.jobs.Wait()
}

// UploadReceipt stores the raw image and schedules the best-effort
// store-name pre-fill. The upload response never waits for the model.
func (s *receiptService) UploadReceipt(userID string, data []byte, contentType string) (*models.Receipt, error) {
	if len(data) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "no file was provided")
	}
	if !allowedImageTypes[strings.ToLower(contentType)] {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "file type not allowed: only JPG, PNG and PDF are accepted")
	}
	if len(data) > maxReceiptImageSize {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "file is too large: the maximum size is 10MB")
	}

	receipt := &models.Receipt{
		UserID:           userID,
		ImageData:        data,
		ImageContentType: strings.ToLower(contentType),
	}
	if err := s.db.Create(receipt).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.jobs.Add(1)
	go s.prefillStoreName(receipt.ID, data, receipt.ImageContentType)

	return receipt, nil
}

// prefillStoreName runs the store-name-only extraction after upload.
// Failure is swallowed: the receipt is simply left without a store name.
func (s *receiptService) prefillStoreName(receiptID string, image []byte, contentType string) {
	defer s.jobs.Done()

	storeName, err := s.analyzer.ExtractStoreName(s.baseCtx, image, contentType)
	if err != nil {
		s.logger.Debugw("store name pre-fill failed", "receipt_id", receiptID, "error", err)
		return
	}
	storeName = strings.TrimSpace(storeName)
	if storeName == "" {
		return
	}

	// A full analysis may have finished while the extraction ran; its
	// store name wins, so only fill a still-blank, unanalyzed receipt.
	result := s.db.Model(&models.Receipt{}).
		Where("id = ? AND store_name IS NULL AND is_analyzed = ?", receiptID, false).
		Update("store_name", storeName)
	if result.Error != nil {
		s.logger.Warnw("store name pre-fill update failed", "receipt_id", receiptID, "error", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		s.logger.Infow("store name pre-filled", "receipt_id", receiptID, "store_name", storeName)
	}
}

// AnalyzeReceipt runs the full pipeline for one receipt: call the
// vision model, validate and normalize its output, replace the
// receipt's line items in one transaction, then reconcile stock.
// Analysis of the same receipt is serialized; re-analysis replaces all
// previously persisted line items.
func (s *receiptService) AnalyzeReceipt(ctx context.Context, userID, receiptID string) (*AnalyzeResult, error) {
	unlock := s.analyzeLocks.Lock(receiptID)
	defer unlock()

	var receipt models.Receipt
	if err := s.db.Where("id = ? AND user_id = ?", receiptID, userID).First(&receipt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrReceiptNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(receipt.ImageData) == 0 {
		return nil, apperrors.ErrReceiptNoImage
	}

	contentType := receipt.ImageContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	result, err := s.analyzer.AnalyzeReceipt(ctx, receipt.ImageData, contentType)
	if err != nil {
		return nil, err
	}

	categoriesByName, err := s.loadCategories()
	if err != nil {
		return nil, err
	}

	items, warnings := normalizeItems(result.Items, categoriesByName)

	if len(items) == 0 {
		// Semantic failure: nothing usable was read. Reset the analyzed
		// fields rather than storing a zero-item receipt as done.
		err := s.db.Model(&receipt).Updates(map[string]any{
			"store_name":    nil,
			"total_amount":  nil,
			"purchase_date": nil,
			"is_analyzed":   false,
		}).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil, apperrors.WithWarnings(apperrors.ErrAnalysisEmpty, warnings)
	}

	storeName := receipt.StoreName
	if trimmed := strings.TrimSpace(result.StoreName); trimmed != "" {
		storeName = &trimmed
	}
	totalAmount := result.TotalAmount
	if totalAmount.IsNegative() {
		totalAmount = sumLineTotals(items)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", receipt.ID).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ReceiptID = receipt.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		return tx.Model(&receipt).Updates(map[string]any{
			"store_name":    storeName,
			"total_amount":  totalAmount,
			"purchase_date": result.PurchaseDate,
			"is_analyzed":   true,
		}).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	// The receipt and line items are durably committed at this point.
	// Reconciliation failures are contained per product inside the stock
	// service and never roll back the commit above.
	s.stock.RecordPurchases(userID, receipt.ID, items)

	reloaded, err := s.GetReceiptByID(userID, receipt.ID)
	if err != nil {
		return nil, err
	}
	return &AnalyzeResult{Receipt: reloaded, Warnings: warnings}, nil
}

// loadCategories indexes the fixed category set by exact name.
func (s *receiptService) loadCategories() (map[string]*models.Category, error) {
	var categories []models.Category
	if err := s.db.Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	byName := make(map[string]*models.Category, len(categories))
	for i := range categories {
		byName[categories[i].Name] = &categories[i]
	}
	return byName, nil
}

// GetUserReceipts lists the user's receipts, newest first.
func (s *receiptService) GetUserReceipts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Receipt], error) {
	page.Defaults()

	query := s.db.Model(&models.Receipt{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var receipts []models.Receipt
	err := query.
		Preload("LineItems").
		Order("created_at desc").
		Scopes(pagination.Paginate(page)).
		Find(&receipts).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(receipts, page.Page, page.PageSize, total)
	return &resp, nil
}

// GetReceiptByID retrieves one receipt with its line items and their categories
func (s *receiptService) GetReceiptByID(userID, receiptID string) (*models.Receipt, error) {
	if !uuid.IsValid(receiptID) {
		return nil, apperrors.ErrReceiptNotFound
	}
	var receipt models.Receipt
	err := s.db.
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("LineItems.Category").
		Where("id = ? AND user_id = ?", receiptID, userID).
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrReceiptNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &receipt, nil
}

// GetReceiptImage returns the stored image bytes and content type.
func (s *receiptService) GetReceiptImage(userID, receiptID string) ([]byte, string, error) {
	if !uuid.IsValid(receiptID) {
		return nil, "", apperrors.ErrReceiptNotFound
	}
	var receipt models.Receipt
	if err := s.db.Where("id = ? AND user_id = ?", receiptID, userID).First(&receipt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", apperrors.ErrReceiptNotFound
		}
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(receipt.ImageData) == 0 {
		return nil, "", apperrors.ErrReceiptNotFound
	}
	contentType := receipt.ImageContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return receipt.ImageData, contentType, nil
}
