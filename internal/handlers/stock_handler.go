package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "despensa/internal/errors"
	"despensa/internal/models"
	"despensa/internal/pagination"
	"despensa/internal/services"
)

// StockHandler handles pantry stock requests.
type StockHandler struct {
	stockService services.StockServicer
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(stockService services.StockServicer) *StockHandler {
	return &StockHandler{stockService: stockService}
}

// CreateStockItemRequest represents the request payload for creating a stock item.
type CreateStockItemRequest struct {
	ProductName string           `json:"product_name" binding:"required,min=1,max=500"`
	CategoryID  *string          `json:"category_id"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit" binding:"omitempty,max=50"`
	MinQuantity *decimal.Decimal `json:"min_quantity"`
	MaxQuantity *decimal.Decimal `json:"max_quantity"`
	Notes       *string          `json:"notes"`
}

// UpdateStockItemRequest represents the request payload for updating a stock
// item. Omitted fields are left unchanged.
type UpdateStockItemRequest struct {
	ProductName *string          `json:"product_name" binding:"omitempty,min=1,max=500"`
	CategoryID  *string          `json:"category_id"`
	Quantity    *decimal.Decimal `json:"quantity"`
	Unit        *string          `json:"unit" binding:"omitempty,max=50"`
	MinQuantity *decimal.Decimal `json:"min_quantity"`
	MaxQuantity *decimal.Decimal `json:"max_quantity"`
	Notes       *string          `json:"notes"`
}

// StockTransactionsRequest represents the query parameters for the
// paginated ledger of one stock item.
type StockTransactionsRequest struct {
	pagination.PageRequest
	Type *string `form:"type" binding:"omitempty,stock_tx_type"`
}

// StockMovementRequest represents a consume, expire, or adjust payload.
type StockMovementRequest struct {
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Notes    *string         `json:"notes"`
}

// GetStockItems handles listing the user's pantry.
// @Summary     Get stock items
// @Description Get all stock items for the authenticated user, ordered by product name
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array} services.StockItemView "List of stock items"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock [get]
func (h *StockHandler) GetStockItems(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	items, err := h.stockService.GetStockItems(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetStockItem handles retrieving one stock item with its recent transactions.
// @Summary     Get stock item by ID
// @Description Get a stock item with its most recent ledger entries
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Stock item ID"
// @Success     200 {object} services.StockItemView "Stock item details"
// @Failure     400 {object} ErrorResponse "Invalid stock item ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/{id} [get]
func (h *StockHandler) GetStockItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	itemID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	item, err := h.stockService.GetStockItemByID(userID, itemID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// CreateStockItem handles manual creation of a stock item.
// @Summary     Create a stock item
// @Description Create a stock item with an initial quantity
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateStockItemRequest true "Stock item details"
// @Success     201 {object} services.StockItemView "Stock item created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Product already tracked"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock [post]
func (h *StockHandler) CreateStockItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.stockService.CreateStockItem(
		userID, req.ProductName, req.CategoryID, req.Quantity, req.Unit,
		req.MinQuantity, req.MaxQuantity, req.Notes,
	)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// UpdateStockItem handles updating an existing stock item.
// @Summary     Update stock item
// @Description Update a stock item; quantity changes are recorded as adjustments
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                 true "Stock item ID"
// @Param       request body UpdateStockItemRequest true "Updated stock item details"
// @Success     200 {object} services.StockItemView "Updated stock item"
// @Failure     400 {object} ErrorResponse "Invalid input or stock item ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock item not found"
// @Failure     409 {object} ErrorResponse "Product name already tracked"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/{id} [put]
func (h *StockHandler) UpdateStockItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	itemID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.stockService.UpdateStockItem(userID, itemID, services.StockItemUpdate{
		ProductName: req.ProductName,
		CategoryID:  req.CategoryID,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		MinQuantity: req.MinQuantity,
		MaxQuantity: req.MaxQuantity,
		Notes:       req.Notes,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// DeleteStockItem handles deleting a stock item and its ledger.
// @Summary     Delete stock item
// @Description Delete a stock item and all of its ledger entries
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Stock item ID"
// @Success     200 {object} MessageResponse "Stock item deleted"
// @Failure     400 {object} ErrorResponse "Invalid stock item ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/{id} [delete]
func (h *StockHandler) DeleteStockItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	itemID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.stockService.DeleteStockItem(userID, itemID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stock item deleted successfully"})
}

// AdjustStock sets the absolute quantity of a stock item.
// @Summary     Adjust stock
// @Description Set the absolute quantity; the delta is recorded as an adjustment entry
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Stock item ID"
// @Param       request body StockMovementRequest true "New absolute quantity"
// @Success     200 {object} services.StockItemView "Updated stock item"
// @Failure     400 {object} ErrorResponse "Invalid input or stock item ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/{id}/adjust [post]
func (h *StockHandler) AdjustStock(c *gin.Context) {
	h.applyMovement(c, h.stockService.AdjustStock)
}

// ConsumeStock subtracts a consumed quantity from a stock item.
// @Summary     Consume stock
// @Description Subtract a consumed quantity; recorded as a consumption entry
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Stock item ID"
// @Param       request body StockMovementRequest true "Quantity to consume"
// @Success     200 {object} services.StockItemView "Updated stock item"
// @Failure     400 {object} ErrorResponse "Invalid quantity or insufficient stock"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/{id}/consume [post]
func (h *StockHandler) ConsumeStock(c *gin.Context) {
	h.applyMovement(c, h.stockService.ConsumeStock)
}

// ExpireStock subtracts an expired quantity from a stock item.
// @Summary     Expire stock
// @Description Subtract an expired quantity; recorded as an expiration entry
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Stock item ID"
// @Param       request body StockMovementRequest true "Quantity expired"
// @Success     200 {object} services.StockItemView "Updated stock item"
// @Failure     400 {object} ErrorResponse "Invalid quantity or insufficient stock"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/{id}/expire [post]
func (h *StockHandler) ExpireStock(c *gin.Context) {
	h.applyMovement(c, h.stockService.ExpireStock)
}

// applyMovement runs the shared bind-and-respond path for the three stock
// movement endpoints.
func (h *StockHandler) applyMovement(c *gin.Context, op func(userID, itemID string, quantity decimal.Decimal, notes *string) (*services.StockItemView, error)) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	itemID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req StockMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := op(userID, itemID, req.Quantity, req.Notes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// GetLowStockAlerts lists the items at or below their minimum quantity.
// @Summary     Get low stock alerts
// @Description Get stock items at or below their minimum quantity, lowest first
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array} services.StockItemView "Low stock items"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/alerts [get]
func (h *StockHandler) GetLowStockAlerts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	items, err := h.stockService.GetLowStockAlerts(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetStockTransactions lists the ledger of one stock item.
// @Summary     Get stock transactions
// @Description Get a paginated ledger for a stock item, newest first
// @Tags        stock
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Stock item ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Param       type      query string false "Filter by entry type (purchase, consumption, adjustment, expiration)"
// @Success     200 {object} pagination.PageResponse[models.StockTransaction] "Paginated ledger entries"
// @Failure     400 {object} ErrorResponse "Invalid input or stock item ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock item not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stock/{id}/transactions [get]
func (h *StockHandler) GetStockTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	itemID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req StockTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var txType *models.StockTransactionType
	if req.Type != nil {
		t := models.StockTransactionType(*req.Type)
		txType = &t
	}

	result, err := h.stockService.GetStockTransactions(userID, itemID, req.PageRequest, txType)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
