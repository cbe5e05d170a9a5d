package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "despensa/internal/errors"
	"despensa/internal/pagination"
	"despensa/internal/services"
)

// ReceiptHandler handles receipt upload, analysis, and retrieval.
type ReceiptHandler struct {
	receiptService services.ReceiptServicer
	exportService  services.ExportServicer
}

// NewReceiptHandler creates a new ReceiptHandler.
func NewReceiptHandler(receiptService services.ReceiptServicer, exportService services.ExportServicer) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService, exportService: exportService}
}

// AnalyzeResponse represents the result of a receipt analysis.
type AnalyzeResponse struct {
	Receipt  interface{} `json:"receipt"`
	Warnings []string    `json:"warnings,omitempty"`
}

// UploadReceipt handles a receipt image upload.
// @Summary     Upload a receipt
// @Description Upload a receipt image or PDF (multipart field "file", max 10MB)
// @Tags        receipts
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file formData file true "Receipt image (jpeg, png, or pdf)"
// @Success     201 {object} models.Receipt "Receipt stored"
// @Failure     400 {object} ErrorResponse "Missing, empty, oversized, or unsupported file"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /receipts [post]
func (h *ReceiptHandler) UploadReceipt(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "A file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	receipt, err := h.receiptService.UploadReceipt(userID, data, contentType)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"receipt": receipt})
}

// AnalyzeReceipt runs the analysis pipeline on a stored receipt.
// @Summary     Analyze a receipt
// @Description Send the receipt image to the analysis provider and persist the extracted data
// @Tags        receipts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Receipt ID"
// @Success     200 {object} AnalyzeResponse "Analysis result"
// @Failure     400 {object} ErrorResponse "Invalid receipt ID, missing image, or missing provider key"
// @Failure     401 {object} ErrorResponse "Unauthorized or provider rejected the key"
// @Failure     404 {object} ErrorResponse "Receipt not found"
// @Failure     422 {object} ErrorResponse "No valid products extracted"
// @Failure     429 {object} ErrorResponse "Provider rate limited"
// @Failure     502 {object} ErrorResponse "Provider returned an invalid response"
// @Failure     503 {object} ErrorResponse "Provider unreachable"
// @Router      /receipts/{id}/analyze [post]
func (h *ReceiptHandler) AnalyzeReceipt(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	receiptID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.receiptService.AnalyzeReceipt(c.Request.Context(), userID, receiptID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if len(result.Warnings) > 0 {
		c.Header("X-Analysis-Warnings", strings.Join(result.Warnings, "|"))
	}
	c.JSON(http.StatusOK, gin.H{
		"receipt":  result.Receipt,
		"warnings": result.Warnings,
	})
}

// GetReceipts handles listing receipts for the authenticated user.
// @Summary     Get receipts
// @Description Get a paginated list of receipts, newest first
// @Tags        receipts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Receipt] "Paginated receipts"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /receipts [get]
func (h *ReceiptHandler) GetReceipts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.receiptService.GetUserReceipts(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetReceipt handles retrieving a specific receipt with its line items.
// @Summary     Get receipt by ID
// @Description Get a specific receipt with its line items
// @Tags        receipts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Receipt ID"
// @Success     200 {object} models.Receipt "Receipt details"
// @Failure     400 {object} ErrorResponse "Invalid receipt ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Receipt not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /receipts/{id} [get]
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	receiptID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	receipt, err := h.receiptService.GetReceiptByID(userID, receiptID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

// GetReceiptImage serves the stored receipt image.
// @Summary     Get receipt image
// @Description Get the raw stored image for a receipt
// @Tags        receipts
// @Produce     image/jpeg
// @Security    BearerAuth
// @Param       id path string true "Receipt ID"
// @Success     200 {file} binary "Receipt image"
// @Failure     400 {object} ErrorResponse "Invalid receipt ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Receipt or image not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /receipts/{id}/image [get]
func (h *ReceiptHandler) GetReceiptImage(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	receiptID, err := parsePathUUID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	data, contentType, err := h.receiptService.GetReceiptImage(userID, receiptID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Data(http.StatusOK, contentType, data)
}

// ExportReceipts serves an XLSX export of all analyzed receipts.
// @Summary     Export receipts
// @Description Download analyzed receipts and their products as an XLSX workbook
// @Tags        receipts
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security    BearerAuth
// @Param       year query int false "Limit to receipts purchased in this year"
// @Success     200 {file} binary "XLSX workbook"
// @Failure     400 {object} ErrorResponse "Invalid year"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /receipts/export [get]
func (h *ReceiptHandler) ExportReceipts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var year *int
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2200 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year"))
			return
		}
		year = &parsed
	}

	data, filename, err := h.exportService.ExportReceipts(userID, year)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
