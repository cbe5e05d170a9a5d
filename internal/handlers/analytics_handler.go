package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "despensa/internal/errors"
	"despensa/internal/services"
)

// AnalyticsHandler handles spending report requests.
type AnalyticsHandler struct {
	analyticsService services.AnalyticsServicer
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analyticsService services.AnalyticsServicer) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// GetStoreAnalytics handles the by-store spending report.
// @Summary     Get store analytics
// @Description Get spending aggregated by store across all analyzed receipts
// @Tags        analytics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.StoreAnalytics "By-store report"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /analytics/stores [get]
func (h *AnalyticsHandler) GetStoreAnalytics(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	analytics, err := h.analyticsService.GetStoreAnalytics(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// GetMonthlyExpenses handles the per-month spending report.
// @Summary     Get monthly expenses
// @Description Get twelve months of spending totals for a year; months with no receipts are zero
// @Tags        analytics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       year query int false "Year (default current year)"
// @Success     200 {array} services.MonthlyExpense "Twelve monthly totals"
// @Failure     400 {object} ErrorResponse "Invalid year"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /analytics/monthly [get]
func (h *AnalyticsHandler) GetMonthlyExpenses(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	year, err := parseYearQuery(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	expenses, err := h.analyticsService.GetMonthlyExpenses(userID, year)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}

// GetCategoryExpenses handles the per-category spending report for one month.
// @Summary     Get category expenses
// @Description Get spending aggregated by product category for one month
// @Tags        analytics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       year  query int false "Year (default current year)"
// @Param       month query int false "Month 1-12 (default current month)"
// @Success     200 {array} services.CategoryExpense "Per-category totals"
// @Failure     400 {object} ErrorResponse "Invalid year or month"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /analytics/categories [get]
func (h *AnalyticsHandler) GetCategoryExpenses(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	year, err := parseYearQuery(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	month := int(time.Now().Month())
	if v := c.Query("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "month must be between 1 and 12"))
			return
		}
		month = m
	}

	expenses, err := h.analyticsService.GetCategoryExpenses(userID, year, month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}

// parseYearQuery reads the optional year query parameter, defaulting to the
// current year.
func parseYearQuery(c *gin.Context) (int, error) {
	year := time.Now().Year()
	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 || y > 2200 {
			return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year")
		}
		year = y
	}
	return year, nil
}
