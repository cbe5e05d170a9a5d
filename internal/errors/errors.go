// Package errors provides custom error types for the Despensa API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	StatusCode int      `json:"-"`
	Internal   error    `json:"-"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithWarnings creates a new AppError carrying the accumulated
// validation warnings, for semantic analysis failures.
func WithWarnings(sentinel *AppError, warnings []string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Warnings:   warnings,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid username or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound  = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateUser = &AppError{Code: "DUPLICATE_USER", Message: "A user with this username or email already exists", StatusCode: http.StatusConflict}
	ErrAdminExists   = &AppError{Code: "ADMIN_EXISTS", Message: "An administrator already exists", StatusCode: http.StatusConflict}
)

// Receipt errors.
var (
	ErrReceiptNotFound = &AppError{Code: "RECEIPT_NOT_FOUND", Message: "Receipt not found", StatusCode: http.StatusNotFound}
	ErrReceiptNoImage  = &AppError{Code: "NO_IMAGE", Message: "The receipt has no image to analyze", StatusCode: http.StatusBadRequest}
	// ErrAnalysisEmpty is the semantic failure: the analysis ran but no
	// line item survived validation. Carries the validation warnings.
	ErrAnalysisEmpty = &AppError{Code: "ANALYSIS_EMPTY", Message: "No valid products were found in the analysis. Try again or upload a clearer image.", StatusCode: http.StatusUnprocessableEntity}
)

// AI analysis provider errors. Statuses distinguish "fix configuration"
// (401) from "retry later" (429, 503) from "provider problem" (502).
var (
	ErrAIKeyMissing   = &AppError{Code: "AI_KEY_MISSING", Message: "The OpenAI API key is not configured. Configure it before analyzing receipts.", StatusCode: http.StatusBadRequest}
	ErrAIUnauthorized = &AppError{Code: "AI_UNAUTHORIZED", Message: "The OpenAI API key is invalid or has expired", StatusCode: http.StatusUnauthorized}
	ErrAIRateLimited  = &AppError{Code: "AI_RATE_LIMITED", Message: "OpenAI rejected the request due to rate limiting. Try again in a few seconds.", StatusCode: http.StatusTooManyRequests}
	ErrAIBadGateway   = &AppError{Code: "AI_BAD_GATEWAY", Message: "OpenAI returned an unexpected response", StatusCode: http.StatusBadGateway}
	ErrAIUnavailable  = &AppError{Code: "AI_UNAVAILABLE", Message: "Could not reach OpenAI. Check your connection and try again.", StatusCode: http.StatusServiceUnavailable}
)

// Stock errors.
var (
	ErrStockItemNotFound  = &AppError{Code: "STOCK_ITEM_NOT_FOUND", Message: "Stock item not found", StatusCode: http.StatusNotFound}
	ErrDuplicateStockItem = &AppError{Code: "DUPLICATE_STOCK_ITEM", Message: "A product with this name already exists in your stock", StatusCode: http.StatusConflict}
	ErrInsufficientStock  = &AppError{Code: "INSUFFICIENT_STOCK", Message: "Not enough stock available", StatusCode: http.StatusBadRequest}
)

// Category errors.
var (
	ErrCategoryNotFound = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
)
