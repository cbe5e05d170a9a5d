// Package analysis talks to the external vision model that reads
// receipt images. The rest of the application depends on the Analyzer
// contract, never on the OpenAI wire format.
package analysis

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ItemCandidate is one untrusted product row reported by the model.
// Validation and normalization happen downstream in the receipt service.
type ItemCandidate struct {
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	CategoryName *string         `json:"categoryName"`
	IsDiscount   bool            `json:"isDiscount"`
}

// Result is the parsed output of one full receipt analysis. Items may
// contain nil entries when the model returned null rows; downstream
// validation reports those as discarded.
type Result struct {
	StoreName    string
	PurchaseDate *time.Time
	TotalAmount  decimal.Decimal
	Items        []*ItemCandidate
}

// Analyzer is the contract for the external analysis provider.
type Analyzer interface {
	// AnalyzeReceipt extracts the full structured result from a receipt
	// image. Provider failures surface as the distinct AppError
	// categories (unauthorized, rate limited, bad gateway, unreachable).
	AnalyzeReceipt(ctx context.Context, image []byte, contentType string) (*Result, error)

	// ExtractStoreName performs the lighter store-name-only read used by
	// the best-effort pre-fill after upload.
	ExtractStoreName(ctx context.Context, image []byte, contentType string) (string, error)
}

// KeyProvider supplies the provider API key, decrypted just before each
// call. Returning ErrAIKeyMissing is the precondition failure distinct
// from any call failure.
type KeyProvider interface {
	OpenAIKey(ctx context.Context) (string, error)
}
