package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"despensa/internal/analysis"
	"despensa/internal/models"
)

// normalizeItems turns untrusted analysis output into line items safe to
// persist. Invalid candidates are discarded with a warning, never a hard
// failure; one bad line must not abort the whole receipt. The returned
// line items have no receipt ID yet.
func normalizeItems(candidates []*analysis.ItemCandidate, categoriesByName map[string]*models.Category) ([]models.LineItem, []string) {
	var items []models.LineItem
	var warnings []string

	for _, c := range candidates {
		if warning := validateCandidate(c); warning != "" {
			warnings = append(warnings, warning)
			continue
		}

		quantity := c.Quantity.Round(3)
		unitPrice := c.UnitPrice.Round(2)
		totalPrice := c.TotalPrice.Round(2)

		// Repair the common case where the model reports only one of the
		// two price fields reliably.
		switch {
		case totalPrice.Sign() <= 0 && unitPrice.Sign() > 0 && quantity.Sign() > 0:
			totalPrice = unitPrice.Mul(quantity).Round(2)
		case unitPrice.Sign() <= 0 && totalPrice.Sign() > 0 && quantity.Sign() > 0:
			unitPrice = totalPrice.Div(quantity).Round(2)
		}

		items = append(items, models.LineItem{
			Name:       strings.TrimSpace(c.Name),
			Quantity:   quantity,
			UnitPrice:  unitPrice,
			TotalPrice: totalPrice,
			CategoryID: resolveCategory(c.CategoryName, categoriesByName),
			IsDiscount: c.IsDiscount,
		})
	}

	return items, warnings
}

// validateCandidate returns a discard warning, or "" when the candidate
// is usable. Checks run in order and stop at the first violation.
func validateCandidate(c *analysis.ItemCandidate) string {
	if c == nil {
		return "Producto inválido retornado por el análisis."
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "Se descartó un producto sin nombre."
	}
	if c.Quantity.Sign() <= 0 {
		return fmt.Sprintf("Se descartó '%s' por cantidad inválida (%s).", name, c.Quantity)
	}
	if c.UnitPrice.IsNegative() || c.TotalPrice.IsNegative() {
		return fmt.Sprintf("Se descartó '%s' por precios negativos.", name)
	}
	return ""
}

// resolveCategory maps a reported category label to a category ID.
// A missing label falls back to "Otros"; an unknown label resolves to
// no category, not an error.
func resolveCategory(label *string, categoriesByName map[string]*models.Category) *string {
	var category *models.Category
	if label != nil {
		category = categoriesByName[*label]
	} else {
		category = categoriesByName[models.FallbackCategoryName]
	}
	if category == nil {
		return nil
	}
	id := category.ID
	return &id
}

// sumLineTotals adds up the total prices of the given line items.
func sumLineTotals(items []models.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}
