package services

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"despensa/internal/analysis"
	"despensa/internal/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func strptr(s string) *string { return &s }

func testCategoryMap() map[string]*models.Category {
	otros := &models.Category{Name: "Otros"}
	otros.ID = "otros-id"
	lacteos := &models.Category{Name: "Lácteos"}
	lacteos.ID = "lacteos-id"
	return map[string]*models.Category{
		"Otros":   otros,
		"Lácteos": lacteos,
	}
}

func TestNormalizeItems(t *testing.T) {
	categories := testCategoryMap()

	t.Run("discards_nil_item", func(t *testing.T) {
		items, warnings := normalizeItems([]*analysis.ItemCandidate{nil}, categories)
		if len(items) != 0 {
			t.Fatalf("expected no items, got %d", len(items))
		}
		if len(warnings) != 1 || warnings[0] != "Producto inválido retornado por el análisis." {
			t.Errorf("unexpected warnings: %v", warnings)
		}
	})

	t.Run("discards_blank_name", func(t *testing.T) {
		items, warnings := normalizeItems([]*analysis.ItemCandidate{
			{Name: "   ", Quantity: decimal.NewFromInt(1)},
		}, categories)
		if len(items) != 0 {
			t.Fatalf("expected no items, got %d", len(items))
		}
		if len(warnings) != 1 || warnings[0] != "Se descartó un producto sin nombre." {
			t.Errorf("unexpected warnings: %v", warnings)
		}
	})

	t.Run("discards_zero_quantity_not_clamped", func(t *testing.T) {
		items, warnings := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Pan", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(1)},
		}, categories)
		if len(items) != 0 {
			t.Fatalf("expected no items, got %d", len(items))
		}
		if len(warnings) != 1 || !strings.Contains(warnings[0], "'Pan'") || !strings.Contains(warnings[0], "(0)") {
			t.Errorf("warning should name the product and the offending value: %v", warnings)
		}
	})

	t.Run("discards_negative_prices", func(t *testing.T) {
		items, warnings := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Descuento", Quantity: decimal.NewFromInt(1), UnitPrice: dec(t, "-0.50"), TotalPrice: dec(t, "-0.50")},
		}, categories)
		if len(items) != 0 {
			t.Fatalf("expected no items, got %d", len(items))
		}
		if len(warnings) != 1 || warnings[0] != "Se descartó 'Descuento' por precios negativos." {
			t.Errorf("unexpected warnings: %v", warnings)
		}
	})

	t.Run("continues_after_bad_line", func(t *testing.T) {
		items, warnings := normalizeItems([]*analysis.ItemCandidate{
			nil,
			{Name: "Leche", Quantity: decimal.NewFromInt(2), UnitPrice: dec(t, "1.10"), TotalPrice: dec(t, "2.20")},
		}, categories)
		if len(items) != 1 {
			t.Fatalf("expected 1 surviving item, got %d", len(items))
		}
		if len(warnings) != 1 {
			t.Errorf("expected 1 warning, got %v", warnings)
		}
	})

	t.Run("rounds_half_away_from_zero", func(t *testing.T) {
		items, _ := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Queso", Quantity: dec(t, "0.2485"), UnitPrice: dec(t, "10.125"), TotalPrice: dec(t, "2.515")},
		}, categories)
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if !items[0].Quantity.Equal(dec(t, "0.249")) {
			t.Errorf("expected quantity 0.249, got %s", items[0].Quantity)
		}
		if !items[0].UnitPrice.Equal(dec(t, "10.13")) {
			t.Errorf("expected unit price 10.13, got %s", items[0].UnitPrice)
		}
		if !items[0].TotalPrice.Equal(dec(t, "2.52")) {
			t.Errorf("expected total price 2.52, got %s", items[0].TotalPrice)
		}
	})

	t.Run("derives_total_from_unit_price", func(t *testing.T) {
		items, _ := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Huevos", Quantity: decimal.NewFromInt(3), UnitPrice: dec(t, "1.50")},
		}, categories)
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if !items[0].TotalPrice.Equal(dec(t, "4.50")) {
			t.Errorf("expected derived total 4.50, got %s", items[0].TotalPrice)
		}
	})

	t.Run("derives_unit_price_from_total", func(t *testing.T) {
		items, _ := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Leche", Quantity: decimal.NewFromInt(2), TotalPrice: dec(t, "10.00")},
		}, categories)
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if !items[0].UnitPrice.Equal(dec(t, "5.00")) {
			t.Errorf("expected derived unit price 5.00, got %s", items[0].UnitPrice)
		}
	})

	t.Run("matches_category_exactly", func(t *testing.T) {
		items, _ := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Leche", Quantity: decimal.NewFromInt(1), UnitPrice: dec(t, "1.00"), CategoryName: strptr("Lácteos")},
		}, categories)
		if items[0].CategoryID == nil || *items[0].CategoryID != "lacteos-id" {
			t.Errorf("expected category lacteos-id, got %v", items[0].CategoryID)
		}
	})

	t.Run("unknown_label_resolves_to_no_category", func(t *testing.T) {
		items, warnings := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Tornillos", Quantity: decimal.NewFromInt(1), UnitPrice: dec(t, "1.00"), CategoryName: strptr("Ferretería")},
		}, categories)
		if items[0].CategoryID != nil {
			t.Errorf("expected no category, got %v", *items[0].CategoryID)
		}
		if len(warnings) != 0 {
			t.Errorf("unknown label is not a warning: %v", warnings)
		}
	})

	t.Run("missing_label_falls_back_to_otros", func(t *testing.T) {
		items, _ := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Bolsa", Quantity: decimal.NewFromInt(1), UnitPrice: dec(t, "0.10")},
		}, categories)
		if items[0].CategoryID == nil || *items[0].CategoryID != "otros-id" {
			t.Errorf("expected fallback to Otros, got %v", items[0].CategoryID)
		}
	})

	t.Run("category_lookup_is_case_sensitive", func(t *testing.T) {
		items, _ := normalizeItems([]*analysis.ItemCandidate{
			{Name: "Leche", Quantity: decimal.NewFromInt(1), UnitPrice: dec(t, "1.00"), CategoryName: strptr("lácteos")},
		}, categories)
		if items[0].CategoryID != nil {
			t.Errorf("lowercase label must not match, got %v", *items[0].CategoryID)
		}
	})

	t.Run("trims_name", func(t *testing.T) {
		items, _ := normalizeItems([]*analysis.ItemCandidate{
			{Name: "  Pan de molde  ", Quantity: decimal.NewFromInt(1), UnitPrice: dec(t, "1.00")},
		}, categories)
		if items[0].Name != "Pan de molde" {
			t.Errorf("expected trimmed name, got %q", items[0].Name)
		}
	})
}
