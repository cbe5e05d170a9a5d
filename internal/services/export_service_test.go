package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"despensa/internal/testutil"
)

func TestExportReceipts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewExportService(db)
	user := testutil.CreateTestUser(t, db)

	march := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	testutil.CreateTestAnalyzedReceipt(t, db, user.ID, "Mercadona", dec(t, "10.00"), march)
	testutil.CreateTestAnalyzedReceipt(t, db, user.ID, "Lidl", dec(t, "5.00"), march)
	// Unanalyzed receipts stay out of the export.
	testutil.CreateTestReceipt(t, db, user.ID)

	data, name, err := svc.ExportReceipts(user.ID, nil)
	testutil.AssertNoError(t, err)

	if len(data) == 0 {
		t.Fatal("expected workbook bytes")
	}
	if name == "" {
		t.Error("expected a suggested file name")
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook should be readable: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Tickets")
	testutil.AssertNoError(t, err)
	if len(rows) != 3 {
		t.Errorf("expected header plus 2 receipt rows, got %d", len(rows))
	}

	itemRows, err := f.GetRows("Productos")
	testutil.AssertNoError(t, err)
	if len(itemRows) != 3 {
		t.Errorf("expected header plus 2 line item rows, got %d", len(itemRows))
	}

	year := 2024
	data, name, err = svc.ExportReceipts(user.ID, &year)
	testutil.AssertNoError(t, err)
	if name != "tickets-2024.xlsx" {
		t.Errorf("expected year in file name, got %q", name)
	}

	filtered, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook should be readable: %v", err)
	}
	defer filtered.Close()

	rows, err = filtered.GetRows("Tickets")
	testutil.AssertNoError(t, err)
	if len(rows) != 1 {
		t.Errorf("expected only the header outside the filtered year, got %d rows", len(rows))
	}
}
