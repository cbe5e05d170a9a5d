package services

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	apperrors "despensa/internal/errors"
	"despensa/internal/models"
)

// exportService produces XLSX workbooks with the user's analyzed
// receipts and their line items.
type exportService struct {
	db *gorm.DB
}

// NewExportService creates a new ExportServicer.
func NewExportService(db *gorm.DB) ExportServicer {
	return &exportService{db: db}
}

// ExportReceipts writes the user's analyzed receipts into a two-sheet
// workbook and returns the bytes plus a suggested file name. A non-nil
// year limits the export to receipts purchased that year.
func (s *exportService) ExportReceipts(userID string, year *int) ([]byte, string, error) {
	query := s.db.
		Preload("LineItems").
		Preload("LineItems.Category").
		Where("user_id = ? AND is_analyzed = ?", userID, true)
	if year != nil {
		from := time.Date(*year, time.January, 1, 0, 0, 0, 0, time.UTC)
		query = query.Where("purchase_date >= ? AND purchase_date < ?", from, from.AddDate(1, 0, 0))
	}

	var receipts []models.Receipt
	err := query.Order("created_at desc").Find(&receipts).Error
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	f := excelize.NewFile()

	const receiptSheet = "Tickets"
	if err := f.SetSheetName("Sheet1", receiptSheet); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.writeReceiptSheet(f, receiptSheet, receipts); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	const itemSheet = "Productos"
	if _, err := f.NewSheet(itemSheet); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.writeItemSheet(f, itemSheet, receipts); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	name := fmt.Sprintf("tickets-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	if year != nil {
		name = fmt.Sprintf("tickets-%d.xlsx", *year)
	}
	return buf.Bytes(), name, nil
}

func (s *exportService) writeReceiptSheet(f *excelize.File, sheet string, receipts []models.Receipt) error {
	headers := []string{"Fecha de compra", "Comercio", "Importe total", "Productos", "Subido el"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for row, r := range receipts {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
		if r.PurchaseDate != nil {
			write(1, r.PurchaseDate.Format("2006-01-02"))
		} else {
			write(1, "")
		}
		if r.StoreName != nil {
			write(2, *r.StoreName)
		}
		if r.TotalAmount != nil {
			write(3, r.TotalAmount.String())
		}
		write(4, len(r.LineItems))
		write(5, r.CreatedAt.Format("2006-01-02"))
	}

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "D", 14)
	_ = f.SetColWidth(sheet, "E", "E", 14)
	return nil
}

func (s *exportService) writeItemSheet(f *excelize.File, sheet string, receipts []models.Receipt) error {
	headers := []string{"Fecha", "Comercio", "Producto", "Cantidad", "Precio unitario", "Precio total", "Categoría", "Descuento"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	row := 2
	for _, r := range receipts {
		for _, it := range r.LineItems {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			if r.PurchaseDate != nil {
				write(1, r.PurchaseDate.Format("2006-01-02"))
			} else {
				write(1, "")
			}
			if r.StoreName != nil {
				write(2, *r.StoreName)
			}
			write(3, it.Name)
			write(4, it.Quantity.String())
			write(5, it.UnitPrice.String())
			write(6, it.TotalPrice.String())
			if it.Category != nil {
				write(7, it.Category.Name)
			} else {
				write(7, models.UncategorizedLabel)
			}
			if it.IsDiscount {
				write(8, "Sí")
			}
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "C", 28)
	_ = f.SetColWidth(sheet, "D", "F", 14)
	_ = f.SetColWidth(sheet, "G", "G", 22)
	return nil
}
