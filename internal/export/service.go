// Package export produces XLSX workbooks from stored extraction results.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/finlens/receipt-extract/internal/store"
)

// Lister is the slice of the store the export service needs.
type Lister interface {
	ListReceipts(ctx context.Context) ([]store.Receipt, error)
}

// Service is a tiny façade over the store that produces XLSX bytes for exports.
type Service struct {
	receipts Lister
	logger   *slog.Logger
}

func NewService(receipts Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{receipts: receipts, logger: logger}
}

// ExportReceiptsXLSX returns an XLSX workbook (as bytes) with one row per
// stored receipt.
func (s *Service) ExportReceiptsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.receipts.ListReceipts(ctx)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Receipts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Date",
		"Merchant",
		"Address",
		"Total",
		"Subtotal",
		"Tax",
		"Currency",
		"Status",
		"Summary",
		"Image URL",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.TransactionDate)
		write(2, r.MerchantName)
		write(3, r.MerchantAddress)
		writeAmount(write, 4, r.TotalAmount)
		writeAmount(write, 5, r.SubtotalAmount)
		writeAmount(write, 6, r.TaxAmount)
		write(7, r.Currency)
		write(8, r.Status)
		write(9, truncate(r.Summary, 140))
		write(10, r.ImageURL)

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 14) // date
	_ = f.SetColWidth(sheet, "B", "B", 28) // merchant
	_ = f.SetColWidth(sheet, "C", "C", 40) // address
	_ = f.SetColWidth(sheet, "D", "F", 12) // amounts
	_ = f.SetColWidth(sheet, "I", "I", 48) // summary
	_ = f.SetColWidth(sheet, "J", "J", 60) // image url

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeAmount(write func(col int, v any), col int, v *float64) {
	if v == nil {
		write(col, "")
		return
	}
	write(col, *v)
}

// truncate shortens s to n runes, never splitting a multibyte character.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
