// Package export renders invoice listings as spreadsheets.
package export

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

const (
	defaultSheet = "Invoices"
	dateLayout   = "2006-01-02"
)

var header = []interface{}{
	"Invoice number", "Status", "Client", "Description", "Currency", "Amount",
	"Issue date", "Approved at", "Issued at", "Created at",
}

// ExcelExporter writes listings to an xlsx workbook with one sheet
type ExcelExporter struct {
	sheet  string
	logger *zap.Logger
}

// NewExcelExporter creates an exporter. An empty sheet name is replaced by a default.
func NewExcelExporter(sheet string, logger *zap.Logger) *ExcelExporter {
	if sheet == "" {
		sheet = defaultSheet
	}
	return &ExcelExporter{sheet: sheet, logger: logger}
}

// Export streams rows into the sheet and writes the workbook to w. It stops at the first row error.
func (e *ExcelExporter) Export(ctx context.Context, title string, rows iter.Seq2[*entity.Invoice, error], w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := e.sheet
	if title != "" {
		sheet = title
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	n := 0
	for inv, err := range rows {
		if err != nil {
			return n, err
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}

		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return n, err
		}
		if err := sw.SetRow(cell, rowValues(inv)); err != nil {
			return n, fmt.Errorf("failed to write row for %s: %w", inv.InvoiceNumber, err)
		}
		n++
	}

	if err := sw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return n, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Listing exported", zap.String("sheet", sheet), zap.Int("rows", n))
	return n, nil
}

func rowValues(inv *entity.Invoice) []interface{} {
	return []interface{}{
		inv.InvoiceNumber,
		string(inv.Status),
		inv.ClientName,
		inv.Description,
		inv.Currency,
		inv.Amount.InexactFloat64(),
		formatDate(inv.IssueDate, dateLayout),
		formatDate(inv.ApprovedAt, time.RFC3339),
		formatDate(inv.IssuedAt, time.RFC3339),
		inv.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatDate(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(layout)
}

var _ port.ListingExporter = (*ExcelExporter)(nil)
