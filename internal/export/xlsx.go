package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/invoicecheck/internal/normalize"
	"github.com/odyssey-erp/invoicecheck/internal/recon"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
)

// Sheet names in the XLSX workbook.
const (
	ResultsSheet  = "Results"
	RenamesSheet  = "Renames"
	FailuresSheet = "Failures"
)

// Workbook is everything one run can put into a spreadsheet.
type Workbook struct {
	Results  []recon.Result
	Renames  []rename.Result
	Failures []Failure
}

// WriteXLSX renders the workbook. Amount columns are numeric cells rounded to
// two decimals; unknown amounts stay blank. The Renames and Failures sheets
// are only added when they have rows.
func WriteXLSX(w io.Writer, book Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return err
	}
	if err := writeSheet(f, ResultsSheet, Columns, len(book.Results), func(i int) []interface{} {
		return resultCells(book.Results[i])
	}); err != nil {
		return err
	}
	if len(book.Renames) > 0 {
		if err := writeSheet(f, RenamesSheet, renameColumns, len(book.Renames), func(i int) []interface{} {
			return stringCells(renameRow(book.Renames[i]))
		}); err != nil {
			return err
		}
	}
	if len(book.Failures) > 0 {
		if err := writeSheet(f, FailuresSheet, failureColumns, len(book.Failures), func(i int) []interface{} {
			fl := book.Failures[i]
			return []interface{}{fl.Document, fl.Stage, fl.Error}
		}); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, header []string, n int, row func(int) []interface{}) error {
	if sheet != ResultsSheet {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	headerCells := stringCells(header)
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return fmt.Errorf("export: %s header: %w", sheet, err)
	}
	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func resultCells(r recon.Result) []interface{} {
	return []interface{}{
		r.SalesOrder,
		r.CustomerCode,
		r.CustomerName,
		r.InvoiceDate,
		amountCell(r.InvoiceAmount),
		r.Currency,
		amountCell(r.LedgerAmount),
		r.LedgerCurrency,
		amountCell(r.AmountDifference),
		r.TaxInvoiceNumber,
		string(r.Status),
		r.MismatchFields(),
		r.SourceFile,
		r.MismatchReason(),
	}
}

func amountCell(v *float64) interface{} {
	if v == nil || !normalize.Finite(*v) {
		return nil
	}
	rounded, _ := decimal.NewFromFloat(*v).Round(2).Float64()
	return rounded
}

func stringCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
