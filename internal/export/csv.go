// Package export serialises reconciliation output to CSV and XLSX.
package export

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicecheck/internal/normalize"
	"github.com/odyssey-erp/invoicecheck/internal/recon"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
)

// Default file names used by the CLI and the bundle.
const (
	ResultsCSVName  = "invoice_check_results.csv"
	ResultsXLSXName = "invoice_check_results.xlsx"
	FailuresCSVName = "failures.csv"
)

const utf8BOM = "\ufeff"

// Columns is the fixed result column order.
var Columns = []string{
	"sales_order_number",
	"customer_code",
	"customer_name",
	"invoice_date",
	"invoice_amount",
	"currency",
	"finance_invoice_amount",
	"finance_invoice_currency",
	"amount_difference",
	"tax_invoice_number",
	"check_status",
	"mismatch_fields",
	"source_file",
	"mismatch_reason",
}

var failureColumns = []string{"document", "stage", "error"}

var renameColumns = []string{"source", "derived_filename", "invoice_code", "date", "customer", "order", "errors"}

// Failure is a document excluded from reconciliation.
type Failure struct {
	Document string `json:"document"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// Options tunes CSV output.
type Options struct {
	// BOM prefixes the output with a UTF-8 byte order mark for spreadsheet apps.
	BOM bool
}

// WriteResultsCSV writes one row per result under the fixed header. The header
// is written even when results is empty.
func WriteResultsCSV(w io.Writer, results []recon.Result, opts Options) error {
	if opts.BOM {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return err
		}
	}
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(Columns); err != nil {
		return err
	}
	for _, r := range results {
		if err := writer.Write(Row(r)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFailuresCSV lists documents that failed before reconciliation.
func WriteFailuresCSV(w io.Writer, failures []Failure) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(failureColumns); err != nil {
		return err
	}
	for _, f := range failures {
		if err := writer.Write([]string{f.Document, f.Stage, f.Error}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRenamesCSV lists derived filenames and the reasons others were not derived.
func WriteRenamesCSV(w io.Writer, renames []rename.Result) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(renameColumns); err != nil {
		return err
	}
	for _, r := range renames {
		if err := writer.Write(renameRow(r)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Row renders one result in column order.
func Row(r recon.Result) []string {
	return []string{
		r.SalesOrder,
		r.CustomerCode,
		r.CustomerName,
		r.InvoiceDate,
		FormatAmount(r.InvoiceAmount),
		r.Currency,
		FormatAmount(r.LedgerAmount),
		r.LedgerCurrency,
		FormatAmount(r.AmountDifference),
		r.TaxInvoiceNumber,
		string(r.Status),
		r.MismatchFields(),
		r.SourceFile,
		r.MismatchReason(),
	}
}

// FormatAmount renders an amount with two decimals, or "" when unknown or
// not finite.
func FormatAmount(v *float64) string {
	if v == nil || !normalize.Finite(*v) {
		return ""
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}

func renameRow(r rename.Result) []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, fe := range r.Errors {
		msgs = append(msgs, fe.Error())
	}
	return []string{r.Source, r.Filename, r.InvoiceCode, r.Date, r.Customer, r.Order, strings.Join(msgs, "; ")}
}
