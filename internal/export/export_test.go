package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/invoicecheck/internal/recon"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
)

func amount(v float64) *float64 { return &v }

func sampleResults() []recon.Result {
	return []recon.Result{
		{
			SalesOrder:       "012345",
			CustomerCode:     "777",
			CustomerName:     "Acme Corp",
			InvoiceDate:      "2026-05-01",
			InvoiceAmount:    amount(1002),
			Currency:         "EUR",
			LedgerAmount:     amount(1000),
			LedgerCurrency:   "EUR",
			AmountDifference: amount(-2),
			TaxInvoiceNumber: "FT OM.2026/15",
			Status:           recon.StatusMismatch,
			Mismatches: []recon.Mismatch{
				{Field: recon.FieldTotalAmount, Reason: "total_amount: ledger 1000.00 vs invoice 1002.00"},
			},
			SourceFile: "01.05_Acme_Corp_012345_OM.2026_15.pdf",
		},
		{
			SalesOrder:     "999",
			LedgerAmount:   amount(12.5),
			LedgerCurrency: "USD",
			Status:         recon.StatusFinanceOnly,
			Mismatches:     []recon.Mismatch{{Field: recon.FieldInvoiceMissing, Reason: "missing"}},
		},
	}
}

func TestWriteResultsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, sampleResults(), Options{}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{
		"012345", "777", "Acme Corp", "2026-05-01", "1002.00", "EUR", "1000.00", "EUR", "-2.00",
		"FT OM.2026/15", "MISMATCH", "total_amount", "01.05_Acme_Corp_012345_OM.2026_15.pdf",
		"total_amount: ledger 1000.00 vs invoice 1002.00",
	}, rows[1])

	financeOnly := rows[2]
	assert.Equal(t, "", financeOnly[4])
	assert.Equal(t, "12.50", financeOnly[6])
	assert.Equal(t, "", financeOnly[8])
	assert.Equal(t, "FINANCE_ONLY", financeOnly[10])
	assert.Equal(t, "tax_invoice_missing", financeOnly[11])
}

func TestWriteResultsCSVHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, nil, Options{BOM: true}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\ufeffsales_order_number,"))
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "", FormatAmount(nil))
	assert.Equal(t, "-0.30", FormatAmount(amount(1000-1000.30)))
	assert.Equal(t, "1500.00", FormatAmount(amount(1500)))
	assert.Equal(t, "0.01", FormatAmount(amount(0.005)))
	assert.Equal(t, "", FormatAmount(amount(math.Inf(1))))
	assert.Equal(t, "", FormatAmount(amount(math.NaN())))
}

func TestNonFiniteAmountsExportAsBlank(t *testing.T) {
	results := []recon.Result{{
		SalesOrder:       "12345",
		InvoiceAmount:    amount(math.Inf(1)),
		LedgerAmount:     amount(math.Inf(-1)),
		AmountDifference: amount(math.NaN()),
		Status:           recon.StatusMismatch,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, results, Options{}))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[1][4])
	assert.Equal(t, "", rows[1][6])
	assert.Equal(t, "", rows[1][8])

	var book bytes.Buffer
	require.NoError(t, WriteXLSX(&book, Workbook{Results: results}))
	f, err := excelize.OpenReader(&book)
	require.NoError(t, err)
	defer f.Close()
	cell, err := f.GetCellValue(ResultsSheet, "E2")
	require.NoError(t, err)
	assert.Equal(t, "", cell)
}

func TestWriteFailuresAndRenamesCSV(t *testing.T) {
	var failures bytes.Buffer
	require.NoError(t, WriteFailuresCSV(&failures, []Failure{{Document: "scan.pdf", Stage: "extract", Error: "no text"}}))
	assert.Equal(t, "document,stage,error\nscan.pdf,extract,no text\n", failures.String())

	var renames bytes.Buffer
	require.NoError(t, WriteRenamesCSV(&renames, []rename.Result{
		{Source: "OM.2026_1.pdf", InvoiceCode: "OM.2026_1", Errors: []rename.FieldError{{Field: "order", Message: "missing"}}},
	}))
	rows, err := csv.NewReader(&renames).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "order: missing", rows[1][6])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Workbook{
		Results:  sampleResults(),
		Failures: []Failure{{Document: "scan.pdf", Stage: "extract", Error: "no text"}},
	}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ResultsSheet, FailuresSheet}, f.GetSheetList())

	header, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	require.Len(t, header, 3)
	assert.Equal(t, Columns, header[0])

	status, err := f.GetCellValue(ResultsSheet, "K2")
	require.NoError(t, err)
	assert.Equal(t, "MISMATCH", status)

	doc, err := f.GetCellValue(FailuresSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "scan.pdf", doc)
}
