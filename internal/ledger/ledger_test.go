package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmePage = `FINANCE INVOICE
Invoice Date: 01.05.2026
Payment Due Date: 31.05.2026
Sales Order: 12345
Account#: 777
Bill To:
Acme Corp Acme Corp
Rua Augusta 10
Total Due: €1000.00 EUR`

func TestParsePageScenario(t *testing.T) {
	rec, ok := ParsePage(acmePage)
	require.True(t, ok)
	assert.Equal(t, "12345", rec.SalesOrder)
	assert.Equal(t, "777", rec.CustomerCode)
	assert.Equal(t, "Acme Corp", rec.CustomerName)
	assert.Equal(t, "2026-05-01", rec.InvoiceDate)
	assert.Equal(t, "2026-05-31", rec.DueDate)
	assert.Equal(t, "EUR", rec.Currency)
	require.NotNil(t, rec.TotalAmount)
	assert.InDelta(t, 1000.00, *rec.TotalAmount, 1e-9)
	assert.Nil(t, rec.Prepayment)
}

func TestParsePageWithoutMarker(t *testing.T) {
	_, ok := ParsePage("Statement summary\nTotal Due: €10.00")
	assert.False(t, ok)
}

func TestParsePageUnspacedLabels(t *testing.T) {
	page := `InvoiceDate: 02.03.2026
SalesOrder: 0099
Account#: 5
BillTo:
Globex
TotalDue: $2,500.50
Prepayment: $500.00`
	rec, ok := ParsePage(page)
	require.True(t, ok)
	assert.Equal(t, "2026-03-02", rec.InvoiceDate)
	assert.Equal(t, "0099", rec.SalesOrder)
	assert.Equal(t, "Globex", rec.CustomerName)
	assert.Equal(t, "USD", rec.Currency)
	require.NotNil(t, rec.TotalDue)
	assert.InDelta(t, 2500.50, *rec.TotalDue, 1e-9)
	require.NotNil(t, rec.TotalAmount)
	assert.InDelta(t, 3000.50, *rec.TotalAmount, 1e-9)
}

func TestParsePageUnknownTotalIgnoresPrepayment(t *testing.T) {
	rec, ok := ParsePage("Invoice Date: 01.01.2026\nPrepayment: €50.00")
	require.True(t, ok)
	assert.NotNil(t, rec.Prepayment)
	assert.Nil(t, rec.TotalAmount)
	assert.Equal(t, "", rec.Currency)
}

func TestParsePageOverflowingTotalIsUnknown(t *testing.T) {
	huge := "1" + strings.Repeat("7", 308) + ".00"
	page := "Invoice Date: 01.01.2026\nTotal Due: €" + huge + " EUR\nPrepayment: €" + huge
	rec, ok := ParsePage(page)
	require.True(t, ok)
	require.NotNil(t, rec.TotalDue)
	require.NotNil(t, rec.Prepayment)
	assert.Nil(t, rec.TotalAmount)
	assert.Equal(t, "EUR", rec.Currency)
}

func TestParsePageCurrencyWithoutSymbol(t *testing.T) {
	rec, ok := ParsePage("Invoice Date: 01.01.2026\nTotal Due: 10.00")
	require.True(t, ok)
	assert.Equal(t, "", rec.Currency)
	require.NotNil(t, rec.TotalAmount)
	assert.InDelta(t, 10.0, *rec.TotalAmount, 1e-9)
}

func TestBillToNameNotDuplicated(t *testing.T) {
	rec, ok := ParsePage("Invoice Date: 01.01.2026\nBill To:\nInitech Solutions Lda")
	require.True(t, ok)
	assert.Equal(t, "Initech", rec.CustomerName)
}

func TestParseDocumentSkipsCoverPages(t *testing.T) {
	records := ParseDocument([]string{"Cover page", acmePage, "", acmePage})
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Page)
	assert.Equal(t, 3, records[1].Page)
}
