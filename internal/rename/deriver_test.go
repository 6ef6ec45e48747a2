package rename

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicecheck/internal/textscan"
)

const sampleText = `PORTUGAL TRADING LDA
Rua Augusta 10
Lisboa
Exmo(s) Sr(s)
Globex Trading LLC
Avenue 5
Fatura FT OM.2026/15
Order/Quote
SO-0012345678 EUR
Date
2026-05-01`

func newDeriver(t *testing.T) *Deriver {
	t.Helper()
	d, err := NewDeriver(DefaultConfig())
	require.NoError(t, err)
	return d
}

func TestDeriveSample(t *testing.T) {
	res := newDeriver(t).Derive("OM.2026_15.pdf", sampleText)

	require.Empty(t, res.Errors)
	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
	assert.Equal(t, "OM.2026_15", res.InvoiceCode)
	assert.Equal(t, "2026-05-01", res.RawDate)
	assert.Equal(t, "01.05", res.Date)
	assert.Equal(t, "Globex Trading LLC", res.Customer)
	assert.Equal(t, "00123456", res.Order)
	assert.Equal(t, "01.05_Globex_Trading_LLC_00123456_OM.2026_15.pdf", res.Filename)
}

func TestDeriveIsStableOnRenamedFile(t *testing.T) {
	d := newDeriver(t)
	first := d.Derive("OM.2026_15.pdf", sampleText)
	second := d.Derive(first.Filename, sampleText)
	assert.Equal(t, first.Filename, second.Filename)
}

func TestDeriveMissingCodeStopsEarly(t *testing.T) {
	res := newDeriver(t).Derive("scan.pdf", sampleText)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, FieldInvoiceCode, res.Errors[0].Field)
	assert.Empty(t, res.Filename)
	assert.Empty(t, res.Customer)
	assert.Error(t, res.Err())
}

func TestDeriveReportsEveryMissingField(t *testing.T) {
	res := newDeriver(t).Derive("PTR.2026_3.pdf", "Date 2026-05-01")

	assert.False(t, res.OK())
	assert.Equal(t, "01.05", res.Date)
	fields := []string{}
	for _, fe := range res.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{FieldCustomer, FieldOrder}, fields)
}

func TestDeriveRejectsImpossibleDate(t *testing.T) {
	res := newDeriver(t).Derive("OM.2026_1.pdf", "Date 2026-13-40\nAcme LLC\nOrder: 123456")

	assert.Equal(t, "2026-13-40", res.RawDate)
	assert.Empty(t, res.Date)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, FieldDate, res.Errors[0].Field)
	assert.Empty(t, res.Filename)
}

func TestParseInvoiceCode(t *testing.T) {
	d := newDeriver(t)
	cases := map[string]string{
		"OM.2026_15.pdf":              "OM.2026_15",
		"scan ptr.2025_7 copy.pdf":    "ptr.2025_7",
		"01.05_Acme_1_PTR.2024_9.pdf": "PTR.2024_9",
	}
	for name, want := range cases {
		got, ok := d.ParseInvoiceCode(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := d.ParseInvoiceCode("XX.2026_1.pdf")
	assert.False(t, ok)
}

func TestCustomPrefixes(t *testing.T) {
	d, err := NewDeriver(Config{Prefixes: []string{" INV ", ""}})
	require.NoError(t, err)

	code, ok := d.ParseInvoiceCode("INV.2026_7.pdf")
	require.True(t, ok)
	assert.Equal(t, "INV.2026_7", code)
	_, ok = d.ParseInvoiceCode("OM.2026_7.pdf")
	assert.False(t, ok)

	_, err = NewDeriver(Config{})
	assert.ErrorIs(t, err, ErrNoPrefixes)
}

func TestFindDateFallsBackToBareDate(t *testing.T) {
	d := newDeriver(t)
	got, ok := d.FindDate("Issued on 2026-02-03 in Lisbon")
	require.True(t, ok)
	assert.Equal(t, "2026-02-03", got)

	got, ok = d.FindDate("Data 2026-04-05\nDate 2026-01-01")
	require.True(t, ok)
	assert.Equal(t, "2026-01-01", got)

	_, ok = d.FindDate("no dates here 1999-01-01")
	assert.False(t, ok)
}

func TestFindCustomerStrategies(t *testing.T) {
	d := newDeriver(t)

	greeting := textscan.Split("Invoice\nFirst Buyer\nDear Sir,\nSecond Buyer\nDear Madam\nNORDIC SIA")
	got, ok := d.FindCustomer(greeting)
	require.True(t, ok)
	assert.Equal(t, "Second Buyer", got)

	suffix := textscan.Split("BIG LLC 123456\nPayment due\nNORDIC SIA\nOTHER UAB")
	got, ok = d.FindCustomer(suffix)
	require.True(t, ok)
	assert.Equal(t, "NORDIC SIA", got)

	salutationPrev := textscan.Split("Acme Holdings\nExmo. Sr.\nsales@acme.test")
	got, ok = d.FindCustomer(salutationPrev)
	require.True(t, ok)
	assert.Equal(t, "Acme Holdings", got)

	_, ok = d.FindCustomer(textscan.Split("Payment terms\n123456789"))
	assert.False(t, ok)
}

func TestFindOrder(t *testing.T) {
	d := newDeriver(t)
	cases := []struct {
		text string
		want string
	}{
		{"Order # 55-123456", "123456"},
		{"Order: 123-456", "123"},
		{"Order/Quote SO12345678901", "12345678"},
		{"Order: ABC", "ABC"},
		{"ref 1234567 and 7654321", "1234567"},
	}
	for _, tc := range cases {
		got, ok := d.FindOrder(tc.text)
		require.True(t, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
	_, ok := d.FindOrder("nothing numeric 12345")
	assert.False(t, ok)
}

func TestSafePart(t *testing.T) {
	assert.Equal(t, "Acme_Sons_Lda.", SafePart("  Acme & Sons, Lda.  "))
	assert.Equal(t, "01.05", SafePart("01.05"))
	assert.Equal(t, "", SafePart("  ***  "))
}

func TestLooksLikeName(t *testing.T) {
	cases := map[string]bool{
		"Globex Trading LLC":      true,
		"":                        false,
		"mail@acme.test":          false,
		"https://acme.test":       false,
		"Rua Augusta 10":          false,
		"Tax ID PT500000000":      false,
		"Ref 1234567":             false,
		"12 34":                   false,
		"Payment Terms":           false,
		"Acme Corp Lisbon Branch": false,
	}
	for line, want := range cases {
		assert.Equal(t, want, LooksLikeName(line), line)
	}
}
