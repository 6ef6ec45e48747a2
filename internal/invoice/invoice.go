// Package invoice decodes individual tax invoice documents.
package invoice

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/odyssey-erp/invoicecheck/internal/normalize"
	"github.com/odyssey-erp/invoicecheck/internal/textscan"
)

// Record is one tax invoice as issued by the seller.
type Record struct {
	TaxInvoiceNumber string   `json:"tax_invoice_number"`
	SalesOrder       string   `json:"sales_order"`
	CustomerCode     string   `json:"customer_code"`
	CustomerName     string   `json:"customer_name"`
	InvoiceDate      string   `json:"invoice_date"`
	DueDate          string   `json:"due_date"`
	Currency         string   `json:"currency"`
	TotalAmount      *float64 `json:"total_amount"`
	SourceIdentity   string   `json:"source_identity"`
}

var (
	taxNumberRe    = regexp.MustCompile(`(?i)Fatura\s+(FT\s+[A-Z]+\.\d{4}/\d+)`)
	orderQuoteRe   = regexp.MustCompile(`(?i)Order\s*/\s*Quote`)
	salesOrderRe   = regexp.MustCompile(`\d{5,}`)
	isoDateRe      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	totalRe        = regexp.MustCompile(`(?i)Total\s*\(\s*(USD|EUR)\s*\)\s*([0-9.,]+)`)
	filenameNameRe = regexp.MustCompile(`^\d{2}\.\d{2}_(.+)_\d+_`)
)

var (
	orderLine    = textscan.NextAfter(orderQuoteRe.MatchString)
	customerLine = textscan.NextAfter(textscan.Equals("Customer"))
	dateLine     = textscan.NextAfter(textscan.Equals("Date", "Data"))
	dueDateLine  = textscan.WithinAfter(textscan.Contains("Due Date", "Vencimento"), 4, textscan.Capture(isoDateRe))
	currencyLine = textscan.PrevBefore(textscan.Contains("Currency", "Moeda"), textscan.Equals("USD", "EUR"))
)

// Parse extracts an invoice record from the full document text. filename is
// the identity used for reporting and the only source of the customer name.
// Every lookup is best effort; missing fields stay empty.
func Parse(text, filename string) Record {
	lines := textscan.Split(text)
	rec := Record{
		CustomerName:   NameFromFilename(filename),
		SourceIdentity: filename,
	}
	if v, ok := textscan.Capture(taxNumberRe)(text); ok {
		rec.TaxInvoiceNumber = v
	}
	if m, ok := orderLine(lines, 0); ok {
		rec.SalesOrder = salesOrderRe.FindString(m.Value)
	}
	if m, ok := customerLine(lines, 0); ok {
		rec.CustomerCode = strings.TrimSpace(m.Value)
	}
	if m, ok := dateLine(lines, 0); ok {
		rec.InvoiceDate = isoDateRe.FindString(m.Value)
	}
	if m, ok := dueDateLine(lines, 0); ok {
		rec.DueDate = m.Value
	}
	if m, ok := currencyLine(lines, 0); ok {
		rec.Currency = m.Value
	}
	rec.TotalAmount, rec.Currency = pickTotal(text, rec.Currency)
	return rec
}

type total struct {
	currency string
	amount   string
}

// pickTotal prefers the total printed in the known currency. Otherwise the
// first total wins and, when the currency was unknown, supplies it.
func pickTotal(text, currency string) (*float64, string) {
	var totals []total
	for _, m := range totalRe.FindAllStringSubmatch(text, -1) {
		totals = append(totals, total{currency: strings.ToUpper(m[1]), amount: m[2]})
	}
	if len(totals) == 0 {
		return nil, currency
	}
	if currency != "" {
		for _, t := range totals {
			if t.currency == currency {
				if v := normalize.AmountPtr(t.amount); v != nil {
					return v, currency
				}
				break
			}
		}
	}
	amount := normalize.AmountPtr(totals[0].amount)
	if currency == "" {
		currency = totals[0].currency
	}
	return amount, currency
}

// NameFromFilename recovers the customer name from a derived filename of the
// form DD.MM_Name_Order_Code.pdf. Other filenames yield "".
func NameFromFilename(filename string) string {
	base := filepath.Base(filename)
	if strings.EqualFold(filepath.Ext(base), ".pdf") {
		base = base[:len(base)-len(".pdf")]
	}
	m := filenameNameRe.FindStringSubmatch(base)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(m[1], "_", " "))
}
