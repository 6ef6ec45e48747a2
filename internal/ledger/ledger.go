// Package ledger decodes finance ledger pages into structured records.
package ledger

import (
	"regexp"
	"strings"

	"github.com/odyssey-erp/invoicecheck/internal/normalize"
	"github.com/odyssey-erp/invoicecheck/internal/textscan"
)

// Record is one ledger entry as known to the payer's accounting system.
type Record struct {
	Page         int      `json:"page"`
	SalesOrder   string   `json:"sales_order"`
	CustomerCode string   `json:"customer_code"`
	CustomerName string   `json:"customer_name"`
	InvoiceDate  string   `json:"invoice_date"`
	DueDate      string   `json:"due_date"`
	Currency     string   `json:"currency"`
	TotalDue     *float64 `json:"total_due"`
	Prepayment   *float64 `json:"prepayment"`
	TotalAmount  *float64 `json:"total_amount"`
}

var (
	invoiceDateMarker = regexp.MustCompile(`Invoice ?Date`)
	invoiceDateRe     = regexp.MustCompile(`(?i)Invoice\s*Date:\s*(\d{2}\.\d{2}\.\d{4})`)
	dueDateRe         = regexp.MustCompile(`(?i)Payment\s*Due\s*Date:\s*(\d{2}\.\d{2}\.\d{4})`)
	salesOrderRe      = regexp.MustCompile(`(?i)Sales\s*Order:\s*(\d+)`)
	accountRe         = regexp.MustCompile(`(?i)Account\s*#:\s*(\d+)`)
	billToRe          = regexp.MustCompile(`(?i)Bill\s*To:`)
	totalWithCodeRe   = regexp.MustCompile(`(?i)Total\s*Due:\s*([€$])?\s*([0-9,]+\.[0-9]{2})\s*(USD|EUR)`)
	totalRe           = regexp.MustCompile(`(?i)Total\s*Due:\s*([€$])?\s*([0-9,]+\.[0-9]{2})`)
	prepaymentRe      = regexp.MustCompile(`(?i)Prepayment:\s*([€$])?\s*([0-9,]+\.[0-9]{2})`)
)

// IsRecordPage reports whether the page carries an invoice-date label.
// Cover and summary pages do not.
func IsRecordPage(text string) bool {
	return invoiceDateMarker.MatchString(text)
}

// ParsePage extracts a record from one page of ledger text. The boolean is
// false for pages that hold no record.
func ParsePage(text string) (Record, bool) {
	if !IsRecordPage(text) {
		return Record{}, false
	}
	rec := Record{
		InvoiceDate:  normalize.Date(capture(invoiceDateRe, text)),
		DueDate:      normalize.Date(capture(dueDateRe, text)),
		SalesOrder:   capture(salesOrderRe, text),
		CustomerCode: capture(accountRe, text),
		CustomerName: billToName(textscan.Split(text)),
	}
	rec.TotalDue, rec.Currency = totalDue(text)
	if m := prepaymentRe.FindStringSubmatch(text); m != nil {
		rec.Prepayment = normalize.AmountPtr(m[2])
	}
	if rec.TotalDue != nil {
		total := *rec.TotalDue
		if rec.Prepayment != nil {
			total += *rec.Prepayment
		}
		if normalize.Finite(total) {
			rec.TotalAmount = &total
		}
	}
	return rec, true
}

// ParseDocument extracts records from every page in order, skipping pages
// without a record. Record.Page is the zero-based page index.
func ParseDocument(pages []string) []Record {
	records := make([]Record, 0, len(pages))
	for i, page := range pages {
		rec, ok := ParsePage(page)
		if !ok {
			continue
		}
		rec.Page = i
		records = append(records, rec)
	}
	return records
}

func capture(re *regexp.Regexp, text string) string {
	v, _ := textscan.Capture(re)(text)
	return v
}

// billToName reads the line after the bill-to label. Layout extraction often
// emits the name twice on one line; in that case the first half is kept,
// otherwise only the first word.
func billToName(lines textscan.Lines) string {
	m, ok := textscan.NextAfter(billToRe.MatchString)(lines, 0)
	if !ok {
		return ""
	}
	words := strings.Fields(m.Value)
	switch {
	case len(words) == 0:
		return ""
	case len(words) == 1:
		return words[0]
	}
	mid := len(words) / 2
	first := strings.Join(words[:mid], " ")
	if first == strings.Join(words[mid:], " ") {
		return first
	}
	return words[0]
}

func totalDue(text string) (*float64, string) {
	if m := totalWithCodeRe.FindStringSubmatch(text); m != nil {
		return normalize.AmountPtr(m[2]), strings.ToUpper(m[3])
	}
	if m := totalRe.FindStringSubmatch(text); m != nil {
		return normalize.AmountPtr(m[2]), currencyForSymbol(m[1])
	}
	return nil, ""
}

func currencyForSymbol(symbol string) string {
	switch symbol {
	case "€":
		return "EUR"
	case "$":
		return "USD"
	}
	return ""
}
