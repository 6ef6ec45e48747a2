package recon

import (
	"strings"
)

// Status classifies one comparison row.
type Status string

const (
	// StatusOK indicates the invoice matched a ledger record with no discrepancies.
	StatusOK Status = "OK"
	// StatusMismatch indicates at least one compared field differs.
	StatusMismatch Status = "MISMATCH"
	// StatusNotFound indicates no ledger record carries the invoice's business key.
	StatusNotFound Status = "NOT_FOUND"
	// StatusFinanceOnly marks a ledger record no invoice matched.
	StatusFinanceOnly Status = "FINANCE_ONLY"
)

// Field is a mismatch tag naming the compared field that failed.
type Field string

const (
	FieldCustomerCode   Field = "customer_code"
	FieldCustomerName   Field = "customer_name"
	FieldInvoiceDate    Field = "invoice_date"
	FieldCurrency       Field = "currency"
	FieldTotalAmount    Field = "total_amount"
	FieldInvoiceMissing Field = "tax_invoice_missing"
)

// DefaultAmountTolerance is the absolute amount difference still treated as equal.
const DefaultAmountTolerance = 0.5

// Config is the immutable policy for one reconciliation run.
type Config struct {
	AmountTolerance float64
}

// DefaultConfig returns the standard tolerance policy.
func DefaultConfig() Config {
	return Config{AmountTolerance: DefaultAmountTolerance}
}

// Mismatch records one failed comparison with a readable reason.
type Mismatch struct {
	Field  Field  `json:"field"`
	Reason string `json:"reason"`
}

// Result is one report row: an invoice with its ledger counterpart, or a
// ledger record that no invoice matched.
type Result struct {
	SalesOrder       string     `json:"sales_order_number"`
	CustomerCode     string     `json:"customer_code"`
	CustomerName     string     `json:"customer_name"`
	InvoiceDate      string     `json:"invoice_date"`
	DueDate          string     `json:"due_date"`
	InvoiceAmount    *float64   `json:"invoice_amount"`
	Currency         string     `json:"currency"`
	LedgerAmount     *float64   `json:"finance_invoice_amount"`
	LedgerCurrency   string     `json:"finance_invoice_currency"`
	AmountDifference *float64   `json:"amount_difference"`
	TaxInvoiceNumber string     `json:"tax_invoice_number"`
	Status           Status     `json:"check_status"`
	Mismatches       []Mismatch `json:"mismatches,omitempty"`
	SourceFile       string     `json:"source_file"`
	LedgerPage       int        `json:"ledger_page"`
}

// MismatchFields joins the mismatch tags with commas, in comparison order.
func (r Result) MismatchFields() string {
	tags := make([]string, 0, len(r.Mismatches))
	for _, m := range r.Mismatches {
		tags = append(tags, string(m.Field))
	}
	return strings.Join(tags, ",")
}

// MismatchReason joins the readable reasons.
func (r Result) MismatchReason() string {
	reasons := make([]string, 0, len(r.Mismatches))
	for _, m := range r.Mismatches {
		reasons = append(reasons, m.Reason)
	}
	return strings.Join(reasons, "; ")
}

// Has reports whether field was flagged.
func (r Result) Has(field Field) bool {
	for _, m := range r.Mismatches {
		if m.Field == field {
			return true
		}
	}
	return false
}

// DuplicateKey lists ledger pages sharing one business key.
type DuplicateKey struct {
	Key   string `json:"key"`
	Pages []int  `json:"pages"`
}

// Outcome is the full reconciliation output.
type Outcome struct {
	Results       []Result       `json:"results"`
	DuplicateKeys []DuplicateKey `json:"duplicate_keys,omitempty"`
}

// Summary counts rows per status.
type Summary struct {
	OK          int `json:"ok"`
	Mismatch    int `json:"mismatch"`
	NotFound    int `json:"not_found"`
	FinanceOnly int `json:"finance_only"`
}

// Summarize tallies results by status.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusOK:
			s.OK++
		case StatusMismatch:
			s.Mismatch++
		case StatusNotFound:
			s.NotFound++
		case StatusFinanceOnly:
			s.FinanceOnly++
		}
	}
	return s
}
