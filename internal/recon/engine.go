// Package recon matches tax invoices to finance ledger records by business key
// and reports field-level discrepancies.
package recon

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/odyssey-erp/invoicecheck/internal/invoice"
	"github.com/odyssey-erp/invoicecheck/internal/ledger"
	"github.com/odyssey-erp/invoicecheck/internal/normalize"
)

// Engine reconciles invoice records against ledger records.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine builds an engine bound to cfg. A negative tolerance falls back to
// DefaultAmountTolerance.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.AmountTolerance < 0 {
		cfg.AmountTolerance = DefaultAmountTolerance
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Config returns the policy the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// ReconcilePages extracts ledger records from pages and reconciles them.
func (e *Engine) ReconcilePages(invoices []invoice.Record, pages []string) Outcome {
	return e.Reconcile(invoices, ledger.ParseDocument(pages))
}

// Reconcile produces one row per invoice in input order, followed by one row
// per ledger record no invoice matched, in ledger order.
//
// Ledger records sharing a business key are consumed in ledger order: each
// invoice takes the first record of its key not yet matched, or the last one
// once all are taken.
func (e *Engine) Reconcile(invoices []invoice.Record, records []ledger.Record) Outcome {
	idx := newIndex(records)
	out := Outcome{
		Results:       make([]Result, 0, len(invoices)+len(records)),
		DuplicateKeys: idx.duplicates(records),
	}
	for _, d := range out.DuplicateKeys {
		e.log().Warn("duplicate ledger business key", slog.String("key", d.Key), slog.Any("pages", d.Pages))
	}

	for _, inv := range invoices {
		pos, ok := idx.take(normalize.BusinessKey(inv.SalesOrder))
		if !ok {
			out.Results = append(out.Results, notFound(inv))
			continue
		}
		out.Results = append(out.Results, e.matched(inv, records[pos]))
	}
	for pos, rec := range records {
		if idx.used[pos] {
			continue
		}
		out.Results = append(out.Results, financeOnly(rec))
	}

	e.log().Debug("reconciliation finished",
		slog.Int("invoices", len(invoices)),
		slog.Int("ledger_records", len(records)),
		slog.Int("rows", len(out.Results)))
	return out
}

// Compare checks an invoice against its ledger record and returns the failed
// fields in a fixed order.
func (e *Engine) Compare(inv invoice.Record, rec ledger.Record) []Mismatch {
	var out []Mismatch
	if normalize.BusinessKey(inv.CustomerCode) != normalize.BusinessKey(rec.CustomerCode) {
		out = append(out, Mismatch{
			Field:  FieldCustomerCode,
			Reason: fmt.Sprintf("customer_code: ledger %q vs invoice %q", rec.CustomerCode, inv.CustomerCode),
		})
	}
	invName, recName := normalize.Name(inv.CustomerName), normalize.Name(rec.CustomerName)
	if invName != "" && recName != "" && invName != recName {
		out = append(out, Mismatch{
			Field:  FieldCustomerName,
			Reason: fmt.Sprintf("customer_name: ledger %q vs invoice %q", rec.CustomerName, inv.CustomerName),
		})
	}
	if normalize.Date(inv.InvoiceDate) != normalize.Date(rec.InvoiceDate) {
		out = append(out, Mismatch{
			Field:  FieldInvoiceDate,
			Reason: fmt.Sprintf("invoice_date: ledger %q vs invoice %q", rec.InvoiceDate, inv.InvoiceDate),
		})
	}
	if inv.Currency != "" && rec.Currency != "" && inv.Currency != rec.Currency {
		out = append(out, Mismatch{
			Field:  FieldCurrency,
			Reason: fmt.Sprintf("currency: ledger %s vs invoice %s", rec.Currency, inv.Currency),
		})
	}
	if m, bad := e.compareAmount(inv.TotalAmount, rec.TotalAmount); bad {
		out = append(out, m)
	}
	return out
}

func (e *Engine) compareAmount(invAmount, recAmount *float64) (Mismatch, bool) {
	switch {
	case invAmount == nil && recAmount == nil:
		return Mismatch{Field: FieldTotalAmount, Reason: "total_amount: both amounts unknown"}, true
	case invAmount == nil:
		return Mismatch{Field: FieldTotalAmount, Reason: "total_amount: invoice amount unknown"}, true
	case recAmount == nil:
		return Mismatch{Field: FieldTotalAmount, Reason: "total_amount: ledger amount unknown"}, true
	}
	if math.Abs(*recAmount-*invAmount) > e.cfg.AmountTolerance {
		return Mismatch{
			Field:  FieldTotalAmount,
			Reason: fmt.Sprintf("total_amount: ledger %.2f vs invoice %.2f", *recAmount, *invAmount),
		}, true
	}
	return Mismatch{}, false
}

func (e *Engine) matched(inv invoice.Record, rec ledger.Record) Result {
	row := invoiceRow(inv)
	row.LedgerAmount = rec.TotalAmount
	row.LedgerCurrency = rec.Currency
	row.LedgerPage = rec.Page
	row.AmountDifference = difference(rec.TotalAmount, inv.TotalAmount)
	row.Mismatches = e.Compare(inv, rec)
	row.Status = StatusOK
	if len(row.Mismatches) > 0 {
		row.Status = StatusMismatch
	}
	return row
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger.With(slog.String("component", "recon_engine"))
	}
	return slog.Default().With(slog.String("component", "recon_engine"))
}

func invoiceRow(inv invoice.Record) Result {
	return Result{
		SalesOrder:       inv.SalesOrder,
		CustomerCode:     inv.CustomerCode,
		CustomerName:     inv.CustomerName,
		InvoiceDate:      inv.InvoiceDate,
		DueDate:          inv.DueDate,
		InvoiceAmount:    inv.TotalAmount,
		Currency:         inv.Currency,
		TaxInvoiceNumber: inv.TaxInvoiceNumber,
		SourceFile:       inv.SourceIdentity,
		LedgerPage:       -1,
	}
}

func notFound(inv invoice.Record) Result {
	row := invoiceRow(inv)
	row.Status = StatusNotFound
	return row
}

func financeOnly(rec ledger.Record) Result {
	return Result{
		SalesOrder:     rec.SalesOrder,
		CustomerCode:   rec.CustomerCode,
		CustomerName:   rec.CustomerName,
		InvoiceDate:    rec.InvoiceDate,
		DueDate:        rec.DueDate,
		LedgerAmount:   rec.TotalAmount,
		LedgerCurrency: rec.Currency,
		Status:         StatusFinanceOnly,
		Mismatches: []Mismatch{{
			Field:  FieldInvoiceMissing,
			Reason: "tax_invoice_missing: no tax invoice carries this sales order",
		}},
		LedgerPage: rec.Page,
	}
}

func difference(ledgerAmount, invoiceAmount *float64) *float64 {
	if ledgerAmount == nil || invoiceAmount == nil {
		return nil
	}
	d := *ledgerAmount - *invoiceAmount
	if !normalize.Finite(d) {
		return nil
	}
	return &d
}

// index maps business keys to ledger positions in ledger order.
type index struct {
	byKey map[string][]int
	order []string
	used  []bool
}

func newIndex(records []ledger.Record) *index {
	idx := &index{byKey: make(map[string][]int), used: make([]bool, len(records))}
	for pos, rec := range records {
		key := normalize.BusinessKey(rec.SalesOrder)
		if key == "" {
			continue
		}
		if _, seen := idx.byKey[key]; !seen {
			idx.order = append(idx.order, key)
		}
		idx.byKey[key] = append(idx.byKey[key], pos)
	}
	return idx
}

func (idx *index) take(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	positions := idx.byKey[key]
	if len(positions) == 0 {
		return 0, false
	}
	for _, pos := range positions {
		if !idx.used[pos] {
			idx.used[pos] = true
			return pos, true
		}
	}
	return positions[len(positions)-1], true
}

func (idx *index) duplicates(records []ledger.Record) []DuplicateKey {
	var out []DuplicateKey
	for _, key := range idx.order {
		positions := idx.byKey[key]
		if len(positions) < 2 {
			continue
		}
		pages := make([]int, 0, len(positions))
		for _, pos := range positions {
			pages = append(pages, records[pos].Page)
		}
		out = append(out, DuplicateKey{Key: key, Pages: pages})
	}
	return out
}
