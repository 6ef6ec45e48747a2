package checker

import (
	"errors"
	"path/filepath"
	"regexp"
	"time"

	"github.com/odyssey-erp/invoicecheck/internal/export"
	"github.com/odyssey-erp/invoicecheck/internal/recon"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
	"github.com/odyssey-erp/invoicecheck/internal/textextract"
)

var (
	// ErrNilBatch is returned when no batch was supplied.
	ErrNilBatch = errors.New("checker: batch is nil")
	// ErrNoDocuments is returned when a batch holds neither a ledger nor invoices.
	ErrNoDocuments = errors.New("checker: no documents supplied")
	// ErrNotConfigured is returned by a zero Service.
	ErrNotConfigured = errors.New("checker: service not configured")
)

// Failure stages.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
)

// Document outcome labels used for metrics and summaries.
const (
	OutcomeRenamed      = "renamed"
	OutcomeUnrenameable = "unrenameable"
	OutcomeFailed       = "failed"
)

var ledgerFileRe = regexp.MustCompile(`(?i)^finance\s*invoice\.(pdf|txt)$`)

// IsLedgerFile reports whether name designates the finance ledger document.
func IsLedgerFile(name string) bool {
	return ledgerFileRe.MatchString(filepath.Base(name))
}

// Batch is a set of documents whose text is already available.
type Batch struct {
	Ledger   *textextract.Document
	Invoices []textextract.Document
}

// File is a raw uploaded document.
type File struct {
	Name string
	Data []byte
}

// RenamedFile carries the bytes of an invoice under its derived name.
type RenamedFile struct {
	Original string `json:"original"`
	Name     string `json:"name"`
	Data     []byte `json:"-"`
}

// Summary counts the outcomes of one run.
type Summary struct {
	OK           int `json:"ok"`
	Mismatch     int `json:"mismatch"`
	NotFound     int `json:"not_found"`
	FinanceOnly  int `json:"finance_only"`
	Renamed      int `json:"renamed"`
	Unrenameable int `json:"unrenameable"`
	Failed       int `json:"failed"`
}

// Report is the full outcome of one check run.
type Report struct {
	RunID          string               `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	LedgerDocument string               `json:"ledger_document,omitempty"`
	LedgerMissing  bool                 `json:"ledger_missing"`
	Results        []recon.Result       `json:"results"`
	DuplicateKeys  []recon.DuplicateKey `json:"duplicate_keys,omitempty"`
	Renames        []rename.Result      `json:"renames"`
	Failures       []export.Failure     `json:"failures"`
	Summary        Summary              `json:"summary"`
	Files          []RenamedFile        `json:"-"`
}

// Workbook converts the report into its spreadsheet form.
func (r Report) Workbook() export.Workbook {
	return export.Workbook{Results: r.Results, Renames: r.Renames, Failures: r.Failures}
}

func summarize(r *Report) {
	counts := recon.Summarize(r.Results)
	r.Summary = Summary{
		OK:          counts.OK,
		Mismatch:    counts.Mismatch,
		NotFound:    counts.NotFound,
		FinanceOnly: counts.FinanceOnly,
		Failed:      len(r.Failures),
	}
	for _, rn := range r.Renames {
		if rn.OK() {
			r.Summary.Renamed++
		} else {
			r.Summary.Unrenameable++
		}
	}
}
