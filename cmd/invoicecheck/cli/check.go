package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/invoicecheck/internal/checker"
)

// Exit codes shared by the commands.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitDiscrepancy = 10
)

// CheckCLI runs the pipeline against local folders.
type CheckCLI struct {
	service *checker.Service
}

// NewCheckCLI wraps a configured pipeline service.
func NewCheckCLI(service *checker.Service) (*CheckCLI, error) {
	if service == nil {
		return nil, errors.New("check cli: service is required")
	}
	return &CheckCLI{service: service}, nil
}

// CheckOptions defines available flags for the check command.
type CheckOptions struct {
	Dir        string
	OutDir     string
	CSVName    string
	XLSX       bool
	Zip        bool
	BOM        bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CheckSummary is the JSON output of the check command.
type CheckSummary struct {
	RunID         string            `json:"run_id"`
	LedgerMissing bool              `json:"ledger_missing"`
	Summary       checker.Summary   `json:"summary"`
	Files         []string          `json:"files"`
	Failures      map[string]string `json:"failures,omitempty"`
}

// CheckCommand checks every document in a folder and writes the report. The
// exit code is ExitDiscrepancy when any row is not OK or the ledger is missing.
func (c *CheckCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "check: --dir is required")
		return ExitError
	}
	files, err := checker.LoadFolder(dir)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitError
	}
	if len(files) == 0 {
		_, _ = fmt.Fprintf(opts.Stderr, "check: no documents found in %s\n", dir)
		return ExitError
	}
	report, err := c.service.CheckFiles(ctx, files)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitError
	}
	out := opts.OutDir
	if out == "" {
		out = dir
	}
	written, err := checker.WriteOutputs(report, checker.OutputOptions{
		Dir:     out,
		CSVName: opts.CSVName,
		BOM:     opts.BOM,
		XLSX:    opts.XLSX,
		Zip:     opts.Zip,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitError
	}

	if opts.JSONOutput {
		summary := CheckSummary{
			RunID:         report.RunID,
			LedgerMissing: report.LedgerMissing,
			Summary:       report.Summary,
			Files:         written,
		}
		if len(report.Failures) > 0 {
			summary.Failures = make(map[string]string, len(report.Failures))
			for _, f := range report.Failures {
				summary.Failures[f.Document] = f.Error
			}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderCheckHuman(opts.Stdout, report, written)
	}

	s := report.Summary
	if report.LedgerMissing || s.Mismatch+s.NotFound+s.FinanceOnly > 0 {
		return ExitDiscrepancy
	}
	return ExitOK
}

func renderCheckHuman(w io.Writer, report checker.Report, written []string) {
	s := report.Summary
	if report.LedgerMissing {
		_, _ = fmt.Fprintln(w, "No finance ledger found; reconciliation skipped.")
	} else {
		_, _ = fmt.Fprintf(w, "Ledger: %s\n", report.LedgerDocument)
	}
	_, _ = fmt.Fprintf(w, "OK: %d  MISMATCH: %d  NOT_FOUND: %d  FINANCE_ONLY: %d\n", s.OK, s.Mismatch, s.NotFound, s.FinanceOnly)
	_, _ = fmt.Fprintf(w, "Renamed: %d  Unrenameable: %d  Failed: %d\n", s.Renamed, s.Unrenameable, s.Failed)
	for _, f := range report.Failures {
		_, _ = fmt.Fprintf(w, "  failed %s (%s): %s\n", f.Document, f.Stage, f.Error)
	}
	for _, path := range written {
		_, _ = fmt.Fprintf(w, "Wrote %s\n", path)
	}
}
