package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odyssey-erp/invoicecheck/internal/bundle"
	"github.com/odyssey-erp/invoicecheck/internal/export"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
)

// BundleName is the default archive name.
const BundleName = "invoice_results.zip"

// ErrLedgerFile is returned when asked to rename the ledger document.
var ErrLedgerFile = errors.New("checker: ledger document is never renamed")

// IsCandidate reports whether a file name is a document the pipeline reads.
func IsCandidate(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return acceptedExtensions[strings.ToLower(filepath.Ext(base))]
}

// LoadFolder reads every candidate document directly inside dir, sorted by name.
func LoadFolder(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("checker: read folder: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && IsCandidate(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	files := make([]File, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("checker: read %s: %w", name, err)
		}
		files = append(files, File{Name: name, Data: data})
	}
	return files, nil
}

// OutputOptions selects the artefacts written by WriteOutputs.
type OutputOptions struct {
	Dir     string
	CSVName string
	BOM     bool
	XLSX    bool
	Zip     bool
}

// WriteOutputs stores the report CSV and, when requested, the XLSX workbook
// and the ZIP bundle in opts.Dir. It returns the paths written.
func WriteOutputs(report Report, opts OutputOptions) ([]string, error) {
	if opts.CSVName == "" {
		opts.CSVName = export.ResultsCSVName
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("checker: create output dir: %w", err)
	}
	var written []string
	write := func(name string, render func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return fmt.Errorf("checker: render %s: %w", name, err)
		}
		path := filepath.Join(opts.Dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("checker: write %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	if err := write(opts.CSVName, func(w io.Writer) error {
		return export.WriteResultsCSV(w, report.Results, export.Options{BOM: opts.BOM})
	}); err != nil {
		return written, err
	}
	if opts.XLSX {
		if err := write(export.ResultsXLSXName, func(w io.Writer) error {
			return export.WriteXLSX(w, report.Workbook())
		}); err != nil {
			return written, err
		}
	}
	if opts.Zip {
		if err := write(BundleName, func(w io.Writer) error {
			return WriteBundle(w, report, export.Options{BOM: opts.BOM})
		}); err != nil {
			return written, err
		}
	}
	return written, nil
}

// WriteBundle archives the results CSV, every renamed invoice under its new
// name and, when any document failed, a failures CSV.
func WriteBundle(w io.Writer, report Report, opts export.Options) error {
	var results bytes.Buffer
	if err := export.WriteResultsCSV(&results, report.Results, opts); err != nil {
		return err
	}
	entries := []bundle.Entry{{Name: export.ResultsCSVName, Data: results.Bytes()}}
	for _, f := range report.Files {
		entries = append(entries, bundle.Entry{Name: f.Name, Data: f.Data})
	}
	if len(report.Failures) > 0 {
		var failures bytes.Buffer
		if err := export.WriteFailuresCSV(&failures, report.Failures); err != nil {
			return err
		}
		entries = append(entries, bundle.Entry{Name: export.FailuresCSVName, Data: failures.Bytes()})
	}
	return bundle.Write(w, entries)
}

// RenameFile extracts the text of the document at path and renames it in
// place to its canonical name. Files without an invoice code are reported
// before any extraction happens.
func (s *Service) RenameFile(ctx context.Context, path string) (rename.Move, rename.Result, error) {
	if s == nil || s.deriver == nil || s.extractor == nil {
		return rename.Move{}, rename.Result{}, ErrNotConfigured
	}
	base := filepath.Base(path)
	if IsLedgerFile(base) {
		return rename.Move{From: path}, rename.Result{Source: base}, ErrLedgerFile
	}
	if _, ok := s.deriver.ParseInvoiceCode(base); !ok {
		res := s.deriver.Derive(base, "")
		return rename.Move{From: path}, res, res.Err()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rename.Move{From: path}, rename.Result{Source: base}, fmt.Errorf("checker: read %s: %w", base, err)
	}
	doc, err := s.extractor.Extract(ctx, base, data)
	if err != nil {
		return rename.Move{From: path}, rename.Result{Source: base}, err
	}
	res := s.deriver.Derive(base, doc.Text())
	move, err := rename.RenameInPlace(ctx, path, res)
	return move, res, err
}
