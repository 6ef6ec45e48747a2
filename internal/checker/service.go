// Package checker runs the full invoice check pipeline: text extraction,
// filename derivation and reconciliation against the finance ledger.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/invoicecheck/internal/export"
	"github.com/odyssey-erp/invoicecheck/internal/invoice"
	jobmetrics "github.com/odyssey-erp/invoicecheck/internal/jobs"
	"github.com/odyssey-erp/invoicecheck/internal/recon"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
	"github.com/odyssey-erp/invoicecheck/internal/textextract"
)

const (
	defaultConcurrency      = 4
	defaultMaxDocumentBytes = 20 << 20
	jobName                 = "check"
)

var acceptedExtensions = map[string]bool{".pdf": true, ".txt": true}

// Config is the immutable policy of one Service.
type Config struct {
	Recon            recon.Config
	Rename           rename.Config
	Concurrency      int
	MaxDocumentBytes int64
}

// DefaultConfig returns the standard tolerance, prefixes and limits.
func DefaultConfig() Config {
	return Config{
		Recon:            recon.DefaultConfig(),
		Rename:           rename.DefaultConfig(),
		Concurrency:      defaultConcurrency,
		MaxDocumentBytes: defaultMaxDocumentBytes,
	}
}

// Service orchestrates check runs.
type Service struct {
	engine      *recon.Engine
	deriver     *rename.Deriver
	extractor   textextract.Extractor
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
	concurrency int
	maxBytes    int64
	now         func() time.Time
	newID       func() string
}

// NewService wires the engine, the deriver and the text extractor. The
// extractor is only needed for raw files.
func NewService(cfg Config, extractor textextract.Extractor, metrics *jobmetrics.Metrics, logger *slog.Logger) (*Service, error) {
	deriver, err := rename.NewDeriver(cfg.Rename)
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "checker"))
	return &Service{
		engine:      recon.NewEngine(cfg.Recon, logger),
		deriver:     deriver,
		extractor:   extractor,
		metrics:     metrics,
		logger:      logger,
		concurrency: cfg.Concurrency,
		maxBytes:    cfg.MaxDocumentBytes,
		now: func() time.Time {
			return time.Now().UTC()
		},
		newID: func() string {
			return uuid.NewString()
		},
	}, nil
}

// Deriver exposes the filename deriver bound to this service.
func (s *Service) Deriver() *rename.Deriver {
	return s.deriver
}

// Check runs the pipeline over documents whose text is already known.
func (s *Service) Check(ctx context.Context, batch *Batch) (Report, error) {
	if s == nil || s.deriver == nil {
		return Report{}, ErrNotConfigured
	}
	if batch == nil {
		return Report{}, ErrNilBatch
	}
	if batch.Ledger == nil && len(batch.Invoices) == 0 {
		return Report{}, ErrNoDocuments
	}
	inputs := make([]invoiceInput, len(batch.Invoices))
	for i, doc := range batch.Invoices {
		inputs[i] = invoiceInput{doc: doc}
	}
	report := s.begin()
	var resultErr error
	tracker := s.metrics.Track(jobName)
	defer func() { _ = tracker.End(resultErr) }()

	resultErr = s.run(ctx, &report, batch.Ledger, inputs)
	if resultErr != nil {
		return Report{}, resultErr
	}
	return report, nil
}

// CheckFiles validates and extracts raw files, then runs the pipeline. The
// ledger is recognised by its file name; documents failing validation or
// extraction are listed in Report.Failures and excluded from every other part
// of the report.
func (s *Service) CheckFiles(ctx context.Context, files []File) (Report, error) {
	if s == nil || s.deriver == nil || s.extractor == nil {
		return Report{}, ErrNotConfigured
	}
	if files == nil {
		return Report{}, ErrNilBatch
	}
	if len(files) == 0 {
		return Report{}, ErrNoDocuments
	}
	report := s.begin()
	var resultErr error
	tracker := s.metrics.Track(jobName)
	defer func() { _ = tracker.End(resultErr) }()

	ledgerIdx := -1
	accepted := make([]int, 0, len(files))
	for i, f := range files {
		if reason := s.validate(f); reason != "" {
			report.Failures = append(report.Failures, export.Failure{Document: f.Name, Stage: StageValidate, Error: reason})
			continue
		}
		if IsLedgerFile(f.Name) {
			if ledgerIdx >= 0 {
				report.Failures = append(report.Failures, export.Failure{
					Document: f.Name,
					Stage:    StageValidate,
					Error:    fmt.Sprintf("ledger already supplied by %s", files[ledgerIdx].Name),
				})
				continue
			}
			ledgerIdx = i
		}
		accepted = append(accepted, i)
	}

	docs := make([]textextract.Document, len(files))
	errs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, i := range accepted {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i], errs[i] = s.extractor.Extract(gctx, files[i].Name, files[i].Data)
			return nil
		})
	}
	if resultErr = g.Wait(); resultErr != nil {
		return Report{}, resultErr
	}
	if resultErr = ctx.Err(); resultErr != nil {
		return Report{}, resultErr
	}

	var ledgerDoc *textextract.Document
	inputs := make([]invoiceInput, 0, len(accepted))
	for _, i := range accepted {
		if errs[i] != nil {
			s.logger.Warn("text extraction failed", slog.String("run_id", report.RunID), slog.String("document", files[i].Name), slog.Any("error", errs[i]))
			report.Failures = append(report.Failures, export.Failure{Document: files[i].Name, Stage: StageExtract, Error: errs[i].Error()})
			continue
		}
		if i == ledgerIdx {
			doc := docs[i]
			ledgerDoc = &doc
			continue
		}
		inputs = append(inputs, invoiceInput{doc: docs[i], data: files[i].Data})
	}

	resultErr = s.run(ctx, &report, ledgerDoc, inputs)
	if resultErr != nil {
		return Report{}, resultErr
	}
	return report, nil
}

type invoiceInput struct {
	doc  textextract.Document
	data []byte
}

type invoiceOutput struct {
	rename rename.Result
	record invoice.Record
}

func (s *Service) begin() Report {
	return Report{
		RunID:     s.newID(),
		StartedAt: s.now(),
		Results:   []recon.Result{},
		Renames:   []rename.Result{},
		Failures:  []export.Failure{},
	}
}

// run derives filenames and extracts invoice records in parallel, keeping
// input order, then reconciles them against the ledger.
func (s *Service) run(ctx context.Context, report *Report, ledgerDoc *textextract.Document, inputs []invoiceInput) error {
	logger := s.logger.With(slog.String("run_id", report.RunID))
	logger.Info("check run started", slog.Int("invoices", len(inputs)), slog.Bool("ledger", ledgerDoc != nil))

	outputs := make([]invoiceOutput, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outputs[i] = s.processInvoice(inputs[i].doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	records := make([]invoice.Record, len(outputs))
	for i, out := range outputs {
		records[i] = out.record
		report.Renames = append(report.Renames, out.rename)
		if !out.rename.OK() {
			logger.Info("invoice cannot be renamed", slog.String("document", out.rename.Source), slog.Any("errors", out.rename.Errors))
			continue
		}
		if inputs[i].data != nil {
			report.Files = append(report.Files, RenamedFile{
				Original: inputs[i].doc.Name,
				Name:     out.rename.Filename,
				Data:     inputs[i].data,
			})
		}
	}

	if ledgerDoc == nil {
		report.LedgerMissing = true
		logger.Warn("no ledger document supplied, reconciliation skipped")
	} else {
		report.LedgerDocument = ledgerDoc.Name
		outcome := s.engine.ReconcilePages(records, ledgerDoc.Pages)
		report.Results = outcome.Results
		report.DuplicateKeys = outcome.DuplicateKeys
	}

	report.FinishedAt = s.now()
	summarize(report)
	s.record(report.Summary)
	logger.Info("check run finished",
		slog.Int("ok", report.Summary.OK),
		slog.Int("mismatch", report.Summary.Mismatch),
		slog.Int("not_found", report.Summary.NotFound),
		slog.Int("finance_only", report.Summary.FinanceOnly),
		slog.Int("renamed", report.Summary.Renamed),
		slog.Int("unrenameable", report.Summary.Unrenameable),
		slog.Int("failed", report.Summary.Failed),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return nil
}

// processInvoice derives the canonical filename and, when it succeeds, reads
// the invoice under that name so the name-from-filename grammar applies.
func (s *Service) processInvoice(doc textextract.Document) invoiceOutput {
	text := doc.Text()
	res := s.deriver.Derive(doc.Name, text)
	identity := doc.Name
	if res.OK() {
		identity = res.Filename
	}
	return invoiceOutput{rename: res, record: invoice.Parse(text, identity)}
}

func (s *Service) validate(f File) string {
	ext := strings.ToLower(filepath.Ext(f.Name))
	switch {
	case strings.TrimSpace(f.Name) == "":
		return "missing file name"
	case !acceptedExtensions[ext]:
		return "not a PDF file"
	case int64(len(f.Data)) > s.maxBytes:
		return fmt.Sprintf("file too large (max %d bytes)", s.maxBytes)
	}
	return ""
}

func (s *Service) record(sum Summary) {
	s.metrics.AddRows(string(recon.StatusOK), sum.OK)
	s.metrics.AddRows(string(recon.StatusMismatch), sum.Mismatch)
	s.metrics.AddRows(string(recon.StatusNotFound), sum.NotFound)
	s.metrics.AddRows(string(recon.StatusFinanceOnly), sum.FinanceOnly)
	s.metrics.AddDocuments(OutcomeRenamed, sum.Renamed)
	s.metrics.AddDocuments(OutcomeUnrenameable, sum.Unrenameable)
	s.metrics.AddDocuments(OutcomeFailed, sum.Failed)
}
