package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/invoicecheck/internal/jobs"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
	"github.com/odyssey-erp/invoicecheck/internal/textextract"
	"github.com/odyssey-erp/invoicecheck/jobs"
)

// RenameJob processes rename tasks produced by the folder watcher.
type RenameJob struct {
	service *Service
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewRenameJob constructs a rename job handler.
func NewRenameJob(service *Service, metrics *jobmetrics.Metrics, logger *slog.Logger) *RenameJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenameJob{service: service, metrics: metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. Files that cannot be renamed
// for lack of metadata, or whose target already exists, are not retried.
func (j *RenameJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	var payload jobs.RenameInvoicePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.Path) == "" {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(jobs.TaskRenameInvoice)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := j.logger.With(slog.String("path", payload.Path))
	move, res, err := j.service.RenameFile(ctx, payload.Path)
	switch {
	case err == nil && move.Changed:
		j.metrics.AddDocuments(OutcomeRenamed, 1)
		logger.Info("invoice renamed", slog.String("to", filepath.Base(move.To)))
		return nil
	case err == nil:
		logger.Info("invoice already named correctly")
		return nil
	case errors.Is(err, ErrLedgerFile):
		return nil
	case !res.OK() && len(res.Errors) > 0:
		j.metrics.AddDocuments(OutcomeUnrenameable, 1)
		logger.Warn("invoice cannot be renamed", slog.Any("errors", res.Errors))
		return nil
	case errors.Is(err, rename.ErrTargetExists):
		logger.Warn("rename target exists, skipping", slog.String("target", res.Filename))
		return nil
	case errors.Is(err, textextract.ErrNoText):
		j.metrics.AddDocuments(OutcomeFailed, 1)
		logger.Warn("invoice has no text", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	logger.Error("rename invoice", slog.Any("error", err))
	return err
}

// FolderCheckJob runs scheduled or queued folder checks.
type FolderCheckJob struct {
	service   *Service
	outputDir string
	logger    *slog.Logger
}

// NewFolderCheckJob constructs a folder check handler. outputDir is used when
// a payload names none; an empty value writes next to the documents.
func NewFolderCheckJob(service *Service, outputDir string, logger *slog.Logger) *FolderCheckJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FolderCheckJob{service: service, outputDir: outputDir, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *FolderCheckJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.CheckFolderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.Dir) == "" {
		return asynq.SkipRetry
	}
	logger := j.logger.With(slog.String("dir", payload.Dir))

	files, err := LoadFolder(payload.Dir)
	if err != nil {
		logger.Error("load folder", slog.Any("error", err))
		return err
	}
	if len(files) == 0 {
		logger.Info("folder holds no documents")
		return nil
	}
	report, err := j.service.CheckFiles(ctx, files)
	if err != nil {
		logger.Error("check folder", slog.Any("error", err))
		return err
	}
	out := payload.OutputDir
	if out == "" {
		out = j.outputDir
	}
	if out == "" {
		out = payload.Dir
	}
	written, err := WriteOutputs(report, OutputOptions{Dir: out, BOM: payload.BOM, XLSX: payload.XLSX, Zip: payload.Zip})
	if err != nil {
		logger.Error("write outputs", slog.Any("error", err))
		return err
	}
	logger.Info("folder check written", slog.String("run_id", report.RunID), slog.Any("files", written))
	return nil
}
