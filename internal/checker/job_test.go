package checker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicecheck/internal/export"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
	"github.com/odyssey-erp/invoicecheck/jobs"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func renameTask(t *testing.T, path string) *asynq.Task {
	t.Helper()
	task, err := jobs.NewRenameInvoiceTask(path)
	require.NoError(t, err)
	return task
}

func TestRenameFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "OM.2026_15.txt", invoiceText)

	move, res, err := newService(t).RenameFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, move.Changed)
	assert.Equal(t, derivedName, res.Filename)
	assert.FileExists(t, filepath.Join(dir, "01.05_Acme_Corp_012345_OM.2026_15.txt"))
	assert.NoFileExists(t, path)
}

func TestRenameFileSkipsLedgerAndCodelessFiles(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t)

	_, _, err := svc.RenameFile(context.Background(), writeFile(t, dir, "Finance invoice.pdf", ledgerPage))
	assert.ErrorIs(t, err, ErrLedgerFile)

	_, res, err := svc.RenameFile(context.Background(), filepath.Join(dir, "scan.pdf"))
	require.Error(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, rename.FieldInvoiceCode, res.Errors[0].Field)
}

func TestRenameJobHandle(t *testing.T) {
	dir := t.TempDir()
	job := NewRenameJob(newService(t), nil, nil)
	path := writeFile(t, dir, "OM.2026_15.txt", invoiceText)

	require.NoError(t, job.Handle(context.Background(), renameTask(t, path)))
	renamed := filepath.Join(dir, "01.05_Acme_Corp_012345_OM.2026_15.txt")
	assert.FileExists(t, renamed)

	require.NoError(t, job.Handle(context.Background(), renameTask(t, renamed)))
	assert.FileExists(t, renamed)
}

func TestRenameJobHandleNonRetryableOutcomes(t *testing.T) {
	dir := t.TempDir()
	job := NewRenameJob(newService(t), nil, nil)
	ctx := context.Background()

	assert.NoError(t, job.Handle(ctx, renameTask(t, writeFile(t, dir, "Finance invoice.txt", ledgerPage))))
	assert.NoError(t, job.Handle(ctx, renameTask(t, writeFile(t, dir, "scan.txt", invoiceText))))
	assert.NoError(t, job.Handle(ctx, renameTask(t, writeFile(t, dir, "OM.2026_16.txt", "Order/Quote\n012345"))))

	writeFile(t, dir, "01.05_Acme_Corp_012345_OM.2026_15.txt", "existing")
	source := writeFile(t, dir, "OM.2026_15.txt", invoiceText)
	assert.NoError(t, job.Handle(ctx, renameTask(t, source)))
	assert.FileExists(t, source)

	err := job.Handle(ctx, renameTask(t, writeFile(t, dir, "PTR.2026_3.txt", " \n ")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRenameJobHandleBadPayload(t *testing.T) {
	job := NewRenameJob(newService(t), nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskRenameInvoice, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskRenameInvoice, []byte(`{"path":" "}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRenameJobHandleMissingFile(t *testing.T) {
	job := NewRenameJob(newService(t), nil, nil)
	err := job.Handle(context.Background(), renameTask(t, filepath.Join(t.TempDir(), "OM.2026_15.pdf")))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestFolderCheckJobHandle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Finance invoice.txt", ledgerPage)
	writeFile(t, dir, "OM.2026_15.txt", invoiceText)
	out := filepath.Join(dir, "reports")

	task, err := jobs.NewCheckFolderTask(jobs.CheckFolderPayload{Dir: dir, OutputDir: out, Zip: true})
	require.NoError(t, err)
	job := NewFolderCheckJob(newService(t), "", nil)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.FileExists(t, filepath.Join(out, export.ResultsCSVName))
	assert.FileExists(t, filepath.Join(out, BundleName))
	assert.NoFileExists(t, filepath.Join(out, export.ResultsXLSXName))
}

func TestFolderCheckJobHandleDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "OM.2026_15.txt", invoiceText)
	fallback := filepath.Join(t.TempDir(), "fallback")

	data, err := json.Marshal(jobs.CheckFolderPayload{Dir: dir})
	require.NoError(t, err)
	job := NewFolderCheckJob(newService(t), fallback, nil)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskCheckFolder, data)))
	assert.FileExists(t, filepath.Join(fallback, export.ResultsCSVName))

	empty := t.TempDir()
	data, err = json.Marshal(jobs.CheckFolderPayload{Dir: empty})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskCheckFolder, data)))
	entries, err := os.ReadDir(empty)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFolderCheckJobHandleErrors(t *testing.T) {
	job := NewFolderCheckJob(newService(t), "", nil)
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskCheckFolder, []byte(`{"dir":""}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	data, err := json.Marshal(jobs.CheckFolderPayload{Dir: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskCheckFolder, data))
	require.Error(t, err)
}
