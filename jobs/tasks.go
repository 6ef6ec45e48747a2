package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRenameInvoice renames one invoice file in place.
	TaskRenameInvoice = "invoice:rename"
	// TaskCheckFolder runs the full check over a folder and writes the report.
	TaskCheckFolder = "invoice:check_folder"
)

// ErrEmptyPath is returned when a payload names no file or folder.
var ErrEmptyPath = errors.New("jobs: path is required")

// RenameInvoicePayload identifies the file to rename.
type RenameInvoicePayload struct {
	Path string `json:"path"`
}

// CheckFolderPayload describes a folder check and its outputs.
type CheckFolderPayload struct {
	Dir       string `json:"dir"`
	OutputDir string `json:"output_dir,omitempty"`
	XLSX      bool   `json:"xlsx,omitempty"`
	Zip       bool   `json:"zip,omitempty"`
	BOM       bool   `json:"bom,omitempty"`
}

// NewRenameInvoiceTask constructs an Asynq task for renaming one file. The
// path doubles as task id so a file already queued is not queued twice.
func NewRenameInvoiceTask(path string) (*asynq.Task, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}
	data, err := json.Marshal(RenameInvoicePayload{Path: path})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenameInvoice, data, asynq.TaskID(TaskRenameInvoice+":"+path), asynq.MaxRetry(3)), nil
}

// NewCheckFolderTask constructs an Asynq task for a folder check.
func NewCheckFolderTask(payload CheckFolderPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.Dir) == "" {
		return nil, ErrEmptyPath
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCheckFolder, data, asynq.MaxRetry(1)), nil
}
