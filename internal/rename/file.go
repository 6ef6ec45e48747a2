package rename

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrTargetExists is returned when another file already holds the derived name.
	ErrTargetExists = errors.New("rename: target already exists")
	// ErrIncomplete is returned when no filename could be derived.
	ErrIncomplete = errors.New("rename: required metadata missing")
)

const (
	renameAttempts = 5
	renameBackoff  = 500 * time.Millisecond
)

// Move is the outcome of renaming one file in place.
type Move struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Changed bool   `json:"changed"`
}

// RenameInPlace renames path to the filename carried by res within the same
// directory, keeping the extension of path. A file already carrying the
// derived name is left untouched.
// Permission errors, typically a file still held open by its writer, are
// retried a few times before giving up.
func RenameInPlace(ctx context.Context, path string, res Result) (Move, error) {
	move := Move{From: path}
	if !res.OK() {
		return move, fmt.Errorf("%w: %w", ErrIncomplete, res.Err())
	}
	name := res.Filename
	if ext := filepath.Ext(path); ext != "" {
		name = strings.TrimSuffix(name, Extension) + ext
	}
	target := filepath.Join(filepath.Dir(path), name)
	move.To = target
	if filepath.Clean(target) == filepath.Clean(path) {
		return move, nil
	}
	if _, err := os.Stat(target); err == nil {
		return move, fmt.Errorf("%w: %s", ErrTargetExists, filepath.Base(target))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return move, fmt.Errorf("rename: stat target: %w", err)
	}

	var err error
	for attempt := 1; attempt <= renameAttempts; attempt++ {
		if err = os.Rename(path, target); err == nil {
			move.Changed = true
			return move, nil
		}
		if !errors.Is(err, fs.ErrPermission) || attempt == renameAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return move, ctx.Err()
		case <-time.After(renameBackoff):
		}
	}
	return move, fmt.Errorf("rename %s: %w", filepath.Base(path), err)
}
