package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odyssey-erp/invoicecheck/internal/checker"
)

// RenameOptions defines available flags for the rename command. Paths are
// renamed as given; Dir adds every candidate document of a folder.
type RenameOptions struct {
	Dir    string
	Paths  []string
	Stdout io.Writer
	Stderr io.Writer
}

// RenameCommand renames invoices in place to their canonical names. The exit
// code is ExitDiscrepancy when any file could not be renamed.
func (c *CheckCLI) RenameCommand(ctx context.Context, opts RenameOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	paths, err := renameTargets(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rename: %v\n", err)
		return ExitError
	}
	if len(paths) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "rename: --dir or at least one file is required")
		return ExitError
	}

	code := ExitOK
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rename: %v\n", err)
			return ExitError
		}
		move, _, err := c.service.RenameFile(ctx, path)
		base := filepath.Base(path)
		switch {
		case errors.Is(err, checker.ErrLedgerFile):
			continue
		case err != nil:
			code = ExitDiscrepancy
			_, _ = fmt.Fprintf(opts.Stdout, "SKIP %s: %v\n", base, err)
		case move.Changed:
			_, _ = fmt.Fprintf(opts.Stdout, "RENAMED %s -> %s\n", base, filepath.Base(move.To))
		default:
			_, _ = fmt.Fprintf(opts.Stdout, "OK %s\n", base)
		}
	}
	return code
}

func renameTargets(opts RenameOptions) ([]string, error) {
	paths := make([]string, 0, len(opts.Paths))
	for _, p := range opts.Paths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if e.Type().IsRegular() && checker.IsCandidate(e.Name()) {
				found = append(found, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
