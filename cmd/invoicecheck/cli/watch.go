package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/odyssey-erp/invoicecheck/internal/checker"
	"github.com/odyssey-erp/invoicecheck/jobs"
)

const defaultSettle = time.Second

// SubmitFunc hands one file over for renaming.
type SubmitFunc func(ctx context.Context, path string) error

// WatchOptions defines available flags for the watch command.
type WatchOptions struct {
	Dir string
	// Once processes the files already present and returns.
	Once bool
	// Settle is the quiet period after the last event on a file before it is
	// submitted, so files still being copied are not read half written.
	Settle time.Duration
	Submit SubmitFunc
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// QueueSubmit enqueues rename tasks. A file already queued is not an error.
func QueueSubmit(client *jobs.Client) SubmitFunc {
	return func(ctx context.Context, path string) error {
		_, err := client.EnqueueRename(ctx, path)
		if jobs.IsDuplicate(err) {
			return nil
		}
		return err
	}
}

// InlineSubmit renames files in the calling process.
func (c *CheckCLI) InlineSubmit(logger *slog.Logger) SubmitFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, path string) error {
		move, res, err := c.service.RenameFile(ctx, path)
		switch {
		case errors.Is(err, checker.ErrLedgerFile):
			return nil
		case err != nil && len(res.Errors) > 0:
			logger.Warn("invoice cannot be renamed", slog.String("path", path), slog.Any("errors", res.Errors))
			return nil
		case err != nil:
			return err
		case move.Changed:
			logger.Info("invoice renamed", slog.String("path", path), slog.String("to", filepath.Base(move.To)))
		}
		return nil
	}
}

// Watch submits every document already in the folder, then every document
// created or rewritten there until ctx ends.
func Watch(ctx context.Context, opts WatchOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	logger := opts.Logger.With(slog.String("component", "watcher"))
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "watch: --dir is required")
		return ExitError
	}
	if opts.Submit == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "watch: no submit target configured")
		return ExitError
	}

	existing, err := renameTargets(RenameOptions{Dir: dir})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "watch: %v\n", err)
		return ExitError
	}
	for _, path := range existing {
		if checker.IsLedgerFile(path) {
			continue
		}
		if err := opts.Submit(ctx, path); err != nil {
			logger.Warn("submit file", slog.String("path", path), slog.Any("error", err))
		}
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Processed %d existing file(s) in %s\n", len(existing), dir)
	if opts.Once {
		return ExitOK
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "watch: %v\n", err)
		return ExitError
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "watch: %v\n", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Watching %s for new documents\n", dir)

	settle := newDebouncer(opts.Settle, func(path string) {
		if ctx.Err() != nil {
			return
		}
		if err := opts.Submit(ctx, path); err != nil {
			logger.Warn("submit file", slog.String("path", path), slog.Any("error", err))
		}
	})
	defer settle.stop()

	for {
		select {
		case <-ctx.Done():
			return ExitOK
		case ev, ok := <-watcher.Events:
			if !ok {
				return ExitOK
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !checker.IsCandidate(ev.Name) || checker.IsLedgerFile(ev.Name) {
				continue
			}
			settle.trigger(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return ExitOK
			}
			logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

// debouncer runs fn for a key once no trigger arrived for delay.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(string)
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration, fn func(string)) *debouncer {
	return &debouncer{delay: delay, fn: fn, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || d.timers[key] != t {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		d.fn(key)
	})
	d.timers[key] = t
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
