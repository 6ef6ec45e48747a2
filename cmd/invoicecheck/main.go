package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/invoicecheck/cmd/invoicecheck/cli"
	"github.com/odyssey-erp/invoicecheck/internal/app"
	"github.com/odyssey-erp/invoicecheck/internal/checker"
	checkerhttp "github.com/odyssey-erp/invoicecheck/internal/checker/http"
	jobmetrics "github.com/odyssey-erp/invoicecheck/internal/jobs"
	"github.com/odyssey-erp/invoicecheck/internal/observability"
	"github.com/odyssey-erp/invoicecheck/internal/platform/cache"
	"github.com/odyssey-erp/invoicecheck/internal/textextract"
	"github.com/odyssey-erp/invoicecheck/jobs"
)

const usage = `usage: invoicecheck [command] [flags]

commands:
  serve    run the HTTP API (default)
  check    check a folder of invoices against its finance ledger
  rename   rename invoices in place to their canonical names
  watch    rename invoices as they appear in a folder
  jobs     enqueue background tasks or show queue stats`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	code := run(ctx, command, args, cfg, logger)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, command string, args []string, cfg *app.Config, logger *slog.Logger) int {
	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "check":
		return runCheck(ctx, args, cfg, logger)
	case "rename":
		return runRename(ctx, args, cfg, logger)
	case "watch":
		return runWatch(ctx, args, cfg, logger)
	case "jobs":
		return runJobs(ctx, args, cfg)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return cli.ExitOK
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", command, usage)
	return cli.ExitError
}

// buildService wires the pipeline with the remote extractor behind the Redis
// text cache. The returned closer releases the Redis client.
func buildService(ctx context.Context, cfg *app.Config, logger *slog.Logger, metrics *jobmetrics.Metrics) (*checker.Service, func(), error) {
	var redisClient *redis.Client
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("text cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
	}
	closer := func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}

	remote := textextract.NewClient(cfg.TextExtractorURL, cfg.TextExtractorTimeout)
	extractor := textextract.TextFallback{
		Next: textextract.NewCachedExtractor(remote, redisClient, cfg.TextCacheTTL, logger),
	}
	service, err := checker.NewService(cfg.Checker(), extractor, metrics, logger)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return service, closer, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	metrics := observability.NewMetrics()
	service, closeService, err := buildService(ctx, cfg, logger, metrics.Jobs())
	if err != nil {
		logger.Error("init checker", slog.Any("error", err))
		return cli.ExitError
	}
	defer closeService()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := textextract.NewClient(cfg.TextExtractorURL, cfg.TextExtractorTimeout).Ping(pingCtx); err != nil {
		logger.Warn("text extractor unreachable", slog.String("url", cfg.TextExtractorURL), slog.Any("error", err))
	}
	cancelPing()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CheckerHandler: checkerhttp.NewHandler(logger, service, cfg.MaxUploadBytes),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		AccessLog:      true,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	code := cli.ExitOK
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		code = cli.ExitError
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return code
}

func runCheck(ctx context.Context, args []string, cfg *app.Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	dir := fs.String("dir", cfg.WatchDir, "folder holding the finance ledger and the tax invoices")
	out := fs.String("out", cfg.OutputDir, "output folder (defaults to --dir)")
	csvName := fs.String("csv", "", "report file name")
	xlsx := fs.Bool("xlsx", false, "also write an XLSX workbook")
	zip := fs.Bool("zip", false, "also write a ZIP with the report and renamed invoices")
	bom := fs.Bool("bom", false, "prefix CSV output with a UTF-8 byte order mark")
	asJSON := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	service, closeService, err := buildService(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("init checker", slog.Any("error", err))
		return cli.ExitError
	}
	defer closeService()
	c, err := cli.NewCheckCLI(service)
	if err != nil {
		logger.Error("init cli", slog.Any("error", err))
		return cli.ExitError
	}
	return c.CheckCommand(ctx, cli.CheckOptions{
		Dir:        *dir,
		OutDir:     *out,
		CSVName:    *csvName,
		XLSX:       *xlsx,
		Zip:        *zip,
		BOM:        *bom,
		JSONOutput: *asJSON,
	})
}

func runRename(ctx context.Context, args []string, cfg *app.Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	dir := fs.String("dir", "", "rename every invoice in this folder")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	service, closeService, err := buildService(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("init checker", slog.Any("error", err))
		return cli.ExitError
	}
	defer closeService()
	c, err := cli.NewCheckCLI(service)
	if err != nil {
		logger.Error("init cli", slog.Any("error", err))
		return cli.ExitError
	}
	return c.RenameCommand(ctx, cli.RenameOptions{Dir: *dir, Paths: fs.Args()})
}

func runWatch(ctx context.Context, args []string, cfg *app.Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	dir := fs.String("dir", cfg.WatchDir, "folder to watch")
	once := fs.Bool("once", false, "process existing files and exit")
	queue := fs.Bool("queue", false, "enqueue rename tasks for the worker instead of renaming here")
	settle := fs.Duration("settle", time.Second, "quiet period before a new file is processed")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	opts := cli.WatchOptions{Dir: *dir, Once: *once, Settle: *settle, Logger: logger}
	if *queue {
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init queue client", slog.Any("error", err))
			return cli.ExitError
		}
		defer func() { _ = client.Close() }()
		opts.Submit = cli.QueueSubmit(client)
	} else {
		service, closeService, err := buildService(ctx, cfg, logger, nil)
		if err != nil {
			logger.Error("init checker", slog.Any("error", err))
			return cli.ExitError
		}
		defer closeService()
		c, err := cli.NewCheckCLI(service)
		if err != nil {
			logger.Error("init cli", slog.Any("error", err))
			return cli.ExitError
		}
		opts.Submit = c.InlineSubmit(logger)
	}
	return cli.Watch(ctx, opts)
}

func runJobs(ctx context.Context, args []string, cfg *app.Config) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: invoicecheck jobs [enqueue|stats] [flags]")
		return cli.ExitError
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return cli.ExitError
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "stats":
		return jobsCLI.StatsCommand(ctx, os.Stdout, os.Stderr)
	case "enqueue":
		fs := flag.NewFlagSet("jobs enqueue", flag.ContinueOnError)
		task := fs.String("task", "check", "task to enqueue: rename or check")
		path := fs.String("path", "", "file to rename or folder to check")
		out := fs.String("out", cfg.OutputDir, "output folder for folder checks")
		xlsx := fs.Bool("xlsx", false, "also write an XLSX workbook")
		zip := fs.Bool("zip", false, "also write a ZIP bundle")
		bom := fs.Bool("bom", false, "prefix CSV output with a UTF-8 byte order mark")
		if err := fs.Parse(args[1:]); err != nil {
			return cli.ExitError
		}
		info, err := jobsCLI.Trigger(ctx, cli.TriggerOptions{
			Task:      *task,
			Path:      *path,
			OutputDir: *out,
			XLSX:      *xlsx,
			Zip:       *zip,
			BOM:       *bom,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs enqueue: %v\n", err)
			return cli.ExitError
		}
		fmt.Printf("enqueued %s (id %s, queue %s)\n", info.Type, info.ID, info.Queue)
		return cli.ExitOK
	}
	fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", args[0])
	return cli.ExitError
}
