package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/inbound/stdio"
	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/sessiontrack/internal/config"
	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
	"github.com/Sentinel-Gate/sessiontrack/internal/port/outbound"
	"github.com/Sentinel-Gate/sessiontrack/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tracker daemon",
	Long: `Start the sessiontrack daemon.

Start and end events arrive over HTTP:
  POST /v1/session/start
  POST /v1/session/end
  GET  /v1/session
  GET  /v1/sessions/completed

With --stdin the daemon also reads newline-delimited "start", "end" and
"status" commands from standard input.

Examples:
  # Start with config file settings
  sessiontrack start

  # In-memory store and debug logging
  sessiontrack start --dev

  # Drive the tracker from another process
  login-watcher | sessiontrack start --stdin`,
	RunE: runStart,
}

var (
	devMode   bool
	withStdin bool
	httpAddr  string
)

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, in-memory store)")
	startCmd.Flags().BoolVar(&withStdin, "stdin", false, "Also read start/end/status commands from standard input")
	startCmd.Flags().StringVar(&httpAddr, "addr", "", "HTTP listen address (overrides server.http_addr)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if cfg, err = config.Finalize(cfg); err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C is a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger, os.Stdin, os.Stdout); err != nil {
		return err
	}

	logger.Info("sessiontrack stopped")
	return nil
}

// run wires every component and blocks until ctx is cancelled or the HTTP
// transport fails. The tracker is stopped after the transports so that
// events accepted before shutdown are still processed.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdin io.Reader, stdout io.Writer) error {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	shutdownTracing, err := setupTracing(cfg, stdout)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("failed to flush spans", "error", err)
		}
	}()
	tracer := otel.Tracer(tracerName)

	reg := http.NewRegistry()
	metrics := http.NewMetrics(reg)

	fanout, history, closeSinks, err := buildCompletionSinks(cfg, b, logger, stdout)
	if err != nil {
		return err
	}
	defer closeSinks()

	registry := session.NewRegistry(b.store, cfg.Store.Key, logger)
	sweeper := service.NewSweeper(registry, fanout, logger,
		service.WithSweepInterval(cfg.SweepIntervalDuration()),
		service.WithSweeperObserver(metrics),
		service.WithSweeperTracer(tracer),
	)
	tracker := service.NewTracker(registry, sweeper, logger,
		service.WithGracePeriod(cfg.GracePeriodDuration()),
		service.WithObserver(metrics),
		service.WithTracer(tracer),
	)
	// The tracker outlives ctx: Stop drains events the transports accepted
	// while shutting down.
	tracker.Start(context.WithoutCancel(ctx))
	defer tracker.Stop()

	logger.Info("sessiontrack starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"store", cfg.Store.Backend,
		"grace_period", cfg.GracePeriodDuration(),
		"sweep_interval", cfg.SweepIntervalDuration(),
		"sinks", strings.Join(fanout.Sinks(), ","),
		"tracing", cfg.Tracing.Output != "",
	)

	if withStdin {
		transport := stdio.NewStdioTransport(tracker,
			stdio.WithIO(stdin, stdout),
			stdio.WithLogger(logger),
		)
		go func() {
			if err := transport.Start(ctx); err != nil {
				logger.Error("stdio transport failed", "error", err)
			}
		}()
		logger.Info("transport mode: stdio")
	}

	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithLogger(logger),
		http.WithMetrics(reg, metrics),
		http.WithHealthChecker(http.NewHealthChecker(tracker, sweeper, cfg.Store.Backend, Version)),
	}
	if history != nil {
		opts = append(opts, http.WithHistory(history))
	}
	transport := http.NewHTTPTransport(tracker, opts...)
	logger.Info("transport mode: HTTP", "addr", cfg.Server.HTTPAddr)
	return transport.Start(ctx)
}

// buildCompletionSinks assembles the fanout for completed sessions and picks
// the queryable history: the sqlite ledger when configured, otherwise the
// in-memory history of the JSON-lines output.
func buildCompletionSinks(cfg *config.Config, b *backend, logger *slog.Logger, stdout io.Writer) (*service.CompletionFanout, outbound.CompletionHistory, func(), error) {
	var filter service.SessionFilter
	if cfg.Completion.Filter != "" {
		f, err := cel.CompileSessionFilter(cfg.Completion.Filter)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("completion.filter: %w", err)
		}
		filter = f
		logger.Info("completion filter enabled", "expression", f.String())
	}

	fanout := service.NewCompletionFanout(logger, filter)
	if cfg.Completion.Log {
		fanout.AddSink("log", service.LogCompletionHandler(logger))
	}

	output, err := openCompletionOutput(cfg, stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	fanout.AddSink("output", output)

	var history outbound.CompletionHistory = output
	if ledger := b.ledger(cfg); ledger != nil {
		fanout.AddSink("ledger", ledger)
		history = ledger
	}

	closeFn := func() {
		if err := output.Close(); err != nil {
			logger.Warn("failed to close completion output", "error", err)
		}
	}
	return fanout, history, closeFn, nil
}

// openCompletionOutput creates the JSON-lines sink. With no output configured
// it only keeps the in-memory history.
func openCompletionOutput(cfg *config.Config, stdout io.Writer) (*memory.CompletionLog, error) {
	size := cfg.Completion.HistorySize
	switch {
	case cfg.Completion.Output == "":
		return memory.NewCompletionLogWithWriter(nil, size), nil

	case cfg.Completion.Output == "stdout":
		return memory.NewCompletionLogWithWriter(stdout, size), nil

	case strings.HasPrefix(cfg.Completion.Output, "file://"):
		path := parseFileURI(cfg.Completion.Output)
		if path == "" {
			return nil, fmt.Errorf("invalid completion output URI: %s", cfg.Completion.Output)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open completion output %s: %w", path, err)
		}
		return memory.NewCompletionLogWithWriter(f, size), nil

	default:
		return nil, errors.New("invalid completion output: must be 'stdout' or 'file://path'")
	}
}

// parseFileURI extracts the file path from a "file:///path" URI.
// On Windows, file:///C:/path becomes C:/path.
func parseFileURI(uri string) string {
	const prefix = "file://"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	path := strings.TrimPrefix(uri, prefix)
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return path
}
