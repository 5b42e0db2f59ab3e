package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiowebux/reviewload/internal/loadgen"
	"github.com/studiowebux/reviewload/internal/remote"
	"github.com/studiowebux/reviewload/internal/tui"
	"go.uber.org/zap"
)

// shutdownTimeout bounds the graceful shutdown of auxiliary HTTP servers
// and how long sessions may take to stop after an interrupt
var shutdownTimeout = 5 * time.Second

// LoadOptions contains options for a load run
type LoadOptions struct {
	Config       *loadgen.Config
	DatabasePath string
	// MetricsAddr exposes Prometheus metrics on /metrics when set
	MetricsAddr string
	// TUI shows the live dashboard instead of log lines
	TUI          bool
	Logger       *zap.Logger
	Output       io.Writer
	OutputFormat string
}

// RunLoad executes a load run until its duration elapses, every session
// finishes its iterations, or the process is interrupted. The final report
// is written to opts.Output.
func RunLoad(ctx context.Context, opts LoadOptions) error {
	if opts.Config == nil {
		return fmt.Errorf("scenario is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validateOutputFormat(opts.OutputFormat); err != nil {
		return err
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config

	client, err := remote.NewClient(remote.Options{
		BaseURL:        cfg.Host,
		Concurrency:    cfg.Users,
		RequestTimeout: cfg.GetRequestTimeout(),
		RatePerSecond:  cfg.RatePerSecond,
		TLS:            cfg.TLS,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	manager, err := loadgen.NewManager(opts.DatabasePath)
	if err != nil {
		return err
	}
	defer manager.Close()

	var registerer prometheus.Registerer
	if opts.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer = registry

		shutdown, err := serveMetrics(opts.MetricsAddr, registry, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	executor, err := loadgen.NewExecutor(&loadgen.ExecutionConfig{
		Config:     cfg,
		Remote:     client,
		Logger:     logger,
		Registerer: registerer,
	}, manager)
	if err != nil {
		return err
	}

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	executor.Start(runCtx)

	if opts.TUI {
		program := tea.NewProgram(
			tui.NewDashboard(executor, cancel, cfg.GetTestDuration()),
			tea.WithAltScreen(),
			tea.WithContext(sigCtx),
		)
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error("dashboard exited", zap.Error(err))
		}
		// The dashboard may exit before the sessions drain
		cancel()
	}

	if err := waitForRun(runCtx, executor, logger); err != nil {
		return fmt.Errorf("load run failed: %w", err)
	}

	run := executor.GetRun()
	if opts.OutputFormat == "" || opts.OutputFormat == OutputText {
		_, err = io.WriteString(opts.Output, tui.RenderSummary(executor.GetStats(), run))
		return err
	}
	report, err := loadReport(manager, run.ID)
	if err != nil {
		return err
	}
	return writeStructured(opts.Output, opts.OutputFormat, report)
}

// waitForRun blocks until the sessions finish. Once ctx is cancelled by an
// interrupt or the dashboard, the sessions get shutdownTimeout to drain
// before the run is finalized without them.
func waitForRun(ctx context.Context, executor *loadgen.Executor, logger *zap.Logger) error {
	select {
	case <-executor.Done():
		return executor.Wait()
	case <-ctx.Done():
		if executor.IsExecutionComplete() {
			return executor.Wait()
		}
	}

	logger.Info("stopping load run", zap.Duration("timeout", shutdownTimeout))
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := executor.StopWithContext(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("sessions did not stop in time, reporting partial results")
		return nil
	}
	return err
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown func
func serveMetrics(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", listener.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}, nil
}
