// Package app wires configuration, storage, delivery and the HTTP surfaces
// into a running service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailflock/mailflock/internal/api"
	"github.com/mailflock/mailflock/internal/batch"
	"github.com/mailflock/mailflock/internal/config"
	"github.com/mailflock/mailflock/internal/dkim"
	"github.com/mailflock/mailflock/internal/metrics"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/sendlog"
	"github.com/mailflock/mailflock/internal/smtp"
)

// App is the main application
type App struct {
	config        *config.Config
	senders       *sender.Store
	logDB         *sql.DB
	jobs          *batch.JobManager
	apiServer     *api.Server
	metricsServer *metrics.Server
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	senders, err := sender.OpenStore(cfg.Storage.SendersPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sender store: %w", err)
	}

	logDB, err := sendlog.Open(cfg.Storage.LogPath)
	if err != nil {
		senders.Close()
		return nil, fmt.Errorf("failed to open send log: %w", err)
	}
	journal := sendlog.NewRepository(logDB)

	client := smtp.NewClient(cfg.Server.Hostname, cfg.SMTP.ConnectTimeout, cfg.SMTP.IOTimeout, logger.With("component", "smtp_client"))
	client.SetRecorder(smtp.NewLogRecorder(logger.With("component", "smtp_protocol")))

	var signer batch.Signer
	if cfg.DKIM.Enabled {
		s, err := dkim.Open(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			senders.Close()
			logDB.Close()
			return nil, fmt.Errorf("failed to set up DKIM signing: %w", err)
		}
		signer = s
		logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
	}

	transport := batch.NewSMTPTransport(client, signer)
	runner := batch.NewRunner(transport, cfg.Batch.PaceInterval, logger, journal)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		runner.SetObserver(m)
		metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger.With("component", "metrics"))
	}

	jobs := batch.NewJobManager(runner, senders)
	apiServer := api.NewServer(jobs, senders, journal, &cfg.API, version, logger.With("component", "api"))

	return &App{
		config:        cfg,
		senders:       senders,
		logDB:         logDB,
		jobs:          jobs,
		apiServer:     apiServer,
		metricsServer: metricsServer,
		logger:        logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting mailflock",
		"hostname", a.config.Server.Hostname,
		"api_addr", a.config.API.ListenAddr)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop accepting new batches, then let running ones finish.
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	a.jobs.Wait()

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.senders.Close(); err != nil {
		a.logger.Error("sender store close error", "error", err)
	}
	if err := a.logDB.Close(); err != nil {
		a.logger.Error("send log close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
