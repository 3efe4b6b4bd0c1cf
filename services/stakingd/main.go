package stakingd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stakevault/config"
	"stakevault/core/events"
	"stakevault/observability"
	"stakevault/observability/logging"
	telemetry "stakevault/observability/otel"
	"stakevault/storage"
)

// Main initialises and runs the staking vault daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakingd/config.yaml", "path to stakingd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("STAKEVAULT_ENV"))
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.Setup("stakingd", env, logging.Options{
		Level:      level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	telemetryCfg := telemetry.ConfigFromEnv("stakingd", env)
	if telemetryCfg.Endpoint != "" {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	genesis, err := config.LoadVault(cfg.VaultPath)
	if err != nil {
		return fmt.Errorf("load vault genesis: %w", err)
	}

	metrics := observability.Staking()
	hub := NewHub(metrics, logger)
	emitters := events.MultiEmitter{observability.Events(), hub}
	journal, err := OpenJournal(cfg.Journal, logger)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
		emitters = append(emitters, journal)
	}

	vault, err := OpenVault(db, genesis, WithEmitter(emitters), WithLogger(logger), WithMetrics(metrics))
	if err != nil {
		return err
	}
	if cfg.PauseOnStart {
		status, err := vault.Status(context.Background())
		if err != nil {
			return err
		}
		if err := vault.SetPaused(context.Background(), status.Admin, true); err != nil {
			return fmt.Errorf("pause on start: %w", err)
		}
	}

	server := NewServer(ServerConfig{
		Vault:     vault,
		Auth:      NewAuthenticator(cfg.Auth, logger),
		Limiter:   NewRateLimiter(cfg.RateLimit, metrics),
		Journal:   journal,
		Hub:       hub,
		Metrics:   metrics,
		Logger:    logger,
		ExportDir: cfg.ExportDir,
	})
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("stakingd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		logger.Info("stakingd stopped")
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openStorage(cfg StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case BackendMemory:
		return storage.NewMemDB(), nil
	case BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(cfg.Path, nil)
	case BackendLevelDB:
		return storage.NewLevelDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
