// Package cli provides common initialization shared by cmd/fundboard and
// cmd/celebration-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundboard/internal/config"
	"fundboard/internal/log"
	"fundboard/internal/source"
	"fundboard/internal/source/google"
	"fundboard/internal/source/httpcsv"
	"fundboard/internal/source/memory"
	"fundboard/internal/storage"
)

// SetupLogger builds the text logger at level and installs it as the slog
// default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig(logger *log.Logger) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		return nil, err
	}
	return cfg, nil
}

// InitSQLite opens the SQLite repository and applies pending migrations.
func InitSQLite(logger *log.Logger, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		return nil, err
	}
	logger.Info("SQLite repository ready", "path", dbPath)
	return repo, nil
}

// NewSource builds the row source selected by DATA_SOURCE.
func NewSource(ctx context.Context, cfg *config.Config) (source.RowSource, error) {
	switch cfg.DataSource {
	case config.SourceCSV:
		return httpcsv.New(cfg.SheetCSVURL, cfg.FetchTimeout)
	case config.SourceSheets:
		return google.New(ctx, google.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
			Timeout:       cfg.FetchTimeout,
			Credentials: google.Credentials{
				ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
				ServiceAccountFile: cfg.GoogleServiceAccountFile,
				OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
				OAuthClientFile:    cfg.GoogleOAuthClientFile,
				OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
				OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
			},
		})
	case config.SourceMemory:
		return memory.NewFromFile(cfg.MemoryCSVPath), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished or timed out.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
