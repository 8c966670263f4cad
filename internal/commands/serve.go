package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fundboard/internal/amqp"
	"fundboard/internal/cli"
	apphttp "fundboard/internal/http"
	"fundboard/internal/log"
	"fundboard/internal/refresh"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the spreadsheet and serve the dashboard",
		PreRunE: func(*cobra.Command, []string) error {
			return a.setup(true, true)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	logger.Info("Starting fundboard",
		"source", cfg.DataSource,
		"port", cfg.Port,
		"refresh_interval", cfg.RefreshInterval,
		"timezone", cfg.DisplayTimezone)

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	src, err := cli.NewSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init %s source: %w", cfg.DataSource, err)
	}

	orch := refresh.New(src, repo, refresh.Options{Logger: logger})
	if err := orch.Load(ctx); err != nil {
		return err
	}

	srv := apphttp.NewServer(orch, repo, apphttp.Options{
		Addr:         cfg.Addr(),
		Location:     cfg.Location(),
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	})
	orch.Subscribe(srv)

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// The dashboard keeps running without the event feed.
			logger.Error("AMQP unavailable, change events will not be published",
				log.FieldComponent, log.ComponentAMQP, "error", err)
		} else {
			defer client.Close()
			orch.Subscribe(amqp.NewNotifier(client, logger))
			logger.Info("Publishing change events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	sched := refresh.NewScheduler(orch, cfg.RefreshInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler did not stop cleanly", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("fundboard stopped with error", "error", err)
		return err
	}
	runs, skipped, failed := sched.Stats()
	logger.Info("fundboard stopped", "cycles", runs, "skipped", skipped, "failed", failed)
	return nil
}
