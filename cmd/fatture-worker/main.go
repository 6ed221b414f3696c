package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fatture/internal/aggregate"
	"fatture/internal/amqp"
	"fatture/internal/backend"
	"fatture/internal/cli"
	"fatture/internal/ledger"
	applog "fatture/internal/log"
	"fatture/internal/registry"
	"fatture/internal/sheets"
	gsheet "fatture/internal/sheets/google"
	sheetsmem "fatture/internal/sheets/memory"
	"fatture/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent(applog.ComponentWorker)

	logger.Info("Starting fatture-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create storage backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}
	}()

	// The worker reads with no capability grant; aggregation and registry
	// listing are open operations.
	registries := registry.NewService(result.Stores.Registry)
	invoices := ledger.NewService(result.Stores.Ledger, nil)
	engine := aggregate.NewEngine(invoices, registries)

	var writer sheets.ReportWriter
	if os.Getenv("GOOGLE_SPREADSHEET_ID") != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets report mirror enabled")
	} else {
		// Keeps the queue draining in environments without a spreadsheet.
		writer = sheetsmem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	workerCfg := worker.DefaultConfig()
	workerCfg.PollInterval = cfg.WorkerPollInterval
	workerCfg.RefreshInterval = cfg.RefreshInterval
	workerCfg.BatchSize = cfg.WorkerBatchSize
	workerCfg.MaxRetries = cfg.WorkerMaxRetries

	refreshWorker := worker.NewRefreshWorker(result.Stores.Refreshes, engine, writer, workerCfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := refreshWorker.Start(ctx); err != nil {
		logger.Error("Failed to start refresh worker", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			for {
				err := amqpClient.ConsumeInvoiceEvents(gctx, func(event *amqp.InvoiceEvent) error {
					return refreshWorker.HandleInvoiceEvent(gctx, event)
				})
				if gctx.Err() != nil {
					return nil
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Event consumption failed, reconnecting", "error", err)
				}
				if err := amqpClient.Reconnect(gctx); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic refresh only")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker supervision failed", "error", err)
	}

	cli.WaitForShutdown(ctx, done)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := refreshWorker.Stop(stopCtx); err != nil {
		logger.Error("Refresh worker stop error", "error", err)
	}
	logger.Info("Worker stopped gracefully")
}
