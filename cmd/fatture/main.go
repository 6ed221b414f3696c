package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"fatture/internal/aggregate"
	"fatture/internal/amqp"
	"fatture/internal/auth"
	"fatture/internal/backend"
	"fatture/internal/cli"
	"fatture/internal/export"
	apphttp "fatture/internal/http"
	"fatture/internal/ledger"
	"fatture/internal/registry"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

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

	policy, err := auth.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		logger.Error("Failed to load capability policy", "error", err, "path", cfg.PolicyPath)
		os.Exit(1)
	}

	// Event publishing is optional; without a broker the worker's periodic
	// refresh still keeps the mirror current.
	var publisher ledger.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP event publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	authSvc := auth.NewService(result.Stores.Users, auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL), policy)
	defer authSvc.Close()
	registries := registry.NewService(result.Stores.Registry)
	invoices := ledger.NewService(result.Stores.Ledger, publisher)
	reports := aggregate.NewEngine(invoices, registries)
	exporter := export.New(export.Config{RejectEmpty: cfg.ExportRejectEmpty})

	srv := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}, authSvc, registries, invoices, reports, exporter, result.Pinger)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting fatture server", "port", cfg.Port, "backend", backendCfg.Type)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
