package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/api"
	"github.com/mipworks/algo-control-plane/internal/broker"
	brokermem "github.com/mipworks/algo-control-plane/internal/broker/memory"
	brokerpubsub "github.com/mipworks/algo-control-plane/internal/broker/pubsub"
	"github.com/mipworks/algo-control-plane/internal/config"
	connmem "github.com/mipworks/algo-control-plane/internal/connections/memory"
	"github.com/mipworks/algo-control-plane/internal/dispatch"
	"github.com/mipworks/algo-control-plane/internal/logging"
	"github.com/mipworks/algo-control-plane/internal/metrics"
	orchmem "github.com/mipworks/algo-control-plane/internal/orchestrator/memory"
	"github.com/mipworks/algo-control-plane/internal/provisioner"
	"github.com/mipworks/algo-control-plane/internal/push"
	"github.com/mipworks/algo-control-plane/internal/registry"
	registrymem "github.com/mipworks/algo-control-plane/internal/registry/memory"
	registrypg "github.com/mipworks/algo-control-plane/internal/registry/postgres"
	"github.com/mipworks/algo-control-plane/internal/router"
	"github.com/mipworks/algo-control-plane/internal/service"
	"github.com/mipworks/algo-control-plane/internal/storage"
	storagegcs "github.com/mipworks/algo-control-plane/internal/storage/gcs"
	storagemem "github.com/mipworks/algo-control-plane/internal/storage/memory"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the control-plane API, provisioning workers and result pusher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	metrics.Init()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	b, err := buildBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("close broker", zap.Error(err))
		}
	}()

	artifacts, err := buildArtifacts(ctx, cfg, logger)
	if err != nil {
		return err
	}

	resultQueue, err := b.EnsureQueue(ctx, cfg.Broker.ResultQueue)
	if err != nil {
		return fmt.Errorf("ensure result queue: %w", err)
	}

	prov := provisioner.New(store, b, orchmem.New(), artifacts, provisioner.Config{
		WorkerIdentity:   cfg.Provisioner.WorkerIdentity,
		ResultQueue:      resultQueue,
		APIBase:          cfg.Provisioner.APIBase,
		APIKey:           cfg.Provisioner.APIKey,
		LogRetentionDays: cfg.Provisioner.LogRetentionDays,
	}, logger.Named("provisioner"))

	dispatcher := dispatch.New(prov, dispatch.Options{
		Depth:       cfg.Dispatch.Depth,
		Workers:     cfg.Dispatch.Workers,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
	}, logger.Named("dispatch"))

	svc := service.New(store, dispatcher, service.StaticTokens{
		Admin:  cfg.Auth.AdminToken,
		Reader: cfg.Auth.ReaderToken,
	}, logger.Named("service"))
	jobs := router.New(store, b, logger.Named("router"))

	hub := api.NewEventHub()
	conns := connmem.NewStore()
	pusher := push.New(b, resultQueue, conns, hub, logger.Named("push"))

	go dispatcher.Run(ctx)
	go func() {
		if err := pusher.Run(ctx); err != nil {
			logger.Error("result pusher stopped", zap.Error(err))
		}
	}()

	server := api.NewServer(svc, jobs, hub, conns, logger.Named("api"), nil)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control plane listening", zap.Int("port", cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("control plane stopped")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (registry.Store, func(), error) {
	switch cfg.Registry.Provider {
	case "postgres":
		store, err := registrypg.NewStore(ctx, registrypg.Config{
			DSN:      cfg.Registry.DSN,
			MaxConns: int32(cfg.Registry.MaxConns),
			MinConns: int32(cfg.Registry.MinConns),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres registry: %w", err)
		}
		return store, store.Close, nil
	default:
		return registrymem.NewStore(), func() {}, nil
	}
}

func buildBroker(ctx context.Context, cfg config.Config, logger *zap.Logger) (broker.Broker, error) {
	switch cfg.Broker.Provider {
	case "pubsub":
		b, err := brokerpubsub.New(ctx, brokerpubsub.Config{ProjectID: cfg.Broker.ProjectID}, logger.Named("broker"))
		if err != nil {
			return nil, fmt.Errorf("init pubsub broker: %w", err)
		}
		return b, nil
	default:
		return brokermem.New(cfg.Broker.QueueDepth), nil
	}
}

func buildArtifacts(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Provider, error) {
	switch cfg.Artifacts.Provider {
	case "gcs":
		p, err := storagegcs.New(ctx, cfg.Artifacts.Bucket, logger.Named("artifacts"))
		if err != nil {
			return nil, fmt.Errorf("init gcs artifacts: %w", err)
		}
		return p, nil
	case "memory":
		return storagemem.New(), nil
	default:
		return storage.NoOpProvider{}, nil
	}
}
