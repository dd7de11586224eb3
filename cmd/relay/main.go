package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/config"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
	"github.com/feral-file/ff-custody-ledger/internal/providers/jetstream"
	"github.com/feral-file/ff-custody-ledger/internal/providers/outbox"
	"github.com/feral-file/ff-custody-ledger/internal/relay"
	"github.com/feral-file/ff-custody-ledger/internal/store"
	"github.com/feral-file/ff-custody-ledger/internal/webhook"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")

	version = "dev"
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadRelayConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "custody-ledger-relay",
			"relay":   cfg.Relay.Name,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Feral File Custody Ledger Relay", zap.String("version", version))

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	dataStore := store.NewPGStore(db)
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	errCh := make(chan error, 2)

	// Expose metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := metrics.Init(reg, version); err != nil {
			logger.FatalCtx(ctx, "Failed to initialize metrics", zap.Error(err))
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.InfoCtx(ctx, "Starting metrics server", zap.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	pubs, err := buildPublishers(ctx, cfg.NATS, cfg.Webhooks, jsonAdapter, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create publishers", zap.Error(err))
	}

	// The ledger writes from another process, so the outbox is polled
	sub := outbox.NewSubscriber(outbox.Config{
		BatchSize:    cfg.Relay.BatchSize,
		PollInterval: cfg.Relay.PollInterval,
	}, dataStore, clock)

	notificationRelay := relay.NewRelay(sub, pubs, store.NewCursorStore(dataStore), relay.Config{
		Name:                 cfg.Relay.Name,
		StartCursor:          cfg.Relay.StartCursor,
		StartFromLatest:      cfg.Relay.StartFromLatest,
		CursorSaveFreq:       uint64(max(cfg.Relay.CursorSaveFreq, 0)),
		CursorSaveDelay:      cfg.Relay.CursorSaveDelay,
		RetryInitialInterval: cfg.Relay.RetryInitialInterval,
		RetryMaxInterval:     cfg.Relay.RetryMaxInterval,
	}, clock)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := notificationRelay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	logger.InfoCtx(ctx, "Relay started", zap.String("name", cfg.Relay.Name), zap.Int("publishers", len(pubs)))

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "relay"))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Run saves the final cursor on its way out; publishers are closed after it returns
	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		logger.WarnCtx(shutdownCtx, "Relay did not stop before the shutdown timeout")
	}
	notificationRelay.Close()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err, zap.String("component", "metrics"))
		}
	}

	logger.Info("Relay stopped")
}

// buildPublishers creates a publisher per configured sink
func buildPublishers(ctx context.Context, natsCfg config.NATSConfig, webhooksCfg config.WebhooksConfig, jsonAdapter adapter.JSON, clock adapter.Clock) ([]messaging.Publisher, error) {
	var pubs []messaging.Publisher

	if natsCfg.URL != "" {
		pub, err := jetstream.NewPublisher(ctx, jetstream.Config{
			URL:            natsCfg.URL,
			StreamName:     natsCfg.StreamName,
			SubjectPrefix:  natsCfg.SubjectPrefix,
			DedupWindow:    natsCfg.DedupWindow,
			MaxReconnects:  natsCfg.MaxReconnects,
			ReconnectWait:  natsCfg.ReconnectWait,
			ConnectionName: natsCfg.ConnectionName,
		}, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			return nil, fmt.Errorf("failed to create jetstream publisher: %w", err)
		}
		pubs = append(pubs, pub)
		logger.InfoCtx(ctx, "Connected to NATS JetStream", zap.String("stream", natsCfg.StreamName))
	}

	if len(webhooksCfg.Endpoints) > 0 {
		httpClient := adapter.NewHTTPClient(webhooksCfg.Timeout, adapter.HTTPRetryConfig{
			InitialInterval: webhooksCfg.RetryInitialInterval,
			MaxInterval:     webhooksCfg.RetryMaxInterval,
			MaxElapsedTime:  webhooksCfg.RetryMaxElapsedTime,
		})
		pub, err := webhook.NewPublisher(webhook.Config{
			Endpoints:      webhooksCfg.Endpoints,
			WorkerPoolSize: webhooksCfg.WorkerPoolSize,
		}, httpClient, clock)
		if err != nil {
			for _, p := range pubs {
				p.Close()
			}
			return nil, fmt.Errorf("failed to create webhook publisher: %w", err)
		}
		pubs = append(pubs, pub)
		logger.InfoCtx(ctx, "Webhook delivery enabled", zap.Int("endpoints", len(webhooksCfg.Endpoints)))
	}

	return pubs, nil
}
