package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
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
	"github.com/feral-file/ff-custody-ledger/internal/api/server"
	"github.com/feral-file/ff-custody-ledger/internal/config"
	"github.com/feral-file/ff-custody-ledger/internal/ledger"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
	"github.com/feral-file/ff-custody-ledger/internal/providers/jetstream"
	"github.com/feral-file/ff-custody-ledger/internal/providers/outbox"
	"github.com/feral-file/ff-custody-ledger/internal/registry"
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
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
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
			"service": "custody-ledger-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Feral File Custody Ledger API", zap.String("version", version))

	// Initialize metrics
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := metrics.Init(reg, version); err != nil {
			logger.FatalCtx(ctx, "Failed to initialize metrics", zap.Error(err))
		}
		gatherer = reg
	}

	// Initialize store
	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to initialize store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}

	adminAddress, registryAddress, err := cfg.Ledger.Addresses()
	if err != nil {
		logger.FatalCtx(ctx, "Invalid ledger addresses", zap.Error(err))
	}

	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	// Start the ledger writer
	l, err := ledger.New(ctx, ledger.Config{
		Name:            cfg.Ledger.Name,
		Symbol:          cfg.Ledger.Symbol,
		Chain:           cfg.Ledger.ChainID,
		RegistryAddress: registryAddress,
		InitialAdmin:    adminAddress,
		QueueSize:       cfg.Ledger.QueueSize,
	}, dataStore, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to start ledger", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Ledger started",
		zap.String("registry", registryAddress.Hex()),
		zap.String("chain", string(cfg.Ledger.ChainID)),
	)

	// Seed the shop allowlist
	if cfg.Ledger.BootstrapPath != "" {
		data, err := registry.LoadBootstrap(cfg.Ledger.BootstrapPath, jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to load bootstrap file",
				zap.Error(err),
				zap.String("path", cfg.Ledger.BootstrapPath))
		}
		applied, err := registry.Apply(ctx, l, data)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to apply bootstrap file", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Applied bootstrap file", zap.Int("authorized_shops", applied))
	}

	errCh := make(chan error, 2)

	// Run the embedded notification relay
	var notificationRelay relay.Relay
	relayDone := make(chan struct{})
	if cfg.Relay.Embedded {
		pubs, err := buildPublishers(ctx, cfg.NATS, cfg.Webhooks, jsonAdapter, clock)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create publishers", zap.Error(err))
		}

		sub := outbox.NewSubscriber(outbox.Config{
			BatchSize:    cfg.Relay.BatchSize,
			PollInterval: cfg.Relay.PollInterval,
		}, dataStore, clock, outbox.WithWakeup(l.Subscribe()))

		notificationRelay = relay.NewRelay(sub, pubs, store.NewCursorStore(dataStore), relayConfig(cfg.Relay), clock)
		go func() {
			defer close(relayDone)
			if err := notificationRelay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("relay: %w", err)
			}
		}()
		logger.InfoCtx(ctx, "Embedded relay started", zap.Int("publishers", len(pubs)))
	}

	srv := server.New(server.Config{
		Debug:          cfg.Debug,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		JWTPublicKey:   cfg.Auth.JWTPublicKey,
		MetricsPath:    cfg.Metrics.Path,
	}, l, gatherer)

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "api"))
	}
	cancel()

	// Don't use the canceled ctx for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("component", "server"))
	}
	if notificationRelay != nil {
		// Run saves the final cursor on its way out; publishers are closed after it returns
		select {
		case <-relayDone:
		case <-shutdownCtx.Done():
			logger.WarnCtx(shutdownCtx, "Relay did not stop before the shutdown timeout")
		}
		notificationRelay.Close()
	}
	if err := l.Close(); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("component", "ledger"))
	}

	logger.Info("API server stopped")
}

// openStore returns the store selected by the configuration
func openStore(ctx context.Context, cfg *config.APIConfig) (store.Store, error) {
	if cfg.Store.Driver != config.StoreDriverPostgres {
		logger.WarnCtx(ctx, "Using in-memory store, state is lost on restart")
		return store.NewMemoryStore(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		return nil, fmt.Errorf("failed to configure connection pool: %w", err)
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	if cfg.Store.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			return nil, err
		}
		logger.InfoCtx(ctx, "Database migrations applied")
	}

	return store.NewPGStore(db), nil
}

func relayConfig(cfg config.RelayConfig) relay.Config {
	return relay.Config{
		Name:                 cfg.Name,
		StartCursor:          cfg.StartCursor,
		StartFromLatest:      cfg.StartFromLatest,
		CursorSaveFreq:       uint64(max(cfg.CursorSaveFreq, 0)),
		CursorSaveDelay:      cfg.CursorSaveDelay,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetryMaxInterval:     cfg.RetryMaxInterval,
	}
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
	}

	return pubs, nil
}
