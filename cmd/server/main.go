package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "notifydecision/contracts/mq"
	"notifydecision/internal/clock"
	"notifydecision/internal/config"
	"notifydecision/internal/httpserver"
	"notifydecision/internal/mqhandler"
	"notifydecision/internal/repository"
	"notifydecision/internal/service/decision"
	"notifydecision/internal/service/preferences"
	"notifydecision/pkg/circuitbreaker"
	"notifydecision/pkg/db"
	"notifydecision/pkg/logger"
	"notifydecision/pkg/mq"
	pkgredis "notifydecision/pkg/redis"
	"notifydecision/pkg/util"
)

const serviceName = "notify-decision"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Starting notify-decision...",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("port", cfg.Server.Port),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
		zap.Bool("legacy_settings_check", cfg.Decision.LegacySettingsCheck),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to init preference store", zap.Error(err))
	}
	defer store.Close()

	breakerCfg := circuitbreaker.DefaultConfig()
	if cfg.Store.BreakerFailures > 0 {
		breakerCfg.FailureThreshold = cfg.Store.BreakerFailures
	}
	if cfg.Store.BreakerTimeoutSeconds > 0 {
		breakerCfg.Timeout = cfg.Store.BreakerTimeout()
	}
	guarded := repository.NewGuarded(store, breakerCfg, log)

	// Services
	clk := clock.System{}
	engine := decision.NewEngine(guarded, clk, log, decision.Options{
		LegacySettingsCheck: cfg.Decision.LegacySettingsCheck,
	})
	manager := preferences.NewManager(guarded, clk, log)

	// MQ consumer (optional)
	var consumer *mq.Consumer
	consumerDone := make(chan struct{})
	if cfg.MQ.Enabled {
		consumer, err = startConsumer(ctx, cfg, engine, log, consumerDone)
		if err != nil {
			log.Fatal("Failed to init MQ consumer", zap.Error(err))
		}
		defer consumer.Close()
	} else {
		close(consumerDone)
		log.Info("MQ disabled, serving HTTP only")
	}

	// HTTP Server
	router := httpserver.NewRouter(
		httpserver.NewNotificationHandler(engine, log),
		httpserver.NewPreferencesHandler(manager, log),
		guarded,
		cfg.JWT.Secret,
		log,
	)
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notify-decision is fully initialized and running")

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down notify-decision gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("Consumer did not stop before shutdown deadline")
	}

	log.Info("notify-decision shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		log.Info("Opening SQLite preference store", zap.String("path", cfg.Store.SQLitePath))
		return repository.OpenSQLite(ctx, cfg.Store.SQLitePath, log)
	default:
		log.Info("Running database migrations...")
		if err := db.RunMigrations(cfg.DB, log); err != nil {
			return nil, err
		}
		log.Info("Initializing database connection...",
			zap.String("db_host", cfg.DB.Host),
			zap.Int("db_port", cfg.DB.Port),
		)
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			return nil, err
		}
		log.Info("Database connection established successfully")
		return repository.NewPostgresStore(pool, log), nil
	}
}

func startConsumer(ctx context.Context, cfg *config.Config, engine *decision.Engine, log *zap.Logger, done chan struct{}) (*mq.Consumer, error) {
	publisher, err := mq.NewPublisher(cfg.MQ.URL, serviceName)
	if err != nil {
		return nil, err
	}
	if err := publisher.SetupDLQ(mqcontracts.RoutingKeyNotificationEvent); err != nil {
		publisher.Close()
		return nil, err
	}

	opts := mqhandler.Options{MaxRetries: cfg.MQ.MaxRetries}
	if cfg.Redis.Addr != "" {
		rdb, err := pkgredis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, running without dedup and retry counting", zap.Error(err))
		} else {
			ttl := time.Duration(cfg.Redis.DedupTTLSeconds) * time.Second
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			opts.Deduper = util.NewDeduper(rdb, ttl, log)
			opts.RetryCounter = util.NewRetryCounter(rdb, ttl)
		}
	}

	handler := mqhandler.NewNotificationEventHandler(engine, publisher, opts, log)

	queue := cfg.MQ.Queue
	if queue == "" {
		queue = mqcontracts.QueueNotificationEvent
	}
	routingKey := cfg.MQ.RoutingKey
	if routingKey == "" {
		routingKey = mqcontracts.RoutingKeyNotificationEvent
	}

	log.Info("Initializing MQ consumer...",
		zap.String("queue", queue),
		zap.String("routing_key", routingKey),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, serviceName, queue, routingKey, log)
	if err != nil {
		publisher.Close()
		return nil, err
	}
	consumer.SetHandler(handler.Handle)
	consumer.SetRequeueDelay(time.Duration(cfg.MQ.RequeueDelayMS) * time.Millisecond)

	go func() {
		defer close(done)
		defer publisher.Close()
		if err := consumer.StartConsuming(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Consumer stopped", zap.Error(err))
		}
	}()
	log.Info("Consumer started successfully")

	return consumer, nil
}
