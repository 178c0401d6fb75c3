package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"ticketsales/config"
	"ticketsales/internal/handlers"
	"ticketsales/internal/services"
	"ticketsales/internal/services/bank"
	"ticketsales/internal/store"
	"ticketsales/monitoring"
	"ticketsales/security"
	"ticketsales/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/redis/go-redis/v9"

	_ "ticketsales/migrations"
)

func Start() error {
	cfg := config.LoadConfig()
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := pocketbase.New()

	if err := ensureDataDir(cfg); err != nil {
		return err
	}

	st, err := store.Open(ctx, store.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DBDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("open ticket store: %w", err)
	}
	defer st.Close()

	// Redis is optional: without it positions are computed on every request
	// and rate limiting is off.
	var redisClient *redis.Client
	var positions *services.PositionCache
	if cfg.RedisURL != "" {
		redisClient, err = utils.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			positions = services.NewPositionCache(redisClient, cfg.PositionCacheTTL)
		}
	}

	var notifier services.Notifier = services.NewLogNotifier(logger)
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pn := services.NewPubNub(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey)
		notifier = services.NewPubNubNotifier(pn)
	}

	var publisher services.EventPublisher = services.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher := services.NewAMQPPublisher(cfg.AMQPURL, cfg.PurchaseQueue, logger)
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	registry := bank.NewBankRegistry(bank.NewFactory())
	if err := registry.RegisterBank(ctx, bank.BankSimulated, bank.SimulatedConfig{DeclineLast4: cfg.BankDeclineLast4}); err != nil {
		return err
	}
	defer registry.Close(context.Background())

	primaryBank, err := registry.GetPrimaryBank()
	if err != nil {
		return err
	}

	monitor := monitoring.NewMonitor()
	ledger := services.NewLedger(st, logger)

	admission := services.NewAdmissionController(st, positions, notifier, monitor, logger, services.AdmissionConfig{
		LeaseTimeout:     cfg.LeaseTimeout,
		MaxAdmitted:      cfg.MaxAdmittedPerEvent,
		SweepInterval:    cfg.LeaseSweepInterval,
		PositionInterval: cfg.QueuePositionUpdate,
	})

	recorderOpts := services.RecorderOptions{
		Store:      st,
		Ledger:     ledger,
		Bank:       primaryBank,
		Notifier:   notifier,
		Publisher:  publisher,
		Monitor:    monitor,
		Logger:     logger,
		BcryptCost: cfg.BcryptCost,
	}
	if cfg.RequireAdmission {
		recorderOpts.Gate = admission
	}
	recorder := services.NewRecorder(recorderOpts)

	h := handlers.Handlers{
		Queue:    handlers.NewQueueHandler(admission, positions),
		Purchase: handlers.NewPurchaseHandler(recorder),
		Event:    handlers.NewEventHandler(st, ledger),
		Admin:    handlers.NewAdminHandler(admission),
		Health:   handlers.NewHealthHandler(st, redisClient),
		Limiter:  security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, logger),
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	app.RootCmd.AddCommand(newIngestCommand(cfg, st, logger))

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		handlers.Register(se, h)

		admission.Start()

		if cfg.EnableMetrics {
			go monitoring.Serve(ctx, cfg.MetricsPort, logger)
		}

		logger.Info("server routes registered",
			"environment", cfg.Environment,
			"max_admitted", cfg.MaxAdmittedPerEvent,
			"lease_timeout", cfg.LeaseTimeout,
		)

		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		logger.Info("shutdown signal received, cleaning up")
		admission.Shutdown()
		cancel()
		return e.Next()
	})

	return app.Start()
}

// ensureDataDir creates the parent directory of a file backed SQLite database.
func ensureDataDir(cfg *config.Config) error {
	if !strings.EqualFold(cfg.DBDriver, string(store.DialectSQLite)) {
		return nil
	}
	path := strings.TrimPrefix(cfg.DBDSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
