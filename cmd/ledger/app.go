package main

import (
	"context"
	"fmt"

	"payment-ledger/config"
	"payment-ledger/internal/adapter/events"
	"payment-ledger/internal/adapter/queue"
	"payment-ledger/internal/adapter/storage/memory"
	pgStorage "payment-ledger/internal/adapter/storage/postgres"
	redisStorage "payment-ledger/internal/adapter/storage/redis"
	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/internal/service"
	"payment-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewWithFile(cfg.Log.Level, cfg.Log.Pretty, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return cfg, log, nil
}

// ledgerApp is the wired service graph shared by the serve command.
type ledgerApp struct {
	lifecycle      ports.LifecycleService
	query          ports.LedgerQueryService
	rateLimitStore ports.RateLimitStore
	health         []ports.HealthChecker
	closers        []func() error
}

func (a *ledgerApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

type repositories struct {
	payments   ports.PaymentRepository
	refunds    ports.RefundRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	orders     ports.OrderCollaborator
}

func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ledgerApp, error) {
	app := &ledgerApp{}

	repos, err := buildRepositories(ctx, cfg, log, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	var idempCache ports.IdempotencyCache
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		app.closers = append(app.closers, rdb.Close)
		idempCache = redisStorage.NewIdempotencyCache(rdb)
		app.rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		app.health = append(app.health, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("redis disabled: no idempotent replay and no rate limiting")
	}

	var notifier ports.Notifier
	if cfg.Queue.Enabled {
		client := queue.NewClient(cfg.Queue)
		app.closers = append(app.closers, client.Close)
		notifier = queue.NewNotifier(client, cfg.Queue.Queue, cfg.Queue.MaxRetry, log)
	} else {
		notifier = queue.NewNoopNotifier(log)
	}

	var publisher ports.EventPublisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka), log)
		app.closers = append(app.closers, kp.Close)
		publisher = kp
	}

	app.lifecycle = service.NewLifecycleService(service.LifecycleDeps{
		Payments:   repos.payments,
		Refunds:    repos.refunds,
		Audit:      repos.audit,
		Transactor: repos.transactor,
		Orders:     repos.orders,
		Notifier:   notifier,
		Events:     publisher,
		IdempCache: idempCache,
	}, domain.NewCurrencySet(cfg.Ledger.Currencies), cfg.Ledger.IdempotencyTTL, log)
	app.query = service.NewQueryService(repos.payments, repos.refunds, repos.audit)

	return app, nil
}

func buildRepositories(ctx context.Context, cfg *config.Config, log zerolog.Logger, app *ledgerApp) (*repositories, error) {
	if cfg.Database.InMemory() {
		log.Warn().Msg("using in-memory ledger store, data is lost on exit")
		store := memory.New()
		return &repositories{
			payments:   memory.NewPaymentRepo(store),
			refunds:    memory.NewRefundRepo(store),
			audit:      memory.NewAuditRepo(store),
			transactor: store,
			orders:     memory.NewOrderStore(),
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	app.closers = append(app.closers, closerFunc(pool.Close))
	app.health = append(app.health, pgStorage.NewHealthCheck(pool))

	return &repositories{
		payments:   pgStorage.NewPaymentRepo(pool),
		refunds:    pgStorage.NewRefundRepo(pool),
		audit:      pgStorage.NewAuditRepo(pool),
		transactor: pgStorage.NewTransactor(pool, cfg.Database.LockTimeout),
		orders:     pgStorage.NewOrderRepo(pool),
	}, nil
}

func closerFunc(fn func()) func() error {
	return func() error {
		fn()
		return nil
	}
}
