// Command meedd serves the subscription ledger and credit gate over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/meedprogram/meedkit/modules/billing"
	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/config"
	"github.com/meedprogram/meedkit/pkg/credits"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/expiry"
	"github.com/meedprogram/meedkit/pkg/httpserver"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/ledger/pgstore"
	"github.com/meedprogram/meedkit/pkg/lock"
	"github.com/meedprogram/meedkit/pkg/logger"
	"github.com/meedprogram/meedkit/pkg/metrics"
	"github.com/meedprogram/meedkit/pkg/pg"
	"github.com/meedprogram/meedkit/pkg/pricing"
	"github.com/meedprogram/meedkit/pkg/redis"
	"github.com/meedprogram/meedkit/pkg/requestid"
	"github.com/meedprogram/meedkit/pkg/subscription"
	"github.com/meedprogram/meedkit/pkg/treasury"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "meedd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, "meedd"),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)

	owner, err := cfg.owner()
	if err != nil {
		return fmt.Errorf("MEED_OWNER: %w", err)
	}
	consumers, err := cfg.consumers()
	if err != nil {
		return fmt.Errorf("MEED_CONSUMERS: %w", err)
	}
	plans, topUps, err := cfg.catalog()
	if err != nil {
		return err
	}

	var checks []httpserver.Check
	store, closeStore, check, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if check != nil {
		checks = append(checks, *check)
	}

	locker, closeLocker, check, err := openLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()
	if check != nil {
		checks = append(checks, *check)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, metrics.WithClassifier(billing.ErrorKey))

	journalWriter := audit.NewAsyncWriter(audit.NewSlogStorage(log.With(logger.Component("audit"))), audit.AsyncOptions{
		BufferSize: cfg.AuditBuffer,
		OnError: func(err error, events []audit.Event) {
			log.Error("audit batch dropped", logger.Error(err), slog.Int("events", len(events)))
		},
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := journalWriter.Close(closeCtx); err != nil {
			log.Error("audit flush failed", logger.Error(err))
		}
	}()
	journal := audit.NewLogger(journalWriter, audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
		id := requestid.FromContext(ctx)
		return id, id != ""
	}))

	transfer := payoutLog{log: log.With(logger.Component("payout"))}
	// Delegations are per process; a multi-instance deployment needs a shared Registry.
	admins := delegation.NewMemoryRegistry()

	gateOpts := []credits.Option{
		credits.WithOwner(owner),
		credits.WithConsumers(consumers...),
		credits.WithDelegation(admins),
		credits.WithLocker(locker),
		credits.WithAudit(journal),
		credits.WithMetrics(m),
		credits.WithLogger(log),
	}
	if !cfg.TopUpNeedsSubscription {
		gateOpts = append(gateOpts, credits.WithoutSubscriptionRequirement())
	}
	gate := credits.New(store, topUps, transfer, gateOpts...)

	subs := subscription.New(store, pricing.New(plans), gate,
		subscription.WithOwner(owner),
		subscription.WithDelegation(admins),
		subscription.WithLocker(locker),
		subscription.WithAudit(journal),
		subscription.WithMetrics(m),
		subscription.WithLogger(log),
	)
	tr := treasury.New(store, transfer, owner, plans.Currency(),
		treasury.WithLocker(locker),
		treasury.WithAudit(journal),
		treasury.WithLogger(log),
	)

	sweeper := expiry.New(store,
		expiry.WithAudit(journal),
		expiry.WithMetrics(m),
		expiry.WithLogger(log),
	)
	if err := sweeper.Start(cfg.ExpirySchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	r := chi.NewRouter()
	r.Use(requestid.Middleware, m.Middleware)
	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, cfg.ReadyTimeout, checks...))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/", billing.New(subs, gate, tr,
		billing.WithDelegations(admins),
		billing.WithLogger(log),
	).Handle())

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	log.InfoContext(ctx, "meedd starting",
		slog.String("owner", owner.String()),
		slog.String("store", cfg.Store),
		slog.String("locker", cfg.Locker),
		slog.String("currency", plans.Currency()),
		slog.Int("plans", len(plans.All())),
		slog.Int("top_ups", len(topUps.All())),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, r) })
	return g.Wait()
}

func openStore(ctx context.Context, cfg appConfig, log *slog.Logger) (ledger.Store, func(), *httpserver.Check, error) {
	switch cfg.Store {
	case backendMemory:
		log.WarnContext(ctx, "using in-memory ledger; state is lost on restart")
		return ledger.NewMemoryStore(), func() {}, nil, nil
	case backendPostgres:
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, nil, nil, err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if !pgCfg.SkipMigrations {
			if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
				pool.Close()
				return nil, nil, nil, err
			}
		}
		return pgstore.New(pool), pool.Close, &httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)}, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: store %q", errUnknownBackend, cfg.Store)
}

func openLocker(ctx context.Context, cfg appConfig, log *slog.Logger) (lock.Locker, func(), *httpserver.Check, error) {
	switch cfg.Locker {
	case backendMemory:
		return lock.NewMemoryLocker(), func() {}, nil, nil
	case backendRedis:
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, nil, nil, err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				log.Error("redis close failed", logger.Error(err))
			}
		}
		return lock.NewRedisLocker(client, lock.WithLogger(log)), closeClient, &httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)}, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: locker %q", errUnknownBackend, cfg.Locker)
}

// payoutLog settles treasury transfers by logging them for the operator's
// wallet process.
type payoutLog struct {
	log *slog.Logger
}

func (p payoutLog) Transfer(ctx context.Context, to ledger.Address, amount catalog.Money, memo string) error {
	if amount.Amount < 0 {
		return errors.New("meedd: negative payout")
	}
	p.log.InfoContext(ctx, "payout",
		logger.Subscriber(to),
		logger.Amount(amount),
		slog.String("memo", memo),
	)
	return nil
}
