package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/sourcing-engine/api/controllers"
	"github.com/angelmondragon/sourcing-engine/api/routes"
	"github.com/angelmondragon/sourcing-engine/internal/bids"
	"github.com/angelmondragon/sourcing-engine/internal/diagnostics"
	"github.com/angelmondragon/sourcing-engine/internal/finance"
	"github.com/angelmondragon/sourcing-engine/internal/ledger"
	"github.com/angelmondragon/sourcing-engine/internal/locking"
	"github.com/angelmondragon/sourcing-engine/internal/notifications"
	"github.com/angelmondragon/sourcing-engine/internal/requests"
	"github.com/angelmondragon/sourcing-engine/internal/salesquotes"
	"github.com/angelmondragon/sourcing-engine/pkg/config"
	"github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
	"github.com/angelmondragon/sourcing-engine/pkg/migrate"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
	"github.com/angelmondragon/sourcing-engine/pkg/redis"
	"github.com/angelmondragon/sourcing-engine/pkg/retry"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	deps := routes.Dependencies{
		Probes:         []controllers.ReadinessProbe{{Name: "database", Check: dbClient.Ping}},
		HTTPMetrics:    metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		MetricsHandler: promhttp.Handler(),
	}

	var locker locking.Locker = locking.NewKeyedMutex()
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		deps.Idempotency = redisClient
		deps.Probes = append(deps.Probes, controllers.ReadinessProbe{Name: "redis", Check: redisClient.Ping})

		if cfg.Lock.UsesRedis() {
			locker, err = locking.NewRedisLocker(redisClient, locking.RedisOptions{
				Scope:      "select_winner",
				TTL:        cfg.Lock.TTL,
				Wait:       cfg.Lock.WaitTimeout,
				RetryEvery: cfg.Lock.RetryEvery,
				Logger:     logg,
			})
			if err != nil {
				logg.Error(context.Background(), "failed to create redis locker", err)
				os.Exit(1)
			}
		}
	} else if cfg.Lock.UsesRedis() {
		logg.Error(context.Background(), "redis lock backend requested without redis", errors.New("SOURCING_REDIS_URL or SOURCING_REDIS_ADDR must be set"))
		os.Exit(1)
	}

	rates, err := money.ParseRates(cfg.FX.Rates)
	if err != nil {
		logg.Error(context.Background(), "failed to parse fx rates", err)
		os.Exit(1)
	}
	reporting, err := enums.ParseCurrency(cfg.FX.ReportingCurrency)
	if err != nil {
		logg.Error(context.Background(), "invalid reporting currency", err)
		os.Exit(1)
	}

	clock := func() time.Time { return time.Now().UTC() }
	runner := retry.Runner{
		Timeout: cfg.Engine.OpTimeout,
		Policy: retry.Policy{
			MaxRetries: cfg.Engine.RetryMaxAttempts,
			BaseDelay:  cfg.Engine.RetryBaseDelay,
			MaxDelay:   cfg.Engine.RetryMaxDelay,
		},
	}
	lifecycle := metrics.NewLifecycleMetrics(prometheus.DefaultRegisterer)
	composer := notifications.NewComposer(cfg.Notifier.ConsoleBaseURL)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), clock)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	deps.Requests, err = requests.NewService(requests.ServiceParams{
		Repository: requests.NewRepository(dbClient.DB()),
		Tx:         dbClient,
		Ledger:     ledgerService,
		Outbox:     outboxService,
		Composer:   composer,
		Metrics:    lifecycle,
		Logger:     logg,
		Runner:     runner,
		Clock:      clock,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create request service", err)
		os.Exit(1)
	}

	deps.Bids, err = bids.NewService(bids.ServiceParams{
		Repository:        bids.NewRepository(dbClient.DB()),
		Tx:                dbClient,
		Ledger:            ledgerService,
		Locker:            locker,
		Metrics:           lifecycle,
		Logger:            logg,
		Runner:            runner,
		Rates:             rates,
		ReportingCurrency: reporting,
		Clock:             clock,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid service", err)
		os.Exit(1)
	}

	deps.SalesQuotes, err = salesquotes.NewService(salesquotes.ServiceParams{
		Repository: salesquotes.NewRepository(dbClient.DB()),
		Tx:         dbClient,
		Ledger:     ledgerService,
		Outbox:     outboxService,
		Composer:   composer,
		Metrics:    lifecycle,
		Logger:     logg,
		Runner:     runner,
		Clock:      clock,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sales quote service", err)
		os.Exit(1)
	}

	deps.Finance, err = finance.NewService(finance.ServiceParams{
		Repository:        finance.NewRepository(dbClient.DB()),
		Rates:             rates,
		ReportingCurrency: reporting,
		Logger:            logg,
		Runner:            runner,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create finance service", err)
		os.Exit(1)
	}

	deps.Diagnostics, err = diagnostics.NewService(diagnostics.ServiceParams{
		Store:   diagnostics.NewStore(dbClient.DB()),
		Metrics: metrics.NewDiagnosticsMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
		Runner:  runner,
		Clock:   clock,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create diagnostics service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"addr":  addr,
		"lock":  cfg.Lock.Backend,
		"redis": cfg.Redis.Enabled(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
