package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kentramx/kentramx-sub001/api"
	"github.com/kentramx/kentramx-sub001/api/routes"
	"github.com/kentramx/kentramx-sub001/internal/bootstrap"
	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db"
	"github.com/kentramx/kentramx-sub001/pkg/instance"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/metrics"
	"github.com/kentramx/kentramx-sub001/pkg/migrate"
	"github.com/kentramx/kentramx-sub001/pkg/ratelimit"
	"github.com/kentramx/kentramx-sub001/pkg/redis"
	pkgstripe "github.com/kentramx/kentramx-sub001/pkg/stripe"
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
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}
	stripeGateway, err := gateway.NewStripe(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stack, err := bootstrap.NewBilling(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Gateway:    stripeGateway,
		Registerer: registry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build billing stack", err)
		os.Exit(1)
	}
	if err := stack.ValidatePrices(context.Background(), cfg.Billing); err != nil {
		logg.Error(context.Background(), "plan prices do not match the gateway", err)
		os.Exit(1)
	}

	limiter, err := newLimiter(cfg.RateLimit, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create rate limiter", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.RouterParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Gatherer:       registry,
		HTTPMetrics:    metrics.NewHTTPMetrics(registry),
		Limiter:        limiter,
		Plans:          stack.Catalog,
		Billing:        stack.Service,
		Changes:        stack.Changes,
		Circuits:       stack.Breakers,
		StripeWebhooks: stack.Webhooks,
		StripeSigner:   stripeClient,
	})
	server := api.NewServer(cfg, os.Getenv("PORT"), handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      server.Addr,
		"stripeEnv": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	if err := api.Serve(ctx, server, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func newLimiter(cfg config.RateLimitConfig, store ratelimit.WindowStore) (ratelimit.Limiter, error) {
	if cfg.UseRedis() {
		limiter, err := ratelimit.NewRedisLimiter(store)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	}
	return ratelimit.NewMemoryLimiter(cfg.MemoryMaxClients, cfg.Window), nil
}
