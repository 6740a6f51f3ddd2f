package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kentramx/kentramx-sub001/internal/billing"
	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/listings"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/plans"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/internal/users"
	stripewebhook "github.com/kentramx/kentramx-sub001/internal/webhooks/stripe"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/metrics"
	"github.com/kentramx/kentramx-sub001/pkg/outbox"
	"github.com/kentramx/kentramx-sub001/pkg/redis"
	"github.com/kentramx/kentramx-sub001/pkg/resilience"
)

const webhookScope = "stripe-webhook"

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      redis.IdempotencyStore
	Gateway    gateway.PaymentGateway
	Registerer prometheus.Registerer
}

// Billing is the assembled subscription stack shared by the API and the
// cron worker. Every gateway call made through it runs behind the stripe
// circuit.
type Billing struct {
	Breakers      *resilience.BreakerRegistry
	Gateway       *gateway.Resilient
	Catalog       *plans.Catalog
	Subscriptions subscriptions.Repository
	Changes       subscriptions.ChangeLog
	Reclaimer     *listings.Reclaimer
	Notifier      *notifications.Dispatcher
	Events        *subscriptions.Events
	Dunning       *billing.Dunning
	Service       *billing.Service
	Webhooks      *stripewebhook.Service
	Outbox        *outbox.Repository
}

func NewBilling(params Params) (*Billing, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	reg := params.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	cfg := params.Config
	logg := params.Logger
	conn := params.DB.DB()

	resilienceMetrics := metrics.NewResilienceMetrics(reg)
	breakers := resilience.NewBreakerRegistry(resilience.BreakerConfig{
		FailureThreshold:    cfg.Resilience.BreakerFailures,
		ResetTimeout:        cfg.Resilience.BreakerResetTimeout,
		HalfOpenMaxAttempts: cfg.Resilience.BreakerHalfOpenProbe,
		IsFailure:           gateway.IsRetryable,
	}, time.Now, gateway.BreakerObserver(resilienceMetrics, logg))

	resilient, err := gateway.NewResilient(gateway.ResilientParams{
		Gateway:  params.Gateway,
		Breakers: breakers,
		Retry: resilience.RetryPolicy{
			MaxAttempts:  cfg.Resilience.RetryMaxAttempts,
			InitialDelay: cfg.Resilience.RetryInitialDelay,
			MaxDelay:     cfg.Resilience.RetryMaxDelay,
			Multiplier:   cfg.Resilience.RetryMultiplier,
		},
		Metrics: resilienceMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	catalog, err := plans.NewCatalog(plans.CatalogParams{
		Repo:   plans.NewRepository(conn),
		Prices: resilient,
		Config: cfg.PlanCache,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	subs := subscriptions.NewRepository(conn)
	changes := subscriptions.NewChangeLog(conn)
	listingRepo := listings.NewRepository(conn)
	reclaimer, err := listings.NewReclaimer(listings.ReclaimerParams{
		Listings:      listingRepo,
		Subscriptions: subs,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(conn)
	out := outbox.NewService(outboxRepo, logg)
	dispatcher, err := notifications.NewDispatcher(out, logg)
	if err != nil {
		return nil, err
	}
	events, err := subscriptions.NewEvents(out)
	if err != nil {
		return nil, err
	}

	dunning, err := billing.NewDunning(billing.DunningParams{
		Subscriptions: subs,
		Listings:      reclaimer,
		Notifier:      dispatcher,
		Events:        events,
		Config:        cfg.Billing,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	service, err := billing.NewService(billing.ServiceParams{
		Tx:            params.DB,
		Subscriptions: subs,
		Changes:       changes,
		Trials:        billing.NewTrialRepository(conn),
		Roles:         users.NewRepository(conn),
		Listings:      listingRepo,
		Reclaimer:     reclaimer,
		Catalog:       catalog,
		Gateway:       resilient,
		Notifier:      dispatcher,
		Events:        events,
		Billing:       cfg.Billing,
		Stripe:        cfg.Stripe,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	guard, err := stripewebhook.NewIdempotencyGuard(params.Redis, cfg.Stripe.WebhookTTL, webhookScope)
	if err != nil {
		return nil, err
	}
	webhooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Tx:            params.DB,
		Subscriptions: subs,
		Changes:       changes,
		Catalog:       catalog,
		Gateway:       resilient,
		Reclaimer:     reclaimer,
		Dunning:       dunning,
		Notifier:      dispatcher,
		Events:        events,
		Guard:         guard,
		Metrics:       metrics.NewWebhookMetrics(reg),
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	return &Billing{
		Breakers:      breakers,
		Gateway:       resilient,
		Catalog:       catalog,
		Subscriptions: subs,
		Changes:       changes,
		Reclaimer:     reclaimer,
		Notifier:      dispatcher,
		Events:        events,
		Dunning:       dunning,
		Service:       service,
		Webhooks:      webhooks,
		Outbox:        outboxRepo,
	}, nil
}

// ValidatePrices checks every active plan's configured gateway prices at
// boot when enabled.
func (b *Billing) ValidatePrices(ctx context.Context, cfg config.BillingConfig) error {
	if !cfg.ValidatePrices {
		return nil
	}
	return b.Catalog.ValidatePriceIDs(ctx)
}
