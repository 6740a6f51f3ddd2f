package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kentramx/kentramx-sub001/api/controllers"
	admincontrollers "github.com/kentramx/kentramx-sub001/api/controllers/admin"
	planscontrollers "github.com/kentramx/kentramx-sub001/api/controllers/plans"
	subscriptioncontrollers "github.com/kentramx/kentramx-sub001/api/controllers/subscriptions"
	webhookcontrollers "github.com/kentramx/kentramx-sub001/api/controllers/webhooks"
	"github.com/kentramx/kentramx-sub001/api/middleware"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/metrics"
	"github.com/kentramx/kentramx-sub001/pkg/ratelimit"
	"github.com/kentramx/kentramx-sub001/pkg/redis"
)

type stripeSigner interface {
	SigningSecret() string
}

// RouterParams carries everything the HTTP surface is wired to. Redis is
// optional; a nil Gatherer disables /metrics.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          redis.Pinger
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *metrics.HTTPMetrics
	Limiter        ratelimit.Limiter
	Plans          planscontrollers.PlanLister
	Billing        subscriptioncontrollers.BillingService
	Changes        subscriptioncontrollers.ChangeHistory
	Circuits       admincontrollers.CircuitRegistry
	StripeWebhooks webhookcontrollers.StripeWebhookService
	StripeSigner   stripeSigner
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	planChangePolicy := middleware.NewRateLimitPolicy("change-plan", cfg.RateLimit.Window, cfg.RateLimit.PlanChangeLimit)
	trialPolicy := middleware.NewRateLimitPolicy("trial", cfg.RateLimit.Window, cfg.RateLimit.TrialLimit)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, cfg.RateLimit.CheckoutLimit)
	cancelPolicy := middleware.NewRateLimitPolicy("cancel", cfg.RateLimit.Window, cfg.RateLimit.CancelLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhooks, p.StripeSigner, logg))
		r.Get("/plans", planscontrollers.PlansList(p.Plans, logg))

		r.Route("/subscription", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/", subscriptioncontrollers.SubscriptionFetch(p.Billing, logg))
			r.Get("/changes", subscriptioncontrollers.SubscriptionChanges(p.Changes, logg))
			r.With(middleware.RateLimit(planChangePolicy, p.Limiter, logg)).
				Post("/change-plan", subscriptioncontrollers.SubscriptionChangePlan(p.Billing, logg))
			r.With(middleware.RateLimit(trialPolicy, p.Limiter, logg)).
				Post("/trial", subscriptioncontrollers.SubscriptionStartTrial(p.Billing, logg))
			r.With(middleware.RateLimit(checkoutPolicy, p.Limiter, logg)).
				Post("/checkout", subscriptioncontrollers.SubscriptionCheckout(p.Billing, logg))
			r.With(middleware.RateLimit(cancelPolicy, p.Limiter, logg)).
				Post("/cancel", subscriptioncontrollers.SubscriptionCancel(p.Billing, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Post("/users/{userId}/change-plan", admincontrollers.AdminChangePlan(p.Billing, logg))
		r.Get("/users/{userId}/changes", admincontrollers.AdminChangeHistory(p.Changes, logg))
		r.Route("/circuits", func(r chi.Router) {
			r.Get("/", admincontrollers.AdminCircuitsList(p.Circuits, logg))
			r.Post("/{name}/reset", admincontrollers.AdminCircuitReset(p.Circuits, logg))
		})
	})

	return r
}
