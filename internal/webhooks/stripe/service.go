package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/billing"
	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/listings"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/metrics"
)

const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
	outcomeIgnored   = "ignored"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*gateway.Subscription, error)
}

type planResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	ResolvePrice(ctx context.Context, priceID string) (*models.SubscriptionPlan, enums.BillingCycle, error)
}

type reclaimer interface {
	Reclaim(ctx context.Context, tx *gorm.DB, userID uuid.UUID, plan *models.SubscriptionPlan) (listings.ReclaimResult, error)
}

type dunning interface {
	Evaluate(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (billing.DunningOutcome, error)
	Recover(ctx context.Context, tx *gorm.DB, sub *models.Subscription, plan *models.SubscriptionPlan, episode time.Time, wasSuspended bool) (int, error)
	Suspended(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (int, error)
}

type notifier interface {
	Dispatch(ctx context.Context, tx *gorm.DB, req notifications.Request) (bool, error)
}

type lifecycleEvents interface {
	StatusChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, from enums.SubscriptionStatus, source, occurrence string) error
	PlanChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, change *models.SubscriptionChange) error
}

type ServiceParams struct {
	Tx            txRunner
	Subscriptions subscriptions.Repository
	Changes       subscriptions.ChangeLog
	Catalog       planResolver
	Gateway       subscriptionFetcher
	Reclaimer     reclaimer
	Dunning       dunning
	Notifier      notifier
	Events        lifecycleEvents
	Guard         *IdempotencyGuard
	Metrics       *metrics.WebhookMetrics
	Logger        *logger.Logger
}

// Service reconciles local subscriptions with Stripe lifecycle events. The
// gateway owns status: every event is applied as a snapshot upserted by
// gateway subscription id, never as a delta.
type Service struct {
	tx        txRunner
	subs      subscriptions.Repository
	changes   subscriptions.ChangeLog
	catalog   planResolver
	gateway   subscriptionFetcher
	reclaimer reclaimer
	dunning   dunning
	notifier  notifier
	events    lifecycleEvents
	guard     *IdempotencyGuard
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	case params.Changes == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "change log required")
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	case params.Reclaimer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reclaimer required")
	case params.Dunning == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dunning required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	case params.Events == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lifecycle events required")
	case params.Guard == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		tx:        params.Tx,
		subs:      params.Subscriptions,
		changes:   params.Changes,
		catalog:   params.Catalog,
		gateway:   params.Gateway,
		reclaimer: params.Reclaimer,
		dunning:   params.Dunning,
		notifier:  params.Notifier,
		events:    params.Events,
		guard:     params.Guard,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// delivery describes the event a snapshot came from.
type delivery struct {
	eventID   string
	eventType string
	at        time.Time
	// fresh snapshots were fetched from the gateway while handling the event.
	fresh   bool
	deleted bool
	invoice *invoiceFacts
	source  string
}

func (d delivery) origin() string {
	if d.source != "" {
		return d.source
	}
	return subscriptions.SourceWebhook
}

// HandleEvent applies a verified Stripe event. A returned error means the
// event was not applied and its claim was released for redelivery.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	start := s.now()
	eventType := string(event.Type)
	ctx = s.logg.WithGatewayEvent(ctx, event.ID, eventType)

	if !handled(event.Type) {
		s.metrics.Observe(eventType, outcomeIgnored, s.now().Sub(start))
		s.logg.Debug(ctx, "stripe.webhook.ignored")
		return nil
	}

	claimed, err := s.guard.Claim(ctx, event.ID)
	if err != nil {
		s.metrics.Observe(eventType, outcomeFailed, s.now().Sub(start))
		return err
	}
	if !claimed {
		s.metrics.Observe(eventType, outcomeDuplicate, s.now().Sub(start))
		s.logg.Info(ctx, "stripe.webhook.duplicate")
		return nil
	}

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		if releaseErr := s.guard.Release(ctx, event.ID); releaseErr != nil {
			s.logg.Error(ctx, "stripe.webhook.release_failed", releaseErr)
		}
		s.metrics.Observe(eventType, outcomeFailed, s.now().Sub(start))
		s.logg.Error(ctx, "stripe.webhook.failed", err)
		return err
	}
	s.metrics.Observe(eventType, outcome, s.now().Sub(start))
	s.logg.Info(ctx, "stripe.webhook."+outcome)
	return nil
}

// Resync refetches a gateway subscription and applies it the way a webhook
// snapshot is applied. It heals rows whose events were never delivered.
func (s *Service) Resync(ctx context.Context, gatewaySubscriptionID string) error {
	if gatewaySubscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway subscription id required")
	}
	snap, err := s.gateway.GetSubscription(ctx, gatewaySubscriptionID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.reconcile(ctx, snap, delivery{
		eventID:   "reconcile:" + gatewaySubscriptionID + ":" + now.Format(time.RFC3339),
		eventType: "reconcile",
		at:        now,
		fresh:     true,
		source:    subscriptions.SourceReconcile,
	})
	return err
}

func handled(eventType stripe.EventType) bool {
	switch eventType {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeInvoicePaid,
		stripe.EventTypeInvoicePaymentSucceeded,
		stripe.EventTypeInvoicePaymentFailed:
		return true
	}
	return false
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (string, error) {
	d := delivery{
		eventID:   event.ID,
		eventType: string(event.Type),
		at:        s.eventTime(event),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		if session.Mode != stripe.CheckoutSessionModeSubscription || session.Subscription == nil || session.Subscription.ID == "" {
			return outcomeIgnored, nil
		}
		snap, err := s.gateway.GetSubscription(ctx, session.Subscription.ID)
		if err != nil {
			return "", err
		}
		inheritMetadata(snap, session.Metadata)
		d.fresh = true
		return s.reconcile(ctx, snap, d)

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var raw stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &raw); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		d.deleted = event.Type == stripe.EventTypeCustomerSubscriptionDeleted
		return s.reconcile(ctx, gateway.FromStripeSubscription(&raw), d)

	default:
		inv, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return "", err
		}
		if inv.SubscriptionID == "" {
			return outcomeIgnored, nil
		}
		inv.Paid = event.Type != stripe.EventTypeInvoicePaymentFailed
		snap, err := s.gateway.GetSubscription(ctx, inv.SubscriptionID)
		if err != nil {
			return "", err
		}
		d.fresh = true
		d.invoice = inv
		return s.reconcile(ctx, snap, d)
	}
}

func (s *Service) eventTime(event *stripe.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return s.now().UTC()
}

func inheritMetadata(snap *gateway.Subscription, fallback map[string]string) {
	if snap == nil || len(fallback) == 0 {
		return
	}
	if snap.Metadata == nil {
		snap.Metadata = make(map[string]string, len(fallback))
	}
	for k, v := range fallback {
		if _, ok := snap.Metadata[k]; !ok {
			snap.Metadata[k] = v
		}
	}
}
