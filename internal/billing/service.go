package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/listings"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/plans"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/internal/users"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	GetByName(ctx context.Context, name string) (*models.SubscriptionPlan, error)
	PriceFor(plan *models.SubscriptionPlan, cycle enums.BillingCycle) (plans.Price, error)
}

type reclaimer interface {
	Reclaim(ctx context.Context, tx *gorm.DB, userID uuid.UUID, plan *models.SubscriptionPlan) (listings.ReclaimResult, error)
}

type notifier interface {
	Dispatch(ctx context.Context, tx *gorm.DB, req notifications.Request) (bool, error)
}

type lifecycleEvents interface {
	StatusChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, from enums.SubscriptionStatus, source, occurrence string) error
	PlanChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, change *models.SubscriptionChange) error
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Tx            txRunner
	Subscriptions subscriptions.Repository
	Changes       subscriptions.ChangeLog
	Trials        TrialRepository
	Roles         *users.Repository
	Listings      listings.Repository
	Reclaimer     reclaimer
	Catalog       planCatalog
	Gateway       gateway.PaymentGateway
	Notifier      notifier
	Events        lifecycleEvents
	Billing       config.BillingConfig
	Stripe        config.StripeConfig
	Logger        *logger.Logger
}

// Service runs the synchronous subscription flows: plan changes, trials,
// checkout and scheduled cancellation. Expected refusals come back as a
// Rejection on the result; only system failures are returned as errors.
type Service struct {
	tx         txRunner
	subs       subscriptions.Repository
	changes    subscriptions.ChangeLog
	trials     TrialRepository
	roles      *users.Repository
	listings   listings.Repository
	reclaimer  reclaimer
	catalog    planCatalog
	gateway    gateway.PaymentGateway
	notifier   notifier
	events     lifecycleEvents
	cooldown   *CooldownGuard
	trialGuard *TrialGuard
	cfg        config.BillingConfig
	stripeCfg  config.StripeConfig
	logg       *logger.Logger
	now        func() time.Time
	newKey     func() string
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	case params.Changes == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "change log required")
	case params.Trials == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "trial repository required")
	case params.Roles == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "roles repository required")
	case params.Listings == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listings repository required")
	case params.Reclaimer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reclaimer required")
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	case params.Events == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lifecycle events required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	cooldown, err := NewCooldownGuard(params.Changes, params.Billing.CooldownDays)
	if err != nil {
		return nil, err
	}
	trialGuard, err := NewTrialGuard(params.Trials, params.Subscriptions)
	if err != nil {
		return nil, err
	}
	return &Service{
		tx:         params.Tx,
		subs:       params.Subscriptions,
		changes:    params.Changes,
		trials:     params.Trials,
		roles:      params.Roles,
		listings:   params.Listings,
		reclaimer:  params.Reclaimer,
		catalog:    params.Catalog,
		gateway:    params.Gateway,
		notifier:   params.Notifier,
		events:     params.Events,
		cooldown:   cooldown,
		trialGuard: trialGuard,
		cfg:        params.Billing,
		stripeCfg:  params.Stripe,
		logg:       params.Logger,
		now:        time.Now,
		newKey:     uuid.NewString,
	}, nil
}

// SubscriptionView is a subscription with its plan.
type SubscriptionView struct {
	Subscription *models.Subscription
	Plan         *models.SubscriptionPlan
}

// GetSubscription returns the user's live subscription, or the most recent
// one when none is live.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "user id is required")
	}
	sub, err := s.subs.FindLiveByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		if sub, err = s.subs.FindLatestByUser(ctx, userID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
		}
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	plan, err := s.catalog.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return &SubscriptionView{Subscription: sub, Plan: plan}, nil
}

// liveGatewaySubscription fetches the gateway copy of sub. A subscription the
// gateway already killed is resynced locally and reported as a rejection.
func (s *Service) liveGatewaySubscription(ctx context.Context, sub *models.Subscription) (*gateway.Subscription, *Rejection, error) {
	gatewayID := sub.GatewaySubscriptionID()
	if gatewayID == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not billed through the payment provider")
	}
	remote, err := s.gateway.GetSubscription(ctx, gatewayID)
	if err != nil {
		return nil, nil, err
	}
	if !remote.IsDead() {
		return remote, nil, nil
	}
	if err := s.markCanceled(ctx, sub, remote); err != nil {
		return nil, nil, err
	}
	return nil, reject(RejectSubscriptionCanceled, "this subscription was canceled; start a new subscription to continue", map[string]any{
		"subscriptionId": sub.ID,
		"gatewayStatus":  remote.Status,
	}), nil
}

func (s *Service) markCanceled(ctx context.Context, sub *models.Subscription, remote *gateway.Subscription) error {
	canceledAt := s.now().UTC()
	if remote.CanceledAt != nil {
		canceledAt = remote.CanceledAt.UTC()
	}
	from := sub.Status
	planID := sub.PlanID
	cycle := sub.BillingCycle
	metadata, err := json.Marshal(map[string]any{
		"source":                subscriptions.SourcePlanFlow,
		"gatewaySubscriptionId": remote.ID,
		"gatewayStatus":         remote.Status,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode change metadata")
	}
	change := &models.SubscriptionChange{
		UserID:               sub.UserID,
		SubscriptionID:       sub.ID,
		PreviousPlanID:       &planID,
		PreviousBillingCycle: &cycle,
		ChangeType:           enums.ChangeTypeCancellation,
		Metadata:             metadata,
		ChangedAt:            canceledAt,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.subs.WithTx(tx).Transition(ctx, sub, enums.SubscriptionStatusCanceled, func(next *models.Subscription) {
			next.CanceledAt = &canceledAt
			next.CancelAtPeriodEnd = false
		}); err != nil {
			return err
		}
		if err := s.events.StatusChanged(ctx, tx, sub, from, subscriptions.SourcePlanFlow, "gateway:"+remote.Status); err != nil {
			return err
		}
		if err := s.changes.WithTx(tx).AppendChange(ctx, change); err != nil {
			return err
		}
		_, err := s.notifier.Dispatch(ctx, tx, notifications.Request{
			Type:           enums.NotificationSubscriptionCanceled,
			UserID:         sub.UserID,
			SubscriptionID: &sub.ID,
			DedupeKey:      notifications.CanceledKey(sub.ID),
			Metadata: map[string]any{
				"canceledAt": canceledAt,
			},
		})
		return err
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		// A webhook moved the row first; it already carries the gateway's view.
		s.logg.Warn(ctx, "billing.resync_canceled.conflict")
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resync canceled subscription")
	}
	s.logg.Info(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "billing.resync_canceled")
	return nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
