package cron

import (
	"context"

	"go.uber.org/multierr"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

type reconcileLister interface {
	ListForReconciliation(ctx context.Context, limit int) ([]models.Subscription, error)
}

type gatewayResyncer interface {
	Resync(ctx context.Context, gatewaySubscriptionID string) error
}

type SubscriptionReconcileJobParams struct {
	Logger        *logger.Logger
	Subscriptions reconcileLister
	Resyncer      gatewayResyncer
	BatchSize     int
}

// NewSubscriptionReconcileJob refetches gateway state for live rows so a
// missed webhook does not leave a subscription stale.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	case params.Resyncer == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "resyncer required")
	}
	return &subscriptionReconcileJob{
		logg:      params.Logger,
		subs:      params.Subscriptions,
		resyncer:  params.Resyncer,
		batchSize: params.BatchSize,
	}, nil
}

type subscriptionReconcileJob struct {
	logg      *logger.Logger
	subs      reconcileLister
	resyncer  gatewayResyncer
	batchSize int
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	rows, err := j.subs.ListForReconciliation(ctx, j.batchSize)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions for reconciliation")
	}

	var (
		errs    error
		synced  int
		missing int
	)
	for _, sub := range rows {
		gatewayID := sub.GatewaySubscriptionID()
		if gatewayID == "" {
			continue
		}
		subCtx := j.logg.WithFields(ctx, map[string]any{
			"subscription_id":         sub.ID.String(),
			"gateway_subscription_id": gatewayID,
		})
		if err := j.resyncer.Resync(subCtx, gatewayID); err != nil {
			if gateway.IsNotFound(err) {
				missing++
				j.logg.Warn(subCtx, "cron.subscription_reconcile.gateway_missing")
				continue
			}
			// The circuit is open: the rest of the batch would fail the same way.
			if pkgerrors.IsCode(err, pkgerrors.CodeCircuitOpen) {
				return multierr.Append(errs, err)
			}
			j.logg.Error(subCtx, "cron.subscription_reconcile.failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		synced++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned": len(rows),
		"synced":  synced,
		"missing": missing,
		"failed":  len(multierr.Errors(errs)),
	}), "cron.subscription_reconcile.complete")
	return errs
}
