package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

type listingPauser interface {
	PauseAll(ctx context.Context, tx *gorm.DB, userID uuid.UUID, reason enums.PauseReason) (int, error)
}

type notifier interface {
	Dispatch(ctx context.Context, tx *gorm.DB, req notifications.Request) (bool, error)
}

type statusEvents interface {
	StatusChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, from enums.SubscriptionStatus, source, occurrence string) error
}

type TrialExpiryJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Subscriptions subscriptions.Repository
	Listings      listingPauser
	Notifier      notifier
	Events        statusEvents
	BatchSize     int
}

// NewTrialExpiryJob cancels trials that reached their end without a paid
// subscription and pauses the agent's listings.
func NewTrialExpiryJob(params TrialExpiryJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db runner required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	case params.Listings == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listing pauser required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	case params.Events == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lifecycle events required")
	}
	return &trialExpiryJob{
		logg:      params.Logger,
		db:        params.DB,
		subs:      params.Subscriptions,
		listings:  params.Listings,
		notifier:  params.Notifier,
		events:    params.Events,
		batchSize: params.BatchSize,
		now:       time.Now,
	}, nil
}

type trialExpiryJob struct {
	logg      *logger.Logger
	db        txRunner
	subs      subscriptions.Repository
	listings  listingPauser
	notifier  notifier
	events    statusEvents
	batchSize int
	now       func() time.Time
}

func (j *trialExpiryJob) Name() string { return "trial-expiry" }

func (j *trialExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	rows, err := j.subs.ListExpiredTrials(ctx, now, j.batchSize)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired trials")
	}

	var (
		errs    error
		expired int
	)
	for i := range rows {
		sub := &rows[i]
		subCtx := j.logg.WithSubscriptionID(ctx, sub.ID.String())
		err := j.db.WithTx(subCtx, func(tx *gorm.DB) error {
			return j.expire(subCtx, tx, sub, now)
		})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// Converted or canceled since the scan.
			j.logg.Info(subCtx, "cron.trial_expiry.skipped")
		default:
			j.logg.Error(subCtx, "cron.trial_expiry.failed", err)
			errs = multierr.Append(errs, err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned": len(rows),
		"expired": expired,
		"failed":  len(multierr.Errors(errs)),
	}), "cron.trial_expiry.complete")
	return errs
}

func (j *trialExpiryJob) expire(ctx context.Context, tx *gorm.DB, sub *models.Subscription, now time.Time) error {
	trialEnd := sub.CurrentPeriodEnd
	if err := j.subs.WithTx(tx).Transition(ctx, sub, enums.SubscriptionStatusCanceled, func(next *models.Subscription) {
		next.CanceledAt = &now
	}); err != nil {
		return err
	}
	paused, err := j.listings.PauseAll(ctx, tx, sub.UserID, enums.PauseReasonTrialExpired)
	if err != nil {
		return err
	}
	if err := j.events.StatusChanged(ctx, tx, sub, enums.SubscriptionStatusTrialing, subscriptions.SourceTrial, "trial_expired"); err != nil {
		return err
	}
	_, err = j.notifier.Dispatch(ctx, tx, notifications.Request{
		Type:           enums.NotificationTrialExpired,
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		DedupeKey:      notifications.TrialExpiredKey(sub.ID),
		Metadata: map[string]any{
			"trialEndedAt":     trialEnd,
			"propertiesPaused": paused,
		},
	})
	return err
}
