package cron

import (
	"context"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/billing"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

type pastDueLister interface {
	ListPastDue(ctx context.Context, limit int) ([]models.Subscription, error)
}

type dunningEvaluator interface {
	Evaluate(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (billing.DunningOutcome, error)
}

type DunningSweepJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Subscriptions pastDueLister
	Dunning       dunningEvaluator
	BatchSize     int
}

// NewDunningSweepJob advances every past-due subscription through its
// reminders, suspending those past the grace window. Each subscription
// commits on its own so one failure does not hold back the batch.
func NewDunningSweepJob(params DunningSweepJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db runner required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	case params.Dunning == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dunning required")
	}
	return &dunningSweepJob{
		logg:      params.Logger,
		db:        params.DB,
		subs:      params.Subscriptions,
		dunning:   params.Dunning,
		batchSize: params.BatchSize,
	}, nil
}

type dunningSweepJob struct {
	logg      *logger.Logger
	db        txRunner
	subs      pastDueLister
	dunning   dunningEvaluator
	batchSize int
}

func (j *dunningSweepJob) Name() string { return "dunning-sweep" }

func (j *dunningSweepJob) Run(ctx context.Context) error {
	rows, err := j.subs.ListPastDue(ctx, j.batchSize)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list past due subscriptions")
	}

	var (
		errs      error
		reminded  int
		suspended int
	)
	for i := range rows {
		sub := &rows[i]
		var outcome billing.DunningOutcome
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var evalErr error
			outcome, evalErr = j.dunning.Evaluate(ctx, tx, sub)
			return evalErr
		})
		if err != nil {
			j.logg.Error(j.logg.WithSubscriptionID(ctx, sub.ID.String()), "cron.dunning_sweep.evaluate_failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if outcome.ReminderStage > 0 {
			reminded++
		}
		if outcome.Suspended {
			suspended++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned":   len(rows),
		"reminded":  reminded,
		"suspended": suspended,
		"failed":    len(multierr.Errors(errs)),
	}), "cron.dunning_sweep.complete")
	return errs
}
