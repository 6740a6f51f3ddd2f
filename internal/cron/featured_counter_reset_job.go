package cron

import (
	"context"
	"time"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

type counterResetter interface {
	ResetMonthlyCounters(ctx context.Context, monthStart time.Time) (int64, error)
}

type FeaturedCounterResetJobParams struct {
	Logger        *logger.Logger
	Subscriptions counterResetter
}

// NewFeaturedCounterResetJob zeroes featured usage at the start of each UTC
// month. Late or repeated runs within the month are harmless.
func NewFeaturedCounterResetJob(params FeaturedCounterResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	}
	return &featuredCounterResetJob{
		logg: params.Logger,
		subs: params.Subscriptions,
		now:  time.Now,
	}, nil
}

type featuredCounterResetJob struct {
	logg *logger.Logger
	subs counterResetter
	now  func() time.Time
}

func (j *featuredCounterResetJob) Name() string { return "featured-counter-reset" }

func (j *featuredCounterResetJob) Run(ctx context.Context) error {
	monthStart := startOfMonth(j.now())
	reset, err := j.subs.ResetMonthlyCounters(ctx, monthStart)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset featured counters")
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"month_start": monthStart,
		"rows_reset":  reset,
	}), "cron.featured_counter_reset.complete")
	return nil
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
