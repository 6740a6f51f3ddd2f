package main

import (
	"github.com/kentramx/kentramx-sub001/internal/bootstrap"
	"github.com/kentramx/kentramx-sub001/internal/cron"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

func registerJobs(registry *cron.Registry, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, stack *bootstrap.Billing) error {
	dunning, err := cron.NewDunningSweepJob(cron.DunningSweepJobParams{
		Logger:        logg,
		DB:            dbClient,
		Subscriptions: stack.Subscriptions,
		Dunning:       stack.Dunning,
		BatchSize:     cfg.Cron.BatchSize,
	})
	if err != nil {
		return err
	}
	reconcile, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
		Logger:        logg,
		Subscriptions: stack.Subscriptions,
		Resyncer:      stack.Webhooks,
		BatchSize:     cfg.Cron.BatchSize,
	})
	if err != nil {
		return err
	}
	trials, err := cron.NewTrialExpiryJob(cron.TrialExpiryJobParams{
		Logger:        logg,
		DB:            dbClient,
		Subscriptions: stack.Subscriptions,
		Listings:      stack.Reclaimer,
		Notifier:      stack.Notifier,
		Events:        stack.Events,
		BatchSize:     cfg.Cron.BatchSize,
	})
	if err != nil {
		return err
	}
	counters, err := cron.NewFeaturedCounterResetJob(cron.FeaturedCounterResetJobParams{
		Logger:        logg,
		Subscriptions: stack.Subscriptions,
	})
	if err != nil {
		return err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       stack.Outbox,
		Retention:        cfg.Cron.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return err
	}

	schedules := []struct {
		spec string
		job  cron.Job
	}{
		{cfg.Cron.DunningSchedule, dunning},
		{cfg.Cron.ReconcileSchedule, reconcile},
		{cfg.Cron.TrialExpirySchedule, trials},
		{cfg.Cron.CounterResetSchedule, counters},
		{cfg.Cron.RetentionSchedule, retention},
	}
	for _, s := range schedules {
		if err := registry.Register(s.spec, s.job); err != nil {
			return err
		}
	}
	return nil
}
