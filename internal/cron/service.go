package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/metrics"
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   Locker
	Metrics  *metrics.CronJobMetrics
}

// Service runs registered jobs on their schedules. Every run takes the job's
// lock first, so several workers can share one redis.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locker   Locker
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Locker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "locker required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locker:   params.Locker,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

// Run schedules every registered job in UTC and blocks until ctx is
// canceled. In-flight jobs are waited for before it returns.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	adapter := cronLogger{logg: s.logg, ctx: ctx}
	scheduler := robfig.New(
		robfig.WithLocation(time.UTC),
		robfig.WithLogger(adapter),
		robfig.WithChain(robfig.Recover(adapter), robfig.SkipIfStillRunning(adapter)),
	)
	for _, entry := range s.registry.Entries() {
		job := entry.Job
		if _, err := scheduler.AddFunc(entry.Schedule, func() {
			_ = s.runJob(ctx, job)
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "schedule "+job.Name())
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"job":      job.Name(),
			"schedule": entry.Schedule,
		}), "cron.job.scheduled")
	}

	scheduler.Start()
	<-ctx.Done()
	s.logg.Info(ctx, "cron.service.stopping")
	<-scheduler.Stop().Done()
	return ctx.Err()
}

// RunOnce runs the named jobs, or every job when names is empty, one after
// another. A failing job does not stop the rest.
func (s *Service) RunOnce(ctx context.Context, names ...string) error {
	var jobs []Job
	if len(names) == 0 {
		for _, entry := range s.registry.Entries() {
			jobs = append(jobs, entry.Job)
		}
	}
	for _, name := range names {
		job, ok := s.registry.Lookup(name)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "unknown job: "+name)
		}
		jobs = append(jobs, job)
	}
	var errs error
	for _, job := range jobs {
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   name,
		"event": "cron.job",
	})

	lease, ok, err := s.locker.Acquire(jobCtx, name)
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.lock_failed", err)
		s.metrics.IncFailure(name)
		return err
	}
	if !ok {
		s.logg.Info(jobCtx, "cron.job.skipped")
		s.metrics.IncSkipped(name)
		return nil
	}
	defer func() {
		if relErr := lease.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "cron.job.release_failed", relErr)
		}
	}()

	s.logg.Info(jobCtx, "cron.job.start")
	start := s.now()
	err = job.Run(jobCtx)
	duration := s.now().Sub(start)
	s.metrics.ObserveDuration(name, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.failed", err)
		s.metrics.IncFailure(name)
		return err
	}
	s.logg.Info(jobCtx, "cron.job.completed")
	s.metrics.IncSuccess(name)
	return nil
}

// cronLogger feeds scheduler diagnostics into the service logger.
type cronLogger struct {
	logg *logger.Logger
	ctx  context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logg.Debug(l.fields(keysAndValues), "cron.scheduler."+msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logg.Error(l.fields(keysAndValues), "cron.scheduler."+msg, err)
}

func (l cronLogger) fields(keysAndValues []any) context.Context {
	if len(keysAndValues) < 2 {
		return l.ctx
	}
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.logg.WithFields(l.ctx, fields)
}
