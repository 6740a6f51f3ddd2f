package cron

import (
	"context"
	"strings"

	robfig "github.com/robfig/cron/v3"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

// Job is one unit of scheduled billing work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with the cron expression it runs on.
type Entry struct {
	Job      Job
	Schedule string
}

// Registry keeps jobs in registration order, unique by name.
type Registry struct {
	entries []Entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds job under schedule. Standard five-field expressions and
// descriptors such as "@every 15m" are accepted.
func (r *Registry) Register(schedule string, job Job) error {
	if job == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "job required")
	}
	schedule = strings.TrimSpace(schedule)
	if _, err := robfig.ParseStandard(schedule); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid schedule for "+job.Name())
	}
	if _, ok := r.Lookup(job.Name()); ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "job already registered: "+job.Name())
	}
	r.entries = append(r.entries, Entry{Job: job, Schedule: schedule})
	return nil
}

// Entries returns a copy of the registered entries.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

func (r *Registry) Lookup(name string) (Job, bool) {
	for _, entry := range r.entries {
		if entry.Job.Name() == name {
			return entry.Job, true
		}
	}
	return nil, false
}
