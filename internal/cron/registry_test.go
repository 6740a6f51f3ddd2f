package cron

import (
	"context"
	"testing"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	if err := registry.Register("@every 15m", jobA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register("5 0 1 * *", jobB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	entries := registry.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Job != jobA || entries[1].Job != jobB {
		t.Fatalf("entries returned out of order")
	}
	if entries[1].Schedule != "5 0 1 * *" {
		t.Fatalf("unexpected schedule %q", entries[1].Schedule)
	}
	// ensure caller cannot mutate internal slice
	entries[0].Job = nil
	if registry.Entries()[0].Job == nil {
		t.Fatalf("internal slice leaked")
	}
	if job, ok := registry.Lookup("b"); !ok || job != jobB {
		t.Fatalf("lookup b failed")
	}
}

func TestRegistryRejectsBadEntries(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register("every quarter hour", &stubJob{name: "a"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := registry.Register("@hourly", &stubJob{name: "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("@daily", &stubJob{name: "a"}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := registry.Register("@daily", nil); err == nil {
		t.Fatal("expected nil job to fail")
	}
}
