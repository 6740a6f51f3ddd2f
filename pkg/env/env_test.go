package env

import "testing"

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("KENTRA_A", "")
	t.Setenv("KENTRA_B", "b")
	t.Setenv("KENTRA_C", "c")
	if got := First("x", "KENTRA_A", "KENTRA_B", "KENTRA_C"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := Get("KENTRA_A", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
