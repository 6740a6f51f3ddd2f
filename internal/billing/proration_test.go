package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestProrate(t *testing.T) {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	cases := []struct {
		name      string
		current   int64
		next      int64
		now       time.Time
		amount    string
		due       string
		upgrade   bool
		downgrade bool
	}{
		{name: "upgrade halfway", current: 199, next: 399, now: start.AddDate(0, 0, 15), amount: "100.00", due: "100.00", upgrade: true},
		{name: "downgrade credits", current: 399, next: 199, now: start.AddDate(0, 0, 10), amount: "-133.33", due: "0.00", downgrade: true},
		{name: "cycle change", current: 199, next: 199, now: start.AddDate(0, 0, 3), amount: "0.00", due: "0.00"},
		{name: "after period end", current: 199, next: 399, now: end.Add(time.Hour), amount: "0.00", due: "0.00", upgrade: true},
		{name: "before period start", current: 199, next: 399, now: start.Add(-time.Hour), amount: "200.00", due: "200.00", upgrade: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Prorate(ProrationInput{
				CurrentPrice: decimal.NewFromInt(tc.current),
				NewPrice:     decimal.NewFromInt(tc.next),
				Currency:     "mxn",
				PeriodStart:  start,
				PeriodEnd:    end,
				Now:          tc.now,
			})
			if got.ProratedAmount.StringFixed(2) != tc.amount {
				t.Fatalf("expected %s, got %s", tc.amount, got.ProratedAmount.StringFixed(2))
			}
			if got.AmountDue.StringFixed(2) != tc.due {
				t.Fatalf("expected %s due, got %s", tc.due, got.AmountDue.StringFixed(2))
			}
			if got.IsUpgrade != tc.upgrade || got.IsDowngrade != tc.downgrade {
				t.Fatalf("unexpected direction upgrade=%v downgrade=%v", got.IsUpgrade, got.IsDowngrade)
			}
			if !got.NextBillingDate.Equal(end) {
				t.Fatalf("expected next billing %v, got %v", end, got.NextBillingDate)
			}
		})
	}
}

func TestProrateEmptyPeriod(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	got := Prorate(ProrationInput{
		CurrentPrice: decimal.NewFromInt(100),
		NewPrice:     decimal.NewFromInt(200),
		PeriodStart:  now,
		PeriodEnd:    now,
		Now:          now,
	})
	if !got.ProratedAmount.IsZero() {
		t.Fatalf("expected zero for an empty period, got %s", got.ProratedAmount)
	}
}
