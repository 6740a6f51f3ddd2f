package enums

import "testing"

func TestParseBillingCycle(t *testing.T) {
	cases := map[string]BillingCycle{"monthly": BillingCycleMonthly, " YEARLY ": BillingCycleYearly}
	for raw, want := range cases {
		got, err := ParseBillingCycle(raw)
		if err != nil || got != want {
			t.Fatalf("ParseBillingCycle(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseBillingCycle("weekly"); err == nil {
		t.Fatal("expected error for unknown cycle")
	}
}

func TestSubscriptionStatusPredicates(t *testing.T) {
	if !SubscriptionStatusTrialing.IsLive() || !SubscriptionStatusActive.IsLive() {
		t.Fatal("trialing and active must be live")
	}
	if SubscriptionStatusPastDue.IsLive() || SubscriptionStatusSuspended.IsLive() {
		t.Fatal("past_due and suspended must not be live")
	}
	if !SubscriptionStatusCanceled.IsTerminal() || !SubscriptionStatusIncompleteExpired.IsTerminal() {
		t.Fatal("canceled and incomplete_expired must be terminal")
	}
	if _, err := ParseSubscriptionStatus("unpaid"); err == nil {
		t.Fatal("unpaid is a gateway status, not a local one")
	}
}

func TestPaymentReminderType(t *testing.T) {
	if got, ok := PaymentReminderType(5); !ok || got != NotificationPaymentFailedDay5 {
		t.Fatalf("unexpected reminder for day 5: %q %v", got, ok)
	}
	if _, ok := PaymentReminderType(4); ok {
		t.Fatal("day 4 has no reminder")
	}
}
