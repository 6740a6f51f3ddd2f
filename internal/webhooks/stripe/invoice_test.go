package stripewebhook

import (
	"testing"
)

func TestDecodeInvoiceSubscriptionPlacement(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"top level id", `{"id":"in_1","subscription":"sub_1"}`, "sub_1"},
		{"top level object", `{"id":"in_1","subscription":{"id":"sub_2"}}`, "sub_2"},
		{"parent details", `{"id":"in_1","subscription":null,"parent":{"subscription_details":{"subscription":"sub_3"}}}`, "sub_3"},
		{"one-off invoice", `{"id":"in_1","parent":null}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts, err := decodeInvoice([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if facts.SubscriptionID != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, facts.SubscriptionID)
			}
		})
	}
}

func TestDecodeInvoiceAmounts(t *testing.T) {
	facts, err := decodeInvoice([]byte(`{"id":"in_1","amount_paid":39900,"amount_due":1050,"next_payment_attempt":1767225600,"billing_reason":"subscription_cycle"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := facts.AmountPaid.StringFixed(2); got != "399.00" {
		t.Fatalf("amount paid: %s", got)
	}
	if got := facts.AmountDue.StringFixed(2); got != "10.50" {
		t.Fatalf("amount due: %s", got)
	}
	if facts.NextAttempt == nil || facts.NextAttempt.Unix() != 1767225600 {
		t.Fatalf("unexpected next attempt %v", facts.NextAttempt)
	}
	facts.Paid = true
	if !facts.Renewal() {
		t.Fatal("cycle invoice should count as renewal")
	}

	if _, err := decodeInvoice([]byte(`{"amount_paid":1}`)); err == nil {
		t.Fatal("expected missing id to fail")
	}
	if _, err := decodeInvoice([]byte(`not json`)); err == nil {
		t.Fatal("expected bad json to fail")
	}
}
