package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

func newTestStripe(api stripeAPI) *Stripe {
	return &Stripe{
		api: api,
		now: func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
}

func TestFromStripeSubscription(t *testing.T) {
	sub := &stripe.Subscription{
		ID:                "sub_1",
		Status:            stripe.SubscriptionStatusActive,
		CancelAtPeriodEnd: true,
		CanceledAt:        1767225600,
		Customer:          &stripe.Customer{ID: "cus_1"},
		Metadata:          map[string]string{"user_id": "u1"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			ID:                 "si_1",
			Price:              &stripe.Price{ID: "price_pro_monthly"},
			CurrentPeriodStart: 1767225600,
			CurrentPeriodEnd:   1769904000,
		}}},
	}

	got := FromStripeSubscription(sub)
	if got.ID != "sub_1" || got.CustomerID != "cus_1" || got.Status != StatusActive {
		t.Fatalf("unexpected identity fields %+v", got)
	}
	if got.ItemID != "si_1" || got.PriceID != "price_pro_monthly" {
		t.Fatalf("unexpected item fields %+v", got)
	}
	if !got.CurrentPeriodEnd.Equal(time.Unix(1769904000, 0)) {
		t.Fatalf("unexpected period end %v", got.CurrentPeriodEnd)
	}
	if got.CanceledAt == nil || !got.CancelAtPeriodEnd {
		t.Fatalf("expected cancellation fields, got %+v", got)
	}
	if FromStripeSubscription(nil) != nil {
		t.Fatal("expected nil for nil subscription")
	}
}

func TestStripeUpdateSubscriptionBuildsParams(t *testing.T) {
	var captured *stripe.SubscriptionParams
	s := newTestStripe(stripeAPI{
		updateSubscription: func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
			if id != "sub_1" {
				t.Fatalf("unexpected id %q", id)
			}
			captured = params
			return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusActive}, nil
		},
	})

	keep := false
	_, err := s.UpdateSubscription(context.Background(), "sub_1", UpdateParams{
		ItemID:            "si_1",
		PriceID:           "price_b",
		ProrationBehavior: ProrationCreate,
		CancelAtPeriodEnd: &keep,
		IdempotencyKey:    "change-1",
	})
	if err != nil {
		t.Fatalf("UpdateSubscription returned error: %v", err)
	}
	if len(captured.Items) != 1 || *captured.Items[0].ID != "si_1" || *captured.Items[0].Price != "price_b" {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if *captured.ProrationBehavior != ProrationCreate {
		t.Fatalf("unexpected proration %q", *captured.ProrationBehavior)
	}
	if captured.CancelAtPeriodEnd == nil || *captured.CancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end=false to be sent")
	}
	if captured.IdempotencyKey == nil || *captured.IdempotencyKey != "change-1" {
		t.Fatal("expected idempotency key")
	}
	if captured.Context == nil {
		t.Fatal("expected request context to be attached")
	}
}

func TestStripePreviewInvoiceConvertsAmounts(t *testing.T) {
	s := newTestStripe(stripeAPI{
		createPreview: func(params *stripe.InvoiceCreatePreviewParams) (*stripe.Invoice, error) {
			if *params.SubscriptionDetails.ProrationBehavior != previewProration {
				t.Fatalf("unexpected preview proration %q", *params.SubscriptionDetails.ProrationBehavior)
			}
			return &stripe.Invoice{
				Total:              10645,
				AmountDue:          10645,
				Currency:           stripe.CurrencyMXN,
				PeriodEnd:          1769904000,
				NextPaymentAttempt: 1769907600,
			}, nil
		},
	})

	preview, err := s.PreviewInvoice(context.Background(), PreviewParams{
		CustomerID: "cus_1", SubscriptionID: "sub_1", ItemID: "si_1", PriceID: "price_b",
	})
	if err != nil {
		t.Fatalf("PreviewInvoice returned error: %v", err)
	}
	if !preview.Total.Equal(decimal.RequireFromString("106.45")) {
		t.Fatalf("unexpected total %s", preview.Total)
	}
	if preview.Currency != "mxn" || preview.NextAttempt == nil {
		t.Fatalf("unexpected preview %+v", preview)
	}
}

func TestStripeErrorsAreClassified(t *testing.T) {
	s := newTestStripe(stripeAPI{
		getPrice: func(string, *stripe.PriceParams) (*stripe.Price, error) {
			return nil, &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing, Msg: "No such price"}
		},
		getSubscription: func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
			return nil, &stripe.Error{HTTPStatusCode: 503, Msg: "unavailable"}
		},
		newCustomer: func(*stripe.CustomerParams) (*stripe.Customer, error) {
			return nil, errors.New("connection reset by peer")
		},
	})

	_, err := s.GetPrice(context.Background(), "price_missing")
	if !IsNotFound(err) || IsRetryable(err) {
		t.Fatalf("expected permanent not-found, got %v", err)
	}
	_, err = s.GetSubscription(context.Background(), "sub_1")
	if !IsRetryable(err) {
		t.Fatalf("expected 503 to be retryable, got %v", err)
	}
	_, err = s.CreateCustomer(context.Background(), CustomerParams{Email: "a@b.mx"})
	if !IsRetryable(err) {
		t.Fatalf("expected transport failure to be retryable, got %v", err)
	}
}

func TestStripeCheckoutCopiesMetadata(t *testing.T) {
	s := newTestStripe(stripeAPI{
		newSession: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			if *params.Mode != string(stripe.CheckoutSessionModeSubscription) {
				t.Fatalf("unexpected mode %q", *params.Mode)
			}
			if params.Metadata["plan_id"] != "p1" || params.SubscriptionData.Metadata["plan_id"] != "p1" {
				t.Fatalf("metadata not copied: %+v / %+v", params.Metadata, params.SubscriptionData.Metadata)
			}
			return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
		},
	})

	sess, err := s.CreateCheckoutSession(context.Background(), CheckoutParams{
		CustomerID: "cus_1",
		PriceID:    "price_a",
		SuccessURL: "https://ok",
		CancelURL:  "https://cancel",
		Metadata:   map[string]string{"plan_id": "p1"},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession returned error: %v", err)
	}
	if sess.URL == "" {
		t.Fatal("expected session url")
	}
}
