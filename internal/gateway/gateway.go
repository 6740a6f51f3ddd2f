package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Proration behaviors understood by UpdateSubscription.
const (
	ProrationCreate = "create_prorations"
	ProrationNone   = "none"
)

// Gateway statuses as reported by the payment processor.
const (
	StatusTrialing          = "trialing"
	StatusActive            = "active"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusUnpaid            = "unpaid"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusPaused            = "paused"
)

// PaymentGateway is the subset of the payment processor the billing core
// consumes.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params UpdateParams) (*Subscription, error)
	PreviewInvoice(ctx context.Context, params PreviewParams) (*InvoicePreview, error)
	GetPrice(ctx context.Context, id string) (*Price, error)
}

type CustomerParams struct {
	Email    string
	UserID   string
	Metadata map[string]string
}

type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	// Metadata is copied onto the session and the resulting subscription.
	Metadata       map[string]string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Subscription is the gateway's view of a subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	ItemID             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	Metadata           map[string]string
}

// IsDead reports whether the gateway will refuse further mutations.
func (s *Subscription) IsDead() bool {
	return s != nil && (s.Status == StatusCanceled || s.Status == StatusIncompleteExpired)
}

type UpdateParams struct {
	ItemID            string
	PriceID           string
	ProrationBehavior string
	CancelAtPeriodEnd *bool
	Metadata          map[string]string
	IdempotencyKey    string
}

type PreviewParams struct {
	CustomerID     string
	SubscriptionID string
	ItemID         string
	PriceID        string
}

// InvoicePreview carries amounts in major currency units.
type InvoicePreview struct {
	Total       decimal.Decimal
	AmountDue   decimal.Decimal
	Currency    string
	PeriodEnd   time.Time
	NextAttempt *time.Time
}

type Price struct {
	ID         string
	Active     bool
	Currency   string
	UnitAmount decimal.Decimal
	Interval   string
}
