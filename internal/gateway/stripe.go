package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/invoice"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/kentramx/kentramx-sub001/pkg/stripe"
)

// previewProration bills the whole swap on the preview invoice so its total
// is exactly the prorated amount.
const previewProration = "always_invoice"

// stripeAPI holds the SDK entry points so tests can replace them.
type stripeAPI struct {
	newCustomer        func(*stripe.CustomerParams) (*stripe.Customer, error)
	newSession         func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSubscription    func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error)
	updateSubscription func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error)
	createPreview      func(*stripe.InvoiceCreatePreviewParams) (*stripe.Invoice, error)
	getPrice           func(string, *stripe.PriceParams) (*stripe.Price, error)
}

func defaultStripeAPI() stripeAPI {
	return stripeAPI{
		newCustomer:        customer.New,
		newSession:         session.New,
		getSubscription:    subscription.Get,
		updateSubscription: subscription.Update,
		createPreview:      invoice.CreatePreview,
		getPrice:           price.Get,
	}
}

// Stripe implements PaymentGateway with stripe-go.
type Stripe struct {
	api stripeAPI
	now func() time.Time
}

// NewStripe requires an initialized client so the SDK key and backend are set.
func NewStripe(client *pkgstripe.Client) (*Stripe, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &Stripe{api: defaultStripeAPI(), now: time.Now}, nil
}

func (s *Stripe) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	if params.UserID != "" {
		p.AddMetadata("user_id", params.UserID)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	cust, err := s.api.newCustomer(p)
	if err != nil {
		return "", wrapStripeError("create_customer", err)
	}
	return cust.ID, nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.Metadata,
		},
	}
	p.Context = ctx
	if params.CustomerID != "" {
		p.Customer = stripe.String(params.CustomerID)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	sess, err := s.api.newSession(p)
	if err != nil {
		return nil, wrapStripeError("create_checkout_session", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	sub, err := s.api.getSubscription(id, p)
	if err != nil {
		return nil, wrapStripeError("get_subscription", err)
	}
	return FromStripeSubscription(sub), nil
}

func (s *Stripe) UpdateSubscription(ctx context.Context, id string, params UpdateParams) (*Subscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	if params.PriceID != "" {
		p.Items = []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(params.ItemID), Price: stripe.String(params.PriceID)},
		}
	}
	if params.ProrationBehavior != "" {
		p.ProrationBehavior = stripe.String(params.ProrationBehavior)
	}
	if params.CancelAtPeriodEnd != nil {
		p.CancelAtPeriodEnd = stripe.Bool(*params.CancelAtPeriodEnd)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	sub, err := s.api.updateSubscription(id, p)
	if err != nil {
		return nil, wrapStripeError("update_subscription", err)
	}
	return FromStripeSubscription(sub), nil
}

func (s *Stripe) PreviewInvoice(ctx context.Context, params PreviewParams) (*InvoicePreview, error) {
	p := &stripe.InvoiceCreatePreviewParams{
		Customer:     stripe.String(params.CustomerID),
		Subscription: stripe.String(params.SubscriptionID),
		SubscriptionDetails: &stripe.InvoiceCreatePreviewSubscriptionDetailsParams{
			Items: []*stripe.InvoiceCreatePreviewSubscriptionDetailsItemParams{
				{ID: stripe.String(params.ItemID), Price: stripe.String(params.PriceID)},
			},
			ProrationBehavior: stripe.String(previewProration),
			ProrationDate:     stripe.Int64(s.now().Unix()),
		},
	}
	p.Context = ctx
	inv, err := s.api.createPreview(p)
	if err != nil {
		return nil, wrapStripeError("preview_invoice", err)
	}
	preview := &InvoicePreview{
		Total:     minorToMajor(inv.Total),
		AmountDue: minorToMajor(inv.AmountDue),
		Currency:  strings.ToLower(string(inv.Currency)),
		PeriodEnd: unixTime(inv.PeriodEnd),
	}
	if inv.NextPaymentAttempt > 0 {
		next := unixTime(inv.NextPaymentAttempt)
		preview.NextAttempt = &next
	}
	return preview, nil
}

func (s *Stripe) GetPrice(ctx context.Context, id string) (*Price, error) {
	p := &stripe.PriceParams{}
	p.Context = ctx
	pr, err := s.api.getPrice(id, p)
	if err != nil {
		return nil, wrapStripeError("get_price", err)
	}
	out := &Price{
		ID:         pr.ID,
		Active:     pr.Active,
		Currency:   strings.ToLower(string(pr.Currency)),
		UnitAmount: minorToMajor(pr.UnitAmount),
	}
	if pr.Recurring != nil {
		out.Interval = string(pr.Recurring.Interval)
	}
	return out, nil
}

// FromStripeSubscription flattens the SDK object. The first item carries the
// price and, on current API versions, the billing period.
func FromStripeSubscription(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CanceledAt > 0 {
		canceled := unixTime(sub.CanceledAt)
		out.CanceledAt = &canceled
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return out
}

func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &Error{
			Op:         op,
			HTTPStatus: stripeErr.HTTPStatusCode,
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
			Err:        err,
		}
	}
	// Transport failures keep their original type for classification.
	return &Error{Op: op, Message: err.Error(), Err: err}
}

func minorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
