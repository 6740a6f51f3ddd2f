package stripewebhook

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

// Invoice billing reason for the first charge of a new subscription.
const billingReasonSubscriptionCreate = "subscription_create"

// invoiceFacts is what the reconciler needs from an invoice event.
type invoiceFacts struct {
	ID             string
	SubscriptionID string
	BillingReason  string
	AmountPaid     decimal.Decimal
	AmountDue      decimal.Decimal
	Currency       string
	AttemptCount   int64
	NextAttempt    *time.Time
	Paid           bool
}

// Renewal reports whether a paid invoice renewed an existing subscription.
func (f *invoiceFacts) Renewal() bool {
	return f != nil && f.Paid && f.BillingReason != billingReasonSubscriptionCreate
}

// invoicePayload covers both placements of the subscription id: top level on
// older API versions, under parent.subscription_details on current ones.
type invoicePayload struct {
	ID                 string          `json:"id"`
	Subscription       json.RawMessage `json:"subscription"`
	BillingReason      string          `json:"billing_reason"`
	AmountPaid         int64           `json:"amount_paid"`
	AmountDue          int64           `json:"amount_due"`
	Currency           string          `json:"currency"`
	AttemptCount       int64           `json:"attempt_count"`
	NextPaymentAttempt int64           `json:"next_payment_attempt"`
	Parent             *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func decodeInvoice(raw []byte) (*invoiceFacts, error) {
	var payload invoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
	}
	if payload.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}
	subscriptionID := expandableID(payload.Subscription)
	if subscriptionID == "" && payload.Parent != nil && payload.Parent.SubscriptionDetails != nil {
		subscriptionID = expandableID(payload.Parent.SubscriptionDetails.Subscription)
	}
	facts := &invoiceFacts{
		ID:             payload.ID,
		SubscriptionID: subscriptionID,
		BillingReason:  payload.BillingReason,
		AmountPaid:     decimal.New(payload.AmountPaid, -2),
		AmountDue:      decimal.New(payload.AmountDue, -2),
		Currency:       payload.Currency,
		AttemptCount:   payload.AttemptCount,
	}
	if payload.NextPaymentAttempt > 0 {
		next := time.Unix(payload.NextPaymentAttempt, 0).UTC()
		facts.NextAttempt = &next
	}
	return facts, nil
}

// expandableID reads a Stripe expandable field: a bare id or an object.
func expandableID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
