package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

type CheckoutInput struct {
	UserID       uuid.UUID
	Email        string
	PlanID       uuid.UUID
	BillingCycle enums.BillingCycle
}

type CheckoutResult struct {
	Rejection *Rejection
	SessionID string
	URL       string
}

// StartCheckout opens a hosted checkout for a paid plan. The subscription
// row is created by the webhook once the gateway confirms payment.
func (s *Service) StartCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "user id is required")
	}
	if in.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "planId is required")
	}
	if !in.BillingCycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "billingCycle must be monthly or yearly")
	}
	ctx = s.logg.WithUserID(ctx, in.UserID.String())
	ctx = s.logg.WithOperation(ctx, "billing.start_checkout")

	live, err := s.subs.FindLiveByUser(ctx, in.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if live != nil && live.Status == enums.SubscriptionStatusActive && live.GatewaySubscriptionID() != "" {
		return &CheckoutResult{Rejection: reject(RejectAlreadySubscribed, "you already have an active subscription; change plans instead", nil)}, nil
	}

	plan, err := s.catalog.Get(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	price, err := s.catalog.PriceFor(plan, in.BillingCycle)
	if err != nil {
		return nil, err
	}
	if price.PriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "plan is not available for purchase")
	}

	remotePrice, err := s.gateway.GetPrice(ctx, price.PriceID)
	if err != nil {
		return nil, err
	}
	if !remotePrice.Active {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("price %s for plan %s is not active at the payment provider", price.PriceID, plan.Name))
	}

	customerID, err := s.customerFor(ctx, in)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutParams{
		CustomerID: customerID,
		PriceID:    price.PriceID,
		SuccessURL: s.stripeCfg.SuccessURL,
		CancelURL:  s.stripeCfg.CancelURL,
		Metadata: map[string]string{
			subscriptions.MetadataUserID:       in.UserID.String(),
			subscriptions.MetadataPlanID:       plan.ID.String(),
			subscriptions.MetadataBillingCycle: string(in.BillingCycle),
		},
		IdempotencyKey: "checkout:" + s.newKey(),
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "checkout_session_id", session.ID), "billing.start_checkout.created")
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// customerFor reuses the gateway customer from the user's latest
// subscription, creating one on first purchase.
func (s *Service) customerFor(ctx context.Context, in CheckoutInput) (string, error) {
	latest, err := s.subs.FindLatestByUser(ctx, in.UserID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if latest != nil && latest.GatewayCustomerID() != "" {
		return latest.GatewayCustomerID(), nil
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeInvalidInput, "email is required for the first purchase")
	}
	return s.gateway.CreateCustomer(ctx, gateway.CustomerParams{
		Email:  email,
		UserID: in.UserID.String(),
		Metadata: map[string]string{
			subscriptions.MetadataUserID: in.UserID.String(),
		},
	})
}
