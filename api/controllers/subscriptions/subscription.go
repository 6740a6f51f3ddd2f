package subscriptions

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/api/controllers/callercontext"
	planscontrollers "github.com/kentramx/kentramx-sub001/api/controllers/plans"
	"github.com/kentramx/kentramx-sub001/api/middleware"
	"github.com/kentramx/kentramx-sub001/api/responses"
	"github.com/kentramx/kentramx-sub001/api/validators"
	"github.com/kentramx/kentramx-sub001/internal/billing"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

const maxFingerprintLength = 256

// BillingService is the subscription lifecycle surface the HTTP layer drives.
type BillingService interface {
	GetSubscription(ctx context.Context, userID uuid.UUID) (*billing.SubscriptionView, error)
	ChangePlan(ctx context.Context, in billing.ChangePlanInput) (*billing.ChangePlanResult, error)
	StartTrial(ctx context.Context, in billing.TrialInput) (*billing.TrialResult, error)
	StartCheckout(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error)
	CancelAtPeriodEnd(ctx context.Context, userID uuid.UUID, actorID *uuid.UUID) (*billing.CancelResult, error)
}

type changePlanRequest struct {
	NewPlanID      string `json:"newPlanId" validate:"required,uuid"`
	BillingCycle   string `json:"billingCycle" validate:"required,oneof=monthly yearly"`
	PreviewOnly    bool   `json:"previewOnly"`
	BypassCooldown bool   `json:"bypassCooldown"`
}

type trialRequest struct {
	DeviceFingerprint string `json:"deviceFingerprint"`
}

type checkoutRequest struct {
	PlanID       string `json:"planId" validate:"required,uuid"`
	BillingCycle string `json:"billingCycle" validate:"required,oneof=monthly yearly"`
}

func SubscriptionFetch(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := callercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetSubscription(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, subscriptionViewResponse{
			Subscription: newSubscriptionResponse(view.Subscription),
			Plan:         planscontrollers.NewPlanResponse(view.Plan),
		})
	}
}

func SubscriptionChangePlan(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := callercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bypass := payload.BypassCooldown
		if bypass && !middleware.IsAdmin(r) {
			if logg != nil {
				logg.Warn(r.Context(), "plan_change.bypass_ignored")
			}
			bypass = false
		}

		in := billing.ChangePlanInput{
			UserID:         userID,
			NewPlanID:      uuid.MustParse(payload.NewPlanID),
			BillingCycle:   enums.BillingCycle(payload.BillingCycle),
			PreviewOnly:    payload.PreviewOnly,
			BypassCooldown: bypass,
			ActorID:        &userID,
		}

		result, err := svc.ChangePlan(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		WriteChangePlanResult(w, result)
	}
}

// WriteChangePlanResult renders whichever outcome the plan change produced.
func WriteChangePlanResult(w http.ResponseWriter, result *billing.ChangePlanResult) {
	switch {
	case result.Rejection != nil:
		writeRejection(w, result.Rejection)
	case result.Preview != nil:
		responses.WriteSuccess(w, previewResponse{Success: true, PreviewResult: *result.Preview})
	default:
		responses.WriteSuccess(w, changePlanResponse{
			Success:      true,
			Subscription: newSubscriptionResponse(result.Subscription),
			Change:       newChangeResponse(result.Change),
			Reclaimed:    result.Reclaimed,
		})
	}
}

func SubscriptionStartTrial(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := callercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload trialRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartTrial(r.Context(), billing.TrialInput{
			UserID:            userID,
			IPAddress:         middleware.ClientIP(r),
			DeviceFingerprint: validators.SanitizeString(payload.DeviceFingerprint, maxFingerprintLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Rejection != nil {
			writeRejection(w, result.Rejection)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, trialResponse{
			Success:      true,
			Subscription: newSubscriptionResponse(result.Subscription),
		})
	}
}

func SubscriptionCheckout(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := callercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartCheckout(r.Context(), billing.CheckoutInput{
			UserID:       userID,
			Email:        middleware.EmailFromContext(r.Context()),
			PlanID:       uuid.MustParse(payload.PlanID),
			BillingCycle: enums.BillingCycle(payload.BillingCycle),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Rejection != nil {
			writeRejection(w, result.Rejection)
			return
		}

		responses.WriteSuccess(w, checkoutResponse{Success: true, SessionID: result.SessionID, URL: result.URL})
	}
}

func SubscriptionCancel(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := callercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CancelAtPeriodEnd(r.Context(), userID, &userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Rejection != nil {
			writeRejection(w, result.Rejection)
			return
		}

		responses.WriteSuccess(w, changePlanResponse{
			Success:      true,
			Subscription: newSubscriptionResponse(result.Subscription),
			Change:       newChangeResponse(result.Change),
		})
	}
}

func writeRejection(w http.ResponseWriter, rejection *billing.Rejection) {
	var details any
	if len(rejection.Details) > 0 {
		details = rejection.Details
	}
	responses.WriteRejection(w, rejection.Code, rejection.Message, details)
}
