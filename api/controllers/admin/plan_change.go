package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/api/controllers/callercontext"
	subscriptioncontrollers "github.com/kentramx/kentramx-sub001/api/controllers/subscriptions"
	"github.com/kentramx/kentramx-sub001/api/responses"
	"github.com/kentramx/kentramx-sub001/api/validators"
	"github.com/kentramx/kentramx-sub001/internal/billing"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

// PlanChanger is the billing surface behind the admin plan change.
type PlanChanger interface {
	ChangePlan(ctx context.Context, in billing.ChangePlanInput) (*billing.ChangePlanResult, error)
}

type adminChangePlanRequest struct {
	NewPlanID    string `json:"newPlanId" validate:"required,uuid"`
	BillingCycle string `json:"billingCycle" validate:"required,oneof=monthly yearly"`
	PreviewOnly  bool   `json:"previewOnly"`
}

// AdminChangePlan changes a user's plan on their behalf. The cooldown is
// skipped and the audit row records the admin as the actor.
func AdminChangePlan(svc PlanChanger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		adminID, err := callercontext.ResolveAdminID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(chi.URLParam(r, "userId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		var payload adminChangePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"target_user_id": userID.String(), "admin_id": adminID.String()})
			logg.Info(ctx, "admin.plan_change.requested")
		}

		result, err := svc.ChangePlan(ctx, billing.ChangePlanInput{
			UserID:       userID,
			NewPlanID:    uuid.MustParse(payload.NewPlanID),
			BillingCycle: enums.BillingCycle(payload.BillingCycle),
			PreviewOnly:  payload.PreviewOnly,
			AdminForced:  true,
			ActorID:      &adminID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subscriptioncontrollers.WriteChangePlanResult(w, result)
	}
}

// AdminChangeHistory lists any user's plan change audit.
func AdminChangeHistory(history subscriptioncontrollers.ChangeHistory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := callercontext.ResolveAdminID(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuid.Parse(chi.URLParam(r, "userId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}
		subscriptioncontrollers.WriteChangeHistory(w, r, history, userID, logg)
	}
}
