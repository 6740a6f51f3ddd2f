package plans

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/api/responses"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

// PlanLister is the catalog surface the plans endpoint reads.
type PlanLister interface {
	ListActive(ctx context.Context) ([]models.SubscriptionPlan, error)
}

// PlanResponse is the public shape of a catalog plan. Gateway price ids stay
// server side.
type PlanResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	DisplayName      string    `json:"displayName"`
	PriceMonthly     string    `json:"priceMonthly"`
	PriceYearly      string    `json:"priceYearly"`
	Currency         string    `json:"currency"`
	MaxProperties    int       `json:"maxProperties"`
	FeaturedListings int       `json:"featuredListings"`
	MaxAgents        int       `json:"maxAgents"`
	Highlights       []string  `json:"highlights"`
}

type planListResponse struct {
	Plans []PlanResponse `json:"plans"`
}

// NewPlanResponse maps a catalog row for the API.
func NewPlanResponse(plan *models.SubscriptionPlan) *PlanResponse {
	if plan == nil {
		return nil
	}
	highlights := []string(plan.Highlights)
	if highlights == nil {
		highlights = []string{}
	}
	return &PlanResponse{
		ID:               plan.ID,
		Name:             plan.Name,
		DisplayName:      plan.DisplayName,
		PriceMonthly:     plan.PriceMonthly.StringFixed(2),
		PriceYearly:      plan.PriceYearly.StringFixed(2),
		Currency:         plan.Currency,
		MaxProperties:    plan.MaxProperties,
		FeaturedListings: plan.FeaturedListings,
		MaxAgents:        plan.MaxAgents,
		Highlights:       highlights,
	}
}

func PlansList(svc PlanLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog unavailable"))
			return
		}

		list, err := svc.ListActive(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := planListResponse{Plans: make([]PlanResponse, 0, len(list))}
		for i := range list {
			resp.Plans = append(resp.Plans, *NewPlanResponse(&list[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}
