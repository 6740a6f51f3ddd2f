package subscriptions

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/api/controllers/callercontext"
	"github.com/kentramx/kentramx-sub001/api/responses"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/pagination"
)

// ChangeHistory pages through a user's plan change audit.
type ChangeHistory interface {
	ListChanges(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.SubscriptionChange], error)
}

type changeHistoryItem struct {
	changeResponse
	PreviousBillingCycle *string    `json:"previousBillingCycle,omitempty"`
	NewBillingCycle      *string    `json:"newBillingCycle,omitempty"`
	ChangedBy            *uuid.UUID `json:"changedBy,omitempty"`
}

type changeHistoryResponse struct {
	Items      []changeHistoryItem `json:"items"`
	NextCursor string              `json:"nextCursor,omitempty"`
	FetchedAt  time.Time           `json:"fetchedAt"`
}

// SubscriptionChanges lists the caller's own plan change history.
func SubscriptionChanges(history ChangeHistory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		WriteChangeHistory(w, r, history, userID, logg)
	}
}

// WriteChangeHistory reads ?limit and ?cursor and writes one page of the
// user's audit.
func WriteChangeHistory(w http.ResponseWriter, r *http.Request, history ChangeHistory, userID uuid.UUID, logg *logger.Logger) {
	if history == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "change history unavailable"))
		return
	}
	params, err := pageParams(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	page, err := history.ListChanges(r.Context(), userID, params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	items := make([]changeHistoryItem, 0, len(page.Items))
	for i := range page.Items {
		change := &page.Items[i]
		item := changeHistoryItem{
			changeResponse: *newChangeResponse(change),
			ChangedBy:      change.ChangedBy,
		}
		if change.PreviousBillingCycle != nil {
			v := string(*change.PreviousBillingCycle)
			item.PreviousBillingCycle = &v
		}
		if change.NewBillingCycle != nil {
			v := string(*change.NewBillingCycle)
			item.NewBillingCycle = &v
		}
		items = append(items, item)
	}
	responses.WriteSuccess(w, changeHistoryResponse{
		Items:      items,
		NextCursor: page.NextCursor,
		FetchedAt:  time.Now().UTC(),
	})
}

func pageParams(r *http.Request) (pagination.Params, error) {
	q := r.URL.Query()
	params := pagination.Params{Cursor: q.Get("cursor")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		params.Limit = limit
	}
	return params, nil
}
