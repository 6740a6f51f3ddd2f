package subscriptions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	planscontrollers "github.com/kentramx/kentramx-sub001/api/controllers/plans"
	"github.com/kentramx/kentramx-sub001/internal/billing"
	"github.com/kentramx/kentramx-sub001/internal/listings"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
)

type subscriptionResponse struct {
	ID                    uuid.UUID  `json:"id"`
	PlanID                uuid.UUID  `json:"planId"`
	Status                string     `json:"status"`
	BillingCycle          string     `json:"billingCycle"`
	CurrentPeriodStart    time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd      time.Time  `json:"currentPeriodEnd"`
	CancelAtPeriodEnd     bool       `json:"cancelAtPeriodEnd"`
	FeaturedUsedThisMonth int        `json:"featuredUsedThisMonth"`
	PastDueSince          *time.Time `json:"pastDueSince,omitempty"`
	SuspendedAt           *time.Time `json:"suspendedAt,omitempty"`
	CanceledAt            *time.Time `json:"canceledAt,omitempty"`
}

type changeResponse struct {
	ID               uuid.UUID       `json:"id"`
	ChangeType       string          `json:"changeType"`
	PreviousPlanID   *uuid.UUID      `json:"previousPlanId,omitempty"`
	NewPlanID        *uuid.UUID      `json:"newPlanId,omitempty"`
	AdminForced      bool            `json:"adminForced"`
	BypassedCooldown bool            `json:"bypassedCooldown"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	ChangedAt        time.Time       `json:"changedAt"`
}

type subscriptionViewResponse struct {
	Subscription *subscriptionResponse          `json:"subscription"`
	Plan         *planscontrollers.PlanResponse `json:"plan"`
}

type changePlanResponse struct {
	Success      bool                    `json:"success"`
	Subscription *subscriptionResponse   `json:"subscription,omitempty"`
	Change       *changeResponse         `json:"change,omitempty"`
	Reclaimed    *listings.ReclaimResult `json:"reclaimed,omitempty"`
}

type previewResponse struct {
	Success bool `json:"success"`
	billing.PreviewResult
}

type trialResponse struct {
	Success      bool                  `json:"success"`
	Subscription *subscriptionResponse `json:"subscription"`
}

type checkoutResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func newSubscriptionResponse(sub *models.Subscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:                    sub.ID,
		PlanID:                sub.PlanID,
		Status:                string(sub.Status),
		BillingCycle:          string(sub.BillingCycle),
		CurrentPeriodStart:    sub.CurrentPeriodStart,
		CurrentPeriodEnd:      sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:     sub.CancelAtPeriodEnd,
		FeaturedUsedThisMonth: sub.FeaturedUsedThisMonth,
		PastDueSince:          sub.PastDueSince,
		SuspendedAt:           sub.SuspendedAt,
		CanceledAt:            sub.CanceledAt,
	}
}

func newChangeResponse(change *models.SubscriptionChange) *changeResponse {
	if change == nil {
		return nil
	}
	return &changeResponse{
		ID:               change.ID,
		ChangeType:       string(change.ChangeType),
		PreviousPlanID:   change.PreviousPlanID,
		NewPlanID:        change.NewPlanID,
		AdminForced:      change.AdminForced,
		BypassedCooldown: change.BypassedCooldown,
		Metadata:         change.Metadata,
		ChangedAt:        change.ChangedAt,
	}
}
