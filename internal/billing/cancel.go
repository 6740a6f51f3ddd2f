package billing

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

type CancelResult struct {
	Rejection    *Rejection
	Subscription *models.Subscription
	Change       *models.SubscriptionChange
}

// CancelAtPeriodEnd schedules cancellation at the end of the paid period.
// Calling it again while a cancellation is pending changes nothing.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, userID uuid.UUID, actorID *uuid.UUID) (*CancelResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "user id is required")
	}
	ctx = s.logg.WithUserID(ctx, userID.String())
	ctx = s.logg.WithOperation(ctx, "billing.cancel_at_period_end")

	sub, err := s.subs.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "active subscription not found")
	}
	if sub.CancelAtPeriodEnd {
		return &CancelResult{Subscription: sub}, nil
	}

	remote, rejection, err := s.liveGatewaySubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return &CancelResult{Rejection: rejection}, nil
	}

	cancel := true
	updated, err := s.gateway.UpdateSubscription(ctx, remote.ID, gateway.UpdateParams{
		CancelAtPeriodEnd: &cancel,
		IdempotencyKey:    "cancel:" + sub.ID.String() + ":" + remote.CurrentPeriodEnd.UTC().Format("20060102"),
	})
	if err != nil {
		return nil, err
	}

	planID := sub.PlanID
	cycle := sub.BillingCycle
	metadata, err := json.Marshal(map[string]any{"effectiveAt": updated.CurrentPeriodEnd})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode change metadata")
	}
	change := &models.SubscriptionChange{
		UserID:               userID,
		SubscriptionID:       sub.ID,
		PreviousPlanID:       &planID,
		NewPlanID:            &planID,
		PreviousBillingCycle: &cycle,
		NewBillingCycle:      &cycle,
		ChangeType:           enums.ChangeTypeCancellation,
		ChangedBy:            actorID,
		Metadata:             metadata,
		ChangedAt:            s.now().UTC(),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.subs.WithTx(tx).ApplyPlanChange(ctx, sub, subscriptions.PlanChange{
			PlanID:             planID,
			BillingCycle:       cycle,
			CancelAtPeriodEnd:  updated.CancelAtPeriodEnd,
			CurrentPeriodStart: updated.CurrentPeriodStart,
			CurrentPeriodEnd:   updated.CurrentPeriodEnd,
		}); err != nil {
			return err
		}
		if err := s.changes.WithTx(tx).AppendChange(ctx, change); err != nil {
			return err
		}
		_, err := s.notifier.Dispatch(ctx, tx, notifications.Request{
			Type:           enums.NotificationCancellationScheduled,
			UserID:         userID,
			SubscriptionID: &sub.ID,
			DedupeKey:      change.ID.String(),
			Metadata: map[string]any{
				"effectiveAt": sub.CurrentPeriodEnd,
			},
		})
		return err
	})
	if err != nil {
		s.logg.Error(ctx, "billing.cancel_at_period_end.local_write_failed", err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record cancellation")
	}
	s.logg.Info(ctx, "billing.cancel_at_period_end.scheduled")
	return &CancelResult{Subscription: sub, Change: change}, nil
}
