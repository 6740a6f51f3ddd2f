package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

type TrialInput struct {
	UserID            uuid.UUID
	IPAddress         string
	DeviceFingerprint string
}

type TrialResult struct {
	Rejection    *Rejection
	Subscription *models.Subscription
}

// StartTrial opens a free trial on the configured trial plan. The
// subscription, role grant and notification commit together; the tracking
// record is written afterwards and only logged on failure.
func (s *Service) StartTrial(ctx context.Context, in TrialInput) (*TrialResult, error) {
	in.IPAddress = strings.TrimSpace(in.IPAddress)
	in.DeviceFingerprint = strings.TrimSpace(in.DeviceFingerprint)
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "user id is required")
	}
	if in.IPAddress == "" && in.DeviceFingerprint == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "deviceFingerprint is required")
	}
	ctx = s.logg.WithUserID(ctx, in.UserID.String())
	ctx = s.logg.WithOperation(ctx, "billing.start_trial")

	eligibility, err := s.trialGuard.Check(ctx, in.UserID, in.IPAddress, in.DeviceFingerprint)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanTrial {
		return &TrialResult{Rejection: trialRejection(eligibility)}, nil
	}

	plan, err := s.catalog.GetByName(ctx, s.cfg.TrialPlanName)
	if err != nil {
		return nil, err
	}
	role := enums.UserRole(s.cfg.TrialRole)
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "trial role is not a known role")
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		UserID:             in.UserID,
		PlanID:             plan.ID,
		BillingCycle:       enums.BillingCycleMonthly,
		Status:             enums.SubscriptionStatusTrialing,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(time.Duration(s.cfg.TrialDays) * day),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.subs.WithTx(tx).Create(ctx, sub); err != nil {
			return err
		}
		if _, err := s.roles.WithTx(tx).GrantRole(ctx, in.UserID, role); err != nil {
			return err
		}
		_, err := s.notifier.Dispatch(ctx, tx, notifications.Request{
			Type:           enums.NotificationTrialStarted,
			UserID:         in.UserID,
			SubscriptionID: &sub.ID,
			DedupeKey:      sub.ID.String(),
			Metadata: map[string]any{
				"planName":    plan.DisplayName,
				"trialDays":   s.cfg.TrialDays,
				"trialEndsAt": sub.CurrentPeriodEnd,
			},
		})
		return err
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		// Lost a race with another activation for the same user.
		return &TrialResult{Rejection: trialRejection(TrialEligibility{Reason: RejectAlreadySubscribed})}, nil
	}
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "start trial")
	}

	if err := s.trials.Record(ctx, &models.TrialTracking{
		UserID:            in.UserID,
		IPAddress:         optionalString(in.IPAddress),
		DeviceFingerprint: optionalString(in.DeviceFingerprint),
		TrialStartedAt:    now,
	}); err != nil {
		s.logg.Error(ctx, "billing.start_trial.tracking_failed", err)
	}

	s.logg.Info(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "billing.start_trial.started")
	return &TrialResult{Subscription: sub}, nil
}

func trialRejection(e TrialEligibility) *Rejection {
	if e.Reason == RejectAlreadySubscribed {
		return reject(RejectAlreadySubscribed, "you already have an active subscription", nil)
	}
	return reject(RejectTrialAlreadyUsed, "a free trial was already used from this device or network", map[string]any{
		"previousTrialCount": e.PreviousTrialCount,
	})
}
