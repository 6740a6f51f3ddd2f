package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/listings"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/plans"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

const previewFailedMessage = "could not calculate price change, try again"

type ChangePlanInput struct {
	UserID         uuid.UUID
	NewPlanID      uuid.UUID
	BillingCycle   enums.BillingCycle
	PreviewOnly    bool
	BypassCooldown bool
	// AdminForced marks a change made by an administrator on the user's
	// behalf. The cooldown is skipped and the audit row says so.
	AdminForced bool
	ActorID     *uuid.UUID
}

func (in ChangePlanInput) validate() error {
	if in.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "user id is required")
	}
	if in.NewPlanID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "newPlanId is required")
	}
	if !in.BillingCycle.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "billingCycle must be monthly or yearly")
	}
	return nil
}

// ChangePlanResult carries exactly one of Rejection, Preview or the
// committed Change.
type ChangePlanResult struct {
	Rejection    *Rejection
	Preview      *PreviewResult
	Subscription *models.Subscription
	Change       *models.SubscriptionChange
	Reclaimed    *listings.ReclaimResult
}

type planDirection struct {
	currentPrice decimal.Decimal
	newPrice     decimal.Decimal
}

func (d planDirection) upgrade() bool   { return d.newPrice.GreaterThan(d.currentPrice) }
func (d planDirection) downgrade() bool { return d.newPrice.LessThan(d.currentPrice) }

func directionAt(current, next *models.SubscriptionPlan, cycle enums.BillingCycle) planDirection {
	return planDirection{
		currentPrice: current.PriceFor(cycle),
		newPrice:     next.PriceFor(cycle),
	}
}

// ClassifyChange names a move between plans, comparing both at cycle.
func ClassifyChange(current, next *models.SubscriptionPlan, cycle enums.BillingCycle) enums.ChangeType {
	return directionAt(current, next, cycle).changeType()
}

func (d planDirection) changeType() enums.ChangeType {
	switch {
	case d.upgrade():
		return enums.ChangeTypeUpgrade
	case d.downgrade():
		return enums.ChangeTypeDowngrade
	default:
		return enums.ChangeTypeCycleChange
	}
}

// ChangePlan moves the user's active subscription to another plan or cycle,
// or previews the charge when PreviewOnly is set. The gateway is mutated
// before the local row; a failed local write is converged by the webhook.
func (s *Service) ChangePlan(ctx context.Context, in ChangePlanInput) (*ChangePlanResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":       in.UserID.String(),
		"new_plan_id":   in.NewPlanID.String(),
		"billing_cycle": string(in.BillingCycle),
		"preview_only":  in.PreviewOnly,
		"admin_forced":  in.AdminForced,
	})
	ctx = s.logg.WithOperation(ctx, "billing.change_plan")

	opts := CooldownOptions{IsAdmin: in.AdminForced, ExplicitBypass: in.BypassCooldown}
	if !in.PreviewOnly {
		check, err := s.cooldown.Check(ctx, in.UserID, opts)
		if err != nil {
			return nil, err
		}
		if !check.Allowed {
			return &ChangePlanResult{Rejection: reject(RejectCooldownActive,
				fmt.Sprintf("plan changes are limited to one every %d days; try again in %d days", s.cfg.CooldownDays, check.DaysRemaining),
				map[string]any{
					"daysRemaining":  check.DaysRemaining,
					"nextChangeDate": check.NextEligibleAt,
				})}, nil
		}
	}

	sub, err := s.subs.FindActiveByUser(ctx, in.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "active subscription not found")
	}
	ctx = s.logg.WithSubscriptionID(ctx, sub.ID.String())

	currentPlan, err := s.catalog.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	newPlan, err := s.catalog.Get(ctx, in.NewPlanID)
	if err != nil {
		return nil, err
	}
	if !newPlan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if newPlan.ID == currentPlan.ID && in.BillingCycle == sub.BillingCycle {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "subscription is already on this plan and billing cycle")
	}

	dir := directionAt(currentPlan, newPlan, in.BillingCycle)

	if dir.downgrade() && !in.PreviewOnly {
		count, err := s.listings.CountActive(ctx, in.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active listings")
		}
		if newPlan.ExceedsPropertyLimit(count) {
			return &ChangePlanResult{Rejection: reject(RejectExceedsPropertyLimit,
				fmt.Sprintf("you have %d active listings and %s allows %d; pause %d before downgrading", count, newPlan.DisplayName, newPlan.MaxProperties, count-newPlan.MaxProperties),
				map[string]any{
					"currentCount": count,
					"newLimit":     newPlan.MaxProperties,
					"excess":       count - newPlan.MaxProperties,
				})}, nil
		}
	}

	remote, rejection, err := s.liveGatewaySubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return &ChangePlanResult{Rejection: rejection}, nil
	}

	reactivate := false
	if remote.CancelAtPeriodEnd {
		if !dir.upgrade() {
			return &ChangePlanResult{Rejection: reject(RejectDowngradeWithCancellation,
				"this subscription is scheduled to cancel; only an upgrade can reactivate it",
				map[string]any{"cancelAt": remote.CurrentPeriodEnd})}, nil
		}
		reactivate = true
	}

	price, err := s.catalog.PriceFor(newPlan, in.BillingCycle)
	if err != nil {
		return nil, err
	}
	if price.PriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "plan is not available for purchase")
	}

	if in.PreviewOnly {
		return s.preview(ctx, sub, remote, dir, price)
	}

	update := gateway.UpdateParams{
		ItemID:            remote.ItemID,
		PriceID:           price.PriceID,
		ProrationBehavior: gateway.ProrationCreate,
		Metadata: map[string]string{
			subscriptions.MetadataUserID:       in.UserID.String(),
			subscriptions.MetadataPlanID:       newPlan.ID.String(),
			subscriptions.MetadataBillingCycle: string(in.BillingCycle),
		},
		IdempotencyKey: "plan-change:" + s.newKey(),
	}
	if reactivate {
		keep := false
		update.CancelAtPeriodEnd = &keep
	}
	updated, err := s.gateway.UpdateSubscription(ctx, remote.ID, update)
	if err != nil {
		return nil, err
	}

	result, err := s.commitPlanChange(ctx, in, sub, currentPlan, newPlan, dir, updated, reactivate)
	if err != nil {
		s.logg.Error(ctx, "billing.change_plan.local_write_failed", err)
		return nil, err
	}
	s.logg.Info(ctx, "billing.change_plan.committed")
	return result, nil
}

func (s *Service) preview(ctx context.Context, sub *models.Subscription, remote *gateway.Subscription, dir planDirection, price plans.Price) (*ChangePlanResult, error) {
	estimate := Prorate(ProrationInput{
		CurrentPrice: dir.currentPrice,
		NewPrice:     dir.newPrice,
		Currency:     price.Currency,
		PeriodStart:  remote.CurrentPeriodStart,
		PeriodEnd:    remote.CurrentPeriodEnd,
		Now:          s.now(),
	})
	invoice, err := s.gateway.PreviewInvoice(ctx, gateway.PreviewParams{
		CustomerID:     remote.CustomerID,
		SubscriptionID: remote.ID,
		ItemID:         remote.ItemID,
		PriceID:        price.PriceID,
	})
	if err != nil {
		s.logg.Error(ctx, "billing.change_plan.preview_failed", err)
		code := pkgerrors.CodeDependency
		if typed := pkgerrors.As(err); typed != nil {
			code = typed.Code()
		}
		return nil, pkgerrors.Wrap(code, err, previewFailedMessage).Public()
	}
	estimate.ProratedAmount = invoice.Total
	estimate.AmountDue = invoice.AmountDue
	if invoice.Currency != "" {
		estimate.Currency = invoice.Currency
	}
	return &ChangePlanResult{Preview: &estimate, Subscription: sub}, nil
}

func (s *Service) commitPlanChange(
	ctx context.Context,
	in ChangePlanInput,
	sub *models.Subscription,
	currentPlan, newPlan *models.SubscriptionPlan,
	dir planDirection,
	updated *gateway.Subscription,
	reactivated bool,
) (*ChangePlanResult, error) {
	previousCycle := sub.BillingCycle
	newCycle := in.BillingCycle
	previousPlanID := currentPlan.ID
	newPlanID := newPlan.ID
	changeType := dir.changeType()

	metadata, err := json.Marshal(map[string]any{
		"reactivated":           reactivated,
		"gatewaySubscriptionId": updated.ID,
		"priceId":               updated.PriceID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode change metadata")
	}
	change := &models.SubscriptionChange{
		UserID:               in.UserID,
		SubscriptionID:       sub.ID,
		PreviousPlanID:       &previousPlanID,
		NewPlanID:            &newPlanID,
		PreviousBillingCycle: &previousCycle,
		NewBillingCycle:      &newCycle,
		ChangeType:           changeType,
		AdminForced:          in.AdminForced,
		BypassedCooldown:     in.AdminForced || in.BypassCooldown,
		ChangedBy:            in.ActorID,
		Metadata:             metadata,
		ChangedAt:            s.now().UTC(),
	}
	result := &ChangePlanResult{Subscription: sub, Change: change}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subs := s.subs.WithTx(tx)
		stored, err := subs.LockByID(ctx, sub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock subscription")
		}
		// The gateway webhook can land between the update call and this
		// transaction. It has then written the change row and notified.
		if stored != nil && stored.PlanID == newPlanID && stored.BillingCycle == newCycle {
			recorded, err := s.changes.WithTx(tx).LatestChange(ctx, in.UserID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load recorded change")
			}
			*sub = *stored
			result.Change = recorded
			s.logg.Info(ctx, "billing.change_plan.already_reconciled")
			return nil
		}
		if err := subs.ApplyPlanChange(ctx, sub, subscriptions.PlanChange{
			PlanID:             newPlan.ID,
			BillingCycle:       newCycle,
			CancelAtPeriodEnd:  updated.CancelAtPeriodEnd,
			CurrentPeriodStart: updated.CurrentPeriodStart,
			CurrentPeriodEnd:   updated.CurrentPeriodEnd,
		}); err != nil {
			return err
		}
		if err := s.changes.WithTx(tx).AppendChange(ctx, change); err != nil {
			return err
		}

		meta := map[string]any{
			"previousPlan": currentPlan.DisplayName,
			"newPlan":      newPlan.DisplayName,
			"billingCycle": string(newCycle),
			"amount":       dir.newPrice.StringFixed(2),
			"currency":     newPlan.Currency,
			"effectiveAt":  change.ChangedAt,
			"reactivated":  reactivated,
		}
		if changeType == enums.ChangeTypeDowngrade {
			reclaimed, err := s.reclaimer.Reclaim(ctx, tx, in.UserID, newPlan)
			if err != nil {
				return err
			}
			result.Reclaimed = &reclaimed
			meta["propertiesPaused"] = reclaimed.PropertiesRemoved
			meta["featuredRemoved"] = reclaimed.FeaturedRemoved
		}
		if _, err := s.notifier.Dispatch(ctx, tx, notifications.Request{
			Type:           ConfirmationFor(changeType),
			UserID:         in.UserID,
			SubscriptionID: &sub.ID,
			DedupeKey:      change.ID.String(),
			Metadata:       meta,
		}); err != nil {
			return err
		}
		return s.events.PlanChanged(ctx, tx, sub, change)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record plan change")
	}
	return result, nil
}

// ConfirmationFor is the notification confirming a committed change.
func ConfirmationFor(changeType enums.ChangeType) enums.NotificationType {
	switch changeType {
	case enums.ChangeTypeUpgrade:
		return enums.NotificationUpgradeConfirmed
	case enums.ChangeTypeDowngrade:
		return enums.NotificationDowngradeConfirmed
	default:
		return enums.NotificationCycleChangeConfirmed
	}
}
