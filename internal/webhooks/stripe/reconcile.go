package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/billing"
	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

// reconciliation is one gateway snapshot applied to one local row.
type reconciliation struct {
	delivery     delivery
	snap         *gateway.Subscription
	prev         models.Subscription
	next         models.Subscription
	created      bool
	plan         *models.SubscriptionPlan
	previousPlan *models.SubscriptionPlan
	episode      *time.Time
	wasSuspended bool
	suspended    bool
}

func (r *reconciliation) planChanged() bool {
	if r.created || r.prev.Status == enums.SubscriptionStatusTrialing || !r.next.Status.IsLive() {
		return false
	}
	return r.prev.PlanID != r.next.PlanID || r.prev.BillingCycle != r.next.BillingCycle
}

func (r *reconciliation) canceled() bool {
	return !r.created &&
		r.next.Status == enums.SubscriptionStatusCanceled &&
		r.prev.Status != enums.SubscriptionStatusCanceled
}

func (s *Service) reconcile(ctx context.Context, snap *gateway.Subscription, d delivery) (string, error) {
	if snap == nil || snap.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "gateway subscription id missing")
	}
	ctx = s.logg.WithField(ctx, "gateway_subscription_id", snap.ID)

	current, created, err := s.locate(ctx, snap)
	if err != nil {
		return "", err
	}
	if current == nil {
		return outcomeIgnored, nil
	}

	if !d.fresh && !created && current.LastEventAt != nil && d.at.Before(*current.LastEventAt) {
		s.logg.Info(ctx, "stripe.webhook.stale_snapshot")
		if snap, err = s.gateway.GetSubscription(ctx, snap.ID); err != nil {
			return "", err
		}
		d.fresh = true
	}
	if d.deleted {
		snap.Status = gateway.StatusCanceled
	}
	remote, err := subscriptions.MapGatewayStatus(snap.Status)
	if err != nil {
		return "", err
	}

	plan, cycle, err := s.resolvePlan(ctx, snap, current, created)
	if err != nil {
		return "", err
	}
	r := &reconciliation{
		delivery: d,
		snap:     snap,
		prev:     *current,
		created:  created,
		plan:     plan,
	}
	if !created && current.PlanID != plan.ID {
		if r.previousPlan, err = s.catalog.Get(ctx, current.PlanID); err != nil {
			return "", err
		}
	}
	if err := s.project(ctx, r, remote, cycle); err != nil {
		return "", err
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.commit(ctx, tx, r)
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return "", err
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile subscription")
	}
	return outcomeProcessed, nil
}

// locate finds the local row for snap. A trial without a gateway
// subscription is adopted by the user's first paid subscription. A nil row
// means the snapshot cannot be tied to a user.
func (s *Service) locate(ctx context.Context, snap *gateway.Subscription) (*models.Subscription, bool, error) {
	stored, err := s.subs.FindByGatewayID(ctx, snap.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if stored != nil {
		return stored, false, nil
	}
	userID, err := subscriptions.UserIDFromMetadata(snap.Metadata)
	if err != nil {
		s.logg.Warn(ctx, "stripe.webhook.unlinked_subscription")
		return nil, false, nil
	}
	live, err := s.subs.FindLiveByUser(ctx, userID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if live != nil && live.GatewaySubscriptionID() == "" {
		return live, false, nil
	}
	return &models.Subscription{ID: uuid.New(), UserID: userID}, true, nil
}

// resolvePlan prefers the price on the snapshot, then the stored plan, then
// the plan recorded in checkout metadata.
func (s *Service) resolvePlan(ctx context.Context, snap *gateway.Subscription, current *models.Subscription, created bool) (*models.SubscriptionPlan, enums.BillingCycle, error) {
	if snap.PriceID != "" {
		plan, cycle, err := s.catalog.ResolvePrice(ctx, snap.PriceID)
		if err == nil {
			return plan, cycle, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, "", err
		}
		s.logg.Warn(s.logg.WithField(ctx, "price_id", snap.PriceID), "stripe.webhook.unknown_price")
	}
	if !created && current.Status != enums.SubscriptionStatusTrialing {
		plan, err := s.catalog.Get(ctx, current.PlanID)
		if err != nil {
			return nil, "", err
		}
		return plan, current.BillingCycle, nil
	}
	planID, err := subscriptions.PlanIDFromMetadata(snap.Metadata)
	if err != nil {
		return nil, "", err
	}
	plan, err := s.catalog.Get(ctx, planID)
	if err != nil {
		return nil, "", err
	}
	cycle, err := enums.ParseBillingCycle(snap.Metadata[subscriptions.MetadataBillingCycle])
	if err != nil {
		cycle = enums.BillingCycleMonthly
	}
	return plan, cycle, nil
}

// project computes the row the snapshot implies, including the dunning
// episode bookkeeping.
func (s *Service) project(ctx context.Context, r *reconciliation, remote enums.SubscriptionStatus, cycle enums.BillingCycle) error {
	next := r.prev
	if err := subscriptions.ApplySnapshot(&next, r.snap); err != nil {
		return err
	}
	next.PlanID = r.plan.ID
	next.BillingCycle = cycle

	status, ok := subscriptions.ResolveStatus(r.prev.Status, remote)
	if !ok {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"from": r.prev.Status,
			"to":   remote,
		}), "stripe.webhook.transition_rejected")
	}
	next.Status = status

	at := r.delivery.at
	if next.LastEventAt == nil || at.After(*next.LastEventAt) {
		next.LastEventAt = &at
	}

	switch {
	case next.Status == enums.SubscriptionStatusPastDue:
		billing.BeginDunning(&next, at)
	case next.Status == enums.SubscriptionStatusActive && r.prev.PastDueSince != nil:
		episode := *r.prev.PastDueSince
		r.episode = &episode
		r.wasSuspended = r.prev.Status == enums.SubscriptionStatusSuspended
		billing.EndDunning(&next)
	case next.Status == enums.SubscriptionStatusSuspended && r.prev.Status != enums.SubscriptionStatusSuspended:
		billing.BeginDunning(&next, at)
		if next.SuspendedAt == nil {
			suspendedAt := at.UTC()
			next.SuspendedAt = &suspendedAt
		}
		r.suspended = true
	case next.Status == enums.SubscriptionStatusCanceled && next.CanceledAt == nil:
		canceledAt := s.now().UTC()
		next.CanceledAt = &canceledAt
	}
	r.next = next
	return nil
}

func (s *Service) commit(ctx context.Context, tx *gorm.DB, r *reconciliation) error {
	subs := s.subs.WithTx(tx)
	recordPlan := r.planChanged()
	if recordPlan {
		stored, err := subs.LockByID(ctx, r.next.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock subscription")
		}
		// The plan flow committed the same change after this snapshot's row
		// was read.
		if stored != nil && stored.PlanID == r.next.PlanID && stored.BillingCycle == r.next.BillingCycle {
			recordPlan = false
		}
	}
	if r.created {
		if err := subs.Create(ctx, &r.next); err != nil {
			return err
		}
	} else if err := subs.Save(ctx, &r.next, r.prev.Status); err != nil {
		return err
	}
	sub := &r.next

	if err := s.events.StatusChanged(ctx, tx, sub, r.prev.Status, r.delivery.origin(), r.delivery.eventID); err != nil {
		return err
	}
	if recordPlan {
		if err := s.recordPlanChange(ctx, tx, r); err != nil {
			return err
		}
	}

	switch {
	case r.canceled():
		if err := s.recordCancellation(ctx, tx, r); err != nil {
			return err
		}
	case r.episode != nil:
		if _, err := s.dunning.Recover(ctx, tx, sub, r.plan, *r.episode, r.wasSuspended); err != nil {
			return err
		}
	case r.suspended:
		if _, err := s.dunning.Suspended(ctx, tx, sub); err != nil {
			return err
		}
	case sub.Status == enums.SubscriptionStatusPastDue:
		if _, err := s.dunning.Evaluate(ctx, tx, sub); err != nil {
			return err
		}
	}
	return s.notifyInvoice(ctx, tx, r)
}

func (s *Service) recordPlanChange(ctx context.Context, tx *gorm.DB, r *reconciliation) error {
	from := r.previousPlan
	if from == nil {
		from = r.plan
	}
	sub := &r.next
	changeType := billing.ClassifyChange(from, r.plan, sub.BillingCycle)
	change := &models.SubscriptionChange{
		ID:                   uuid.New(),
		UserID:               sub.UserID,
		SubscriptionID:       sub.ID,
		PreviousPlanID:       &r.prev.PlanID,
		NewPlanID:            &sub.PlanID,
		PreviousBillingCycle: &r.prev.BillingCycle,
		NewBillingCycle:      &sub.BillingCycle,
		ChangeType:           changeType,
		ChangedAt:            s.now().UTC(),
	}
	if err := s.attachMetadata(change, r); err != nil {
		return err
	}
	if err := s.changes.WithTx(tx).AppendChange(ctx, change); err != nil {
		return err
	}

	meta := map[string]any{
		"previousPlan": from.DisplayName,
		"newPlan":      r.plan.DisplayName,
		"billingCycle": sub.BillingCycle,
		"effectiveAt":  change.ChangedAt,
		"source":       r.delivery.origin(),
	}
	if changeType == enums.ChangeTypeDowngrade {
		reclaimed, err := s.reclaimer.Reclaim(ctx, tx, sub.UserID, r.plan)
		if err != nil {
			return err
		}
		meta["propertiesPaused"] = reclaimed.PropertiesRemoved
		meta["featuredRemoved"] = reclaimed.FeaturedRemoved
	}
	if _, err := s.notifier.Dispatch(ctx, tx, notifications.Request{
		Type:           billing.ConfirmationFor(changeType),
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		DedupeKey:      change.ID.String(),
		Metadata:       meta,
	}); err != nil {
		return err
	}
	return s.events.PlanChanged(ctx, tx, sub, change)
}

func (s *Service) recordCancellation(ctx context.Context, tx *gorm.DB, r *reconciliation) error {
	sub := &r.next
	change := &models.SubscriptionChange{
		ID:                   uuid.New(),
		UserID:               sub.UserID,
		SubscriptionID:       sub.ID,
		PreviousPlanID:       &r.prev.PlanID,
		PreviousBillingCycle: &r.prev.BillingCycle,
		ChangeType:           enums.ChangeTypeCancellation,
		ChangedAt:            s.now().UTC(),
	}
	if err := s.attachMetadata(change, r); err != nil {
		return err
	}
	if err := s.changes.WithTx(tx).AppendChange(ctx, change); err != nil {
		return err
	}
	_, err := s.notifier.Dispatch(ctx, tx, notifications.Request{
		Type:           enums.NotificationSubscriptionCanceled,
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		DedupeKey:      notifications.CanceledKey(sub.ID),
		Metadata: map[string]any{
			"plan":       r.plan.DisplayName,
			"canceledAt": sub.CanceledAt,
		},
	})
	return err
}

func (s *Service) attachMetadata(change *models.SubscriptionChange, r *reconciliation) error {
	raw, err := json.Marshal(map[string]any{
		"source":                r.delivery.origin(),
		"eventId":               r.delivery.eventID,
		"eventType":             r.delivery.eventType,
		"gatewaySubscriptionId": r.snap.ID,
		"priceId":               r.snap.PriceID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode change metadata")
	}
	change.Metadata = raw
	return nil
}

func (s *Service) notifyInvoice(ctx context.Context, tx *gorm.DB, r *reconciliation) error {
	inv := r.delivery.invoice
	if inv == nil {
		return nil
	}
	sub := &r.next
	req := notifications.Request{
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		DedupeKey:      notifications.InvoiceKey(inv.ID),
	}
	if inv.Paid {
		if !inv.Renewal() || sub.Status != enums.SubscriptionStatusActive {
			return nil
		}
		req.Type = enums.NotificationRenewalSuccess
		req.Metadata = map[string]any{
			"plan":      r.plan.DisplayName,
			"amount":    inv.AmountPaid.StringFixed(2),
			"currency":  inv.Currency,
			"invoiceId": inv.ID,
			"periodEnd": sub.CurrentPeriodEnd,
		}
	} else {
		req.Type = enums.NotificationPaymentFailed
		req.Metadata = map[string]any{
			"plan":         r.plan.DisplayName,
			"amountDue":    inv.AmountDue.StringFixed(2),
			"currency":     inv.Currency,
			"invoiceId":    inv.ID,
			"attemptCount": inv.AttemptCount,
			"nextAttempt":  inv.NextAttempt,
		}
	}
	_, err := s.notifier.Dispatch(ctx, tx, req)
	return err
}
