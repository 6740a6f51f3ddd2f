package subscriptions

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

// Metadata keys attached to gateway checkout sessions and subscriptions.
const (
	MetadataUserID       = "user_id"
	MetadataPlanID       = "plan_id"
	MetadataBillingCycle = "billing_cycle"
)

var gatewayStatusAliases = map[string]enums.SubscriptionStatus{
	gateway.StatusUnpaid: enums.SubscriptionStatusSuspended,
	gateway.StatusPaused: enums.SubscriptionStatusSuspended,
}

// MapGatewayStatus converts a gateway status into the local status set.
func MapGatewayStatus(raw string) (enums.SubscriptionStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := gatewayStatusAliases[normalized]; ok {
		return mapped, nil
	}
	status, err := enums.ParseSubscriptionStatus(normalized)
	if err != nil || status == enums.SubscriptionStatusSuspended {
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("unknown gateway subscription status %q", raw))
	}
	return status, nil
}

// ResolveStatus decides the local status after the gateway reports remote.
// A suspended row stays suspended while the gateway is still dunning. The
// second result is false when the table forbids the move; callers keep the
// local status and still converge the other fields.
func ResolveStatus(local, remote enums.SubscriptionStatus) (enums.SubscriptionStatus, bool) {
	if local == enums.SubscriptionStatusSuspended && remote == enums.SubscriptionStatusPastDue {
		return local, true
	}
	if local == "" {
		return remote, true
	}
	if !CanTransition(local, remote) {
		return local, false
	}
	return remote, true
}

// ApplySnapshot copies the gateway's non-status fields onto target.
func ApplySnapshot(target *models.Subscription, snap *gateway.Subscription) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if snap == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "gateway subscription is nil")
	}
	target.StripeSubscriptionID = trimmedPtr(snap.ID)
	if customer := trimmedPtr(snap.CustomerID); customer != nil {
		target.StripeCustomerID = customer
	}
	if !snap.CurrentPeriodStart.IsZero() {
		target.CurrentPeriodStart = snap.CurrentPeriodStart.UTC()
	}
	if !snap.CurrentPeriodEnd.IsZero() {
		target.CurrentPeriodEnd = snap.CurrentPeriodEnd.UTC()
	}
	target.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	if snap.CanceledAt != nil {
		canceled := snap.CanceledAt.UTC()
		target.CanceledAt = &canceled
	}
	return nil
}

// UserIDFromMetadata extracts the user id attached at checkout.
func UserIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	return uuidFromMetadata(metadata, MetadataUserID)
}

// PlanIDFromMetadata extracts the plan id attached at checkout.
func PlanIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	return uuidFromMetadata(metadata, MetadataPlanID)
}

func uuidFromMetadata(metadata map[string]string, key string) (uuid.UUID, error) {
	raw, ok := metadata[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" missing from metadata")
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key+" metadata")
	}
	return id, nil
}

func trimmedPtr(value string) *string {
	if s := strings.TrimSpace(value); s != "" {
		return &s
	}
	return nil
}
