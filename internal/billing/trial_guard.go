package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

type TrialEligibility struct {
	CanTrial           bool
	Reason             string
	PreviousTrialCount int64
}

// TrialGuard allows one free trial per device fingerprint or IP address. A
// match on either denies, so users behind a shared address may be refused.
type TrialGuard struct {
	trials TrialRepository
	subs   subscriptions.Repository
}

func NewTrialGuard(trials TrialRepository, subs subscriptions.Repository) (*TrialGuard, error) {
	if trials == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "trial repository required")
	}
	if subs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	}
	return &TrialGuard{trials: trials, subs: subs}, nil
}

func (g *TrialGuard) Check(ctx context.Context, userID uuid.UUID, ipAddress, deviceFingerprint string) (TrialEligibility, error) {
	live, err := g.subs.FindLiveByUser(ctx, userID)
	if err != nil {
		return TrialEligibility{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load live subscription")
	}
	if live != nil {
		return TrialEligibility{Reason: RejectAlreadySubscribed}, nil
	}
	count, err := g.trials.CountMatching(ctx, TrialMatch{
		UserID:            userID,
		IPAddress:         ipAddress,
		DeviceFingerprint: deviceFingerprint,
	})
	if err != nil {
		return TrialEligibility{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count previous trials")
	}
	if count > 0 {
		return TrialEligibility{Reason: RejectTrialAlreadyUsed, PreviousTrialCount: count}, nil
	}
	return TrialEligibility{CanTrial: true}, nil
}
