package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

const day = 24 * time.Hour

type CooldownOptions struct {
	IsAdmin        bool
	ExplicitBypass bool
}

// Skips reports whether the caller is exempt from the cooldown.
func (o CooldownOptions) Skips() bool {
	return o.IsAdmin || o.ExplicitBypass
}

type CooldownResult struct {
	Allowed        bool
	DaysRemaining  int
	NextEligibleAt *time.Time
}

// CooldownGuard enforces the minimum interval between plan changes. It is a
// business gate read before the gateway call, not a lock.
type CooldownGuard struct {
	changes subscriptions.ChangeLog
	days    int
	now     func() time.Time
}

func NewCooldownGuard(changes subscriptions.ChangeLog, days int) (*CooldownGuard, error) {
	if changes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "change log required")
	}
	if days < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cooldown days must not be negative")
	}
	return &CooldownGuard{changes: changes, days: days, now: time.Now}, nil
}

func (g *CooldownGuard) Check(ctx context.Context, userID uuid.UUID, opts CooldownOptions) (CooldownResult, error) {
	if opts.Skips() || g.days == 0 {
		return CooldownResult{Allowed: true}, nil
	}
	// Any change row starts the window, cancellations included.
	last, err := g.changes.LatestChange(ctx, userID)
	if err != nil {
		return CooldownResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load last plan change")
	}
	if last == nil {
		return CooldownResult{Allowed: true}, nil
	}
	return evaluateCooldown(last.ChangedAt, g.now(), g.days), nil
}

func evaluateCooldown(changedAt, now time.Time, days int) CooldownResult {
	elapsed := now.Sub(changedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	daysSince := int(elapsed / day)
	if daysSince >= days {
		return CooldownResult{Allowed: true}
	}
	next := changedAt.Add(time.Duration(days) * day).UTC()
	return CooldownResult{
		Allowed:        false,
		DaysRemaining:  days - daysSince,
		NextEligibleAt: &next,
	}
}
