package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

// ReclaimResult reports what a downgrade took back.
type ReclaimResult struct {
	PropertiesRemoved int  `json:"propertiesRemoved"`
	FeaturedRemoved   int  `json:"featuredRemoved"`
	CounterClamped    bool `json:"counterClamped"`
}

type ReclaimerParams struct {
	Listings      Repository
	Subscriptions subscriptions.Repository
	Logger        *logger.Logger
	Now           func() time.Time
}

// Reclaimer fits a user's listings and featured slots to a plan's limits. It
// only removes the excess over the limit, so a second run is a no-op.
type Reclaimer struct {
	listings Repository
	subs     subscriptions.Repository
	logg     *logger.Logger
	now      func() time.Time
}

func NewReclaimer(params ReclaimerParams) (*Reclaimer, error) {
	if params.Listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listings repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reclaimer{
		listings: params.Listings,
		subs:     params.Subscriptions,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Reclaim keeps the newest max_properties active listings and pauses the
// rest, removes the oldest featured slots over the featured limit, and clamps
// the monthly featured counter. tx may be nil.
func (r *Reclaimer) Reclaim(ctx context.Context, tx *gorm.DB, userID uuid.UUID, plan *models.SubscriptionPlan) (ReclaimResult, error) {
	var result ReclaimResult
	if plan == nil {
		return result, pkgerrors.New(pkgerrors.CodeInternal, "plan required")
	}
	listings := r.listings.WithTx(tx)

	if plan.MaxProperties != models.UnlimitedLimit {
		active, err := listings.ListActive(ctx, userID)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list active listings")
		}
		if excess := excessIDs(len(active), plan.MaxProperties, func(i int) uuid.UUID { return active[i].ID }); len(excess) > 0 {
			paused, err := listings.Pause(ctx, excess, enums.PauseReasonDowngrade)
			if err != nil {
				return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pause excess listings")
			}
			result.PropertiesRemoved = paused
		}
	}

	if plan.FeaturedListings != models.UnlimitedLimit {
		slots, err := listings.ListActiveFeatured(ctx, userID, r.now())
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list featured slots")
		}
		// Slots are oldest first, so the excess is the head of the list.
		if over := len(slots) - plan.FeaturedListings; over > 0 {
			ids := make([]uuid.UUID, 0, over)
			for _, slot := range slots[:over] {
				ids = append(ids, slot.ID)
			}
			removed, err := listings.SetFeaturedStatus(ctx, ids, enums.FeaturedStatusRemovedDowngrade)
			if err != nil {
				return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove excess featured slots")
			}
			result.FeaturedRemoved = removed
		}

		clamped, err := r.subs.WithTx(tx).ClampFeaturedUsage(ctx, userID, plan.FeaturedListings)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clamp featured usage")
		}
		result.CounterClamped = clamped
	}

	if result.PropertiesRemoved > 0 || result.FeaturedRemoved > 0 {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"user_id":            userID.String(),
			"plan":               plan.Name,
			"properties_removed": result.PropertiesRemoved,
			"featured_removed":   result.FeaturedRemoved,
		})
		r.logg.Info(logCtx, "listings.reclaimed")
	}
	return result, nil
}

// PauseAll pauses every active listing of the user.
func (r *Reclaimer) PauseAll(ctx context.Context, tx *gorm.DB, userID uuid.UUID, reason enums.PauseReason) (int, error) {
	paused, err := r.listings.WithTx(tx).PauseAllActive(ctx, userID, reason)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pause listings")
	}
	return paused, nil
}

// ResumeSuspended reactivates listings paused for reason, newest first, up to
// the room the plan leaves next to the listings already active.
func (r *Reclaimer) ResumeSuspended(ctx context.Context, tx *gorm.DB, userID uuid.UUID, reason enums.PauseReason, plan *models.SubscriptionPlan) (int, error) {
	listings := r.listings.WithTx(tx)
	paused, err := listings.ListPaused(ctx, userID, reason)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list paused listings")
	}
	if len(paused) == 0 {
		return 0, nil
	}

	room := len(paused)
	if plan != nil && plan.MaxProperties != models.UnlimitedLimit {
		active, err := listings.CountActive(ctx, userID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active listings")
		}
		room = min(room, max(plan.MaxProperties-active, 0))
	}
	if room == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, room)
	for _, prop := range paused[:room] {
		ids = append(ids, prop.ID)
	}
	resumed, err := listings.Resume(ctx, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resume listings")
	}
	return resumed, nil
}

// excessIDs returns the ids past the first limit entries.
func excessIDs(n, limit int, id func(int) uuid.UUID) []uuid.UUID {
	if n <= limit {
		return nil
	}
	out := make([]uuid.UUID, 0, n-limit)
	for i := max(limit, 0); i < n; i++ {
		out = append(out, id(i))
	}
	return out
}
