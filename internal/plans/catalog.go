package plans

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

const activeKey = "active"

// PriceLookup is the gateway subset used to validate configured prices.
type PriceLookup interface {
	GetPrice(ctx context.Context, id string) (*gateway.Price, error)
}

// Price is a plan's charge for one billing cycle.
type Price struct {
	Amount   decimal.Decimal
	Currency string
	PriceID  string
}

type CatalogParams struct {
	Repo   Repository
	Prices PriceLookup
	Config config.PlanCacheConfig
	Logger *logger.Logger
}

// Catalog serves plan definitions from a short-lived cache. Concurrent misses
// for the same key share one query.
type Catalog struct {
	repo   Repository
	prices PriceLookup
	logg   *logger.Logger
	cache  *expirable.LRU[string, []models.SubscriptionPlan]
	group  singleflight.Group
}

func NewCatalog(params CatalogParams) (*Catalog, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	size := params.Config.Size
	if size <= 0 {
		size = 64
	}
	return &Catalog{
		repo:   params.Repo,
		prices: params.Prices,
		logg:   params.Logger,
		cache:  expirable.NewLRU[string, []models.SubscriptionPlan](size, nil, params.Config.TTL),
	}, nil
}

// Get returns the plan or a NOT_FOUND error.
func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	return c.one(ctx, "id:"+id.String(), func(ctx context.Context) (*models.SubscriptionPlan, error) {
		return c.repo.FindByID(ctx, id)
	})
}

func (c *Catalog) GetByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	name = strings.TrimSpace(name)
	return c.one(ctx, "name:"+name, func(ctx context.Context) (*models.SubscriptionPlan, error) {
		return c.repo.FindByName(ctx, name)
	})
}

// ResolvePrice maps a gateway price id back to its plan and cycle.
func (c *Catalog) ResolvePrice(ctx context.Context, priceID string) (*models.SubscriptionPlan, enums.BillingCycle, error) {
	plan, err := c.one(ctx, "price:"+priceID, func(ctx context.Context) (*models.SubscriptionPlan, error) {
		return c.repo.FindByPriceID(ctx, priceID)
	})
	if err != nil {
		return nil, "", err
	}
	if plan.PriceIDFor(enums.BillingCycleYearly) == priceID {
		return plan, enums.BillingCycleYearly, nil
	}
	return plan, enums.BillingCycleMonthly, nil
}

func (c *Catalog) ListActive(ctx context.Context) ([]models.SubscriptionPlan, error) {
	if cached, ok := c.cache.Get(activeKey); ok {
		return clonePlans(cached), nil
	}
	v, err, _ := c.group.Do(activeKey, func() (any, error) {
		plans, err := c.repo.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Add(activeKey, plans)
		return plans, nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list active plans")
	}
	return clonePlans(v.([]models.SubscriptionPlan)), nil
}

// PriceFor returns the plan's charge for the cycle. A paid cycle without a
// gateway price id is a catalog misconfiguration.
func (c *Catalog) PriceFor(plan *models.SubscriptionPlan, cycle enums.BillingCycle) (Price, error) {
	if plan == nil {
		return Price{}, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	price := Price{
		Amount:   plan.PriceFor(cycle),
		Currency: strings.ToLower(plan.Currency),
		PriceID:  plan.PriceIDFor(cycle),
	}
	if price.PriceID == "" && price.Amount.IsPositive() {
		return Price{}, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("plan %s has no %s price configured", plan.Name, cycle))
	}
	return price, nil
}

// ValidatePriceIDs checks every active plan's configured prices against the
// gateway so a bad id fails at boot instead of mid-checkout.
func (c *Catalog) ValidatePriceIDs(ctx context.Context) error {
	if c.prices == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "price lookup required")
	}
	plans, err := c.ListActive(ctx)
	if err != nil {
		return err
	}

	var errs error
	for i := range plans {
		plan := &plans[i]
		for _, cycle := range []enums.BillingCycle{enums.BillingCycleMonthly, enums.BillingCycleYearly} {
			price, err := c.PriceFor(plan, cycle)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if price.PriceID == "" {
				continue
			}
			remote, err := c.prices.GetPrice(ctx, price.PriceID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("plan %s %s price %s: %w", plan.Name, cycle, price.PriceID, err))
				continue
			}
			if !remote.Active {
				errs = multierr.Append(errs, fmt.Errorf("plan %s %s price %s is archived", plan.Name, cycle, price.PriceID))
				continue
			}
			if remote.Currency != "" && remote.Currency != price.Currency {
				errs = multierr.Append(errs, fmt.Errorf("plan %s %s price %s currency %s, want %s", plan.Name, cycle, price.PriceID, remote.Currency, price.Currency))
			}
		}
	}
	if errs != nil {
		c.logg.Error(ctx, "plans.price_validation_failed", errs)
	}
	return errs
}

// Invalidate drops every cached entry.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

func (c *Catalog) one(ctx context.Context, key string, load func(context.Context) (*models.SubscriptionPlan, error)) (*models.SubscriptionPlan, error) {
	if cached, ok := c.cache.Get(key); ok && len(cached) == 1 {
		plan := cached[0]
		return &plan, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		plan, err := load(ctx)
		if err != nil || plan == nil {
			return plan, err
		}
		c.cache.Add(key, []models.SubscriptionPlan{*plan})
		return plan, nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	plan, _ := v.(*models.SubscriptionPlan)
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	out := *plan
	return &out, nil
}

func clonePlans(in []models.SubscriptionPlan) []models.SubscriptionPlan {
	out := make([]models.SubscriptionPlan, len(in))
	copy(out, in)
	return out
}
