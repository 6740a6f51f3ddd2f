package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/repo/repotest"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	pkgredis "github.com/kentramx/kentramx-sub001/pkg/redis"
)

type priceGateway struct {
	gateway.PaymentGateway
	prices map[string]*gateway.Price
	calls  int
}

func (g *priceGateway) GetPrice(_ context.Context, id string) (*gateway.Price, error) {
	g.calls++
	if p, ok := g.prices[id]; ok {
		return p, nil
	}
	return nil, &gateway.Error{Op: "get_price", HTTPStatus: 404, Message: "No such price"}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Billing = config.BillingConfig{
		CooldownDays:   30,
		TrialDays:      14,
		TrialPlanName:  "agente_trial",
		TrialRole:      "agent",
		GraceDays:      7,
		ReminderDays:   []int{3, 5, 7},
		Currency:       "mxn",
		ValidatePrices: true,
	}
	cfg.Resilience = config.ResilienceConfig{RetryMaxAttempts: 1, BreakerFailures: 5}
	return cfg
}

func newBilling(t *testing.T, gw gateway.PaymentGateway) (*Billing, *config.Config) {
	t.Helper()
	conn := repotest.Open(t)
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	cfg := testConfig()
	stack, err := NewBilling(Params{
		Config:  cfg,
		Logger:  logger.Nop(),
		DB:      db.Wrap(conn),
		Redis:   pkgredis.NewFromClient(raw),
		Gateway: gw,
	})
	require.NoError(t, err)

	monthly := "price_month"
	require.NoError(t, conn.Create(&models.SubscriptionPlan{
		ID:                   uuid.New(),
		Name:                 "agente_pro",
		DisplayName:          "Pro",
		PriceMonthly:         decimal.NewFromInt(499),
		PriceYearly:          decimal.NewFromInt(4990),
		Currency:             "mxn",
		StripePriceIDMonthly: &monthly,
		MaxProperties:        20,
		IsActive:             true,
	}).Error)
	return stack, cfg
}

func TestNewBillingWiresStripeCircuit(t *testing.T) {
	stack, _ := newBilling(t, &priceGateway{})

	status, ok := stack.Breakers.Status(gateway.CircuitName)
	require.True(t, ok)
	assert.Equal(t, gateway.CircuitName, status.Name)
	assert.NotNil(t, stack.Service)
	assert.NotNil(t, stack.Webhooks)
}

func TestValidatePricesReportsArchivedPrice(t *testing.T) {
	gw := &priceGateway{prices: map[string]*gateway.Price{
		"price_month": {ID: "price_month", Active: false, Currency: "mxn"},
	}}
	stack, cfg := newBilling(t, gw)

	err := stack.ValidatePrices(context.Background(), cfg.Billing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archived")
}

func TestValidatePricesDisabled(t *testing.T) {
	gw := &priceGateway{}
	stack, cfg := newBilling(t, gw)
	cfg.Billing.ValidatePrices = false

	require.NoError(t, stack.ValidatePrices(context.Background(), cfg.Billing))
	assert.Zero(t, gw.calls)
}

func TestNewBillingRequiresGateway(t *testing.T) {
	_, err := NewBilling(Params{Config: testConfig(), Logger: logger.Nop()})
	require.Error(t, err)
}
