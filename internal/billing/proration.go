package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProrationInput describes a mid-period switch between two list prices.
type ProrationInput struct {
	CurrentPrice decimal.Decimal
	NewPrice     decimal.Decimal
	Currency     string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Now          time.Time
}

// PreviewResult is what a caller sees before committing a plan change.
// ProratedAmount is signed, so a downgrade shows its credit; AmountDue is
// what would be charged now and never goes below zero. Both are estimates
// unless they came from the gateway.
type PreviewResult struct {
	ProratedAmount  decimal.Decimal `json:"proratedAmount"`
	AmountDue       decimal.Decimal `json:"amountDue"`
	Currency        string          `json:"currency"`
	IsUpgrade       bool            `json:"isUpgrade"`
	IsDowngrade     bool            `json:"isDowngrade"`
	NextBillingDate time.Time       `json:"nextBillingDate"`
}

// Prorate charges (or credits, when negative) the price difference for the
// unused share of the period, in whole days.
func Prorate(in ProrationInput) PreviewResult {
	result := PreviewResult{
		Currency:        in.Currency,
		IsUpgrade:       in.NewPrice.GreaterThan(in.CurrentPrice),
		IsDowngrade:     in.NewPrice.LessThan(in.CurrentPrice),
		NextBillingDate: in.PeriodEnd,
		ProratedAmount:  decimal.Zero,
		AmountDue:       decimal.Zero,
	}
	totalDays := wholeDays(in.PeriodEnd.Sub(in.PeriodStart))
	if totalDays <= 0 {
		return result
	}
	elapsed := wholeDays(in.Now.Sub(in.PeriodStart))
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > totalDays {
		elapsed = totalDays
	}
	remaining := decimal.NewFromInt(totalDays - elapsed).Div(decimal.NewFromInt(totalDays))
	result.ProratedAmount = in.NewPrice.Sub(in.CurrentPrice).Mul(remaining).Round(2)
	if result.ProratedAmount.IsPositive() {
		result.AmountDue = result.ProratedAmount
	}
	return result
}

func wholeDays(d time.Duration) int64 {
	return int64(d / day)
}
