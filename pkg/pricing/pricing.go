// Package pricing computes what a subscriber owes: the price of a term and the
// prorated cost of moving an active subscription to a higher plan.
//
// Proration works in whole days. The remaining time is floored to days, and the
// monthly price difference is multiplied by the day count before a single
// integer division by 30, so the only truncation is a sub-unit floor:
//
//	cost = floor((monthly(target) - monthly(current)) * floor(remaining / 24h) / 30)
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/meedprogram/meedkit/pkg/catalog"
)

const daysPerMonth = int64(catalog.Month / catalog.Day)

// Engine prices subscription terms and upgrades against a plan catalog.
// Price edits in the catalog are picked up on the next call.
type Engine struct {
	plans *catalog.Plans
}

// New creates a pricing engine backed by the given catalog.
func New(plans *catalog.Plans) *Engine {
	return &Engine{plans: plans}
}

// Plans exposes the underlying catalog.
func (e *Engine) Plans() *catalog.Plans {
	return e.plans
}

// PriceFor returns the price of one term of plan billed per period.
func (e *Engine) PriceFor(tier catalog.Tier, period catalog.Period) (catalog.Money, error) {
	if !period.Valid() {
		return catalog.Money{}, catalog.ErrInvalidPeriod
	}
	p, err := e.plans.Plan(tier)
	if err != nil {
		return catalog.Money{}, err
	}
	return p.PriceFor(period), nil
}

// CheckPayment verifies that payment equals the term price exactly.
func (e *Engine) CheckPayment(tier catalog.Tier, period catalog.Period, payment catalog.Money) error {
	price, err := e.PriceFor(tier, period)
	if err != nil {
		return err
	}
	return Match(price, payment)
}

// UpgradeCost returns the prorated price of moving from current to target with
// remaining time left on the term.
func (e *Engine) UpgradeCost(current, target catalog.Tier, remaining time.Duration) (catalog.Money, error) {
	from, err := e.plans.Plan(current)
	if err != nil {
		return catalog.Money{}, err
	}
	to, err := e.plans.Plan(target)
	if err != nil {
		return catalog.Money{}, err
	}
	if !target.Above(current) {
		return catalog.Money{}, ErrCannotDowngradeTier
	}
	if remaining <= 0 {
		return catalog.Money{}, ErrSubscriptionExpired
	}

	days := int64(remaining / catalog.Day)
	// Prices can be edited out of rank order; an upgrade is never a credit.
	delta := max(to.MonthlyPrice.Amount-from.MonthlyPrice.Amount, 0)
	amount, err := prorate(delta, days)
	if err != nil {
		return catalog.Money{}, err
	}
	return catalog.Money{Amount: amount, Currency: e.plans.Currency()}, nil
}

// prorate returns floor(delta*days/30) without overflowing the product.
func prorate(delta, days int64) (int64, error) {
	hi, lo := bits.Mul64(uint64(delta), uint64(days))
	if hi >= uint64(daysPerMonth) {
		return 0, fmt.Errorf("pricing: prorate %d over %d days: %w", delta, days, catalog.ErrAmountTooLarge)
	}
	q, _ := bits.Div64(hi, lo, uint64(daysPerMonth))
	if q > math.MaxInt64 {
		return 0, fmt.Errorf("pricing: prorate %d over %d days: %w", delta, days, catalog.ErrAmountTooLarge)
	}
	return int64(q), nil
}

// Quote returns the time left until expiresAt and the upgrade cost to target.
// An expired term yields zero for both without an error; only paying for an
// upgrade on an expired term fails.
func (e *Engine) Quote(current, target catalog.Tier, expiresAt, now time.Time) (time.Duration, catalog.Money, error) {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0, catalog.Money{Currency: e.plans.Currency()}, nil
	}
	cost, err := e.UpgradeCost(current, target, remaining)
	if err != nil {
		if errors.Is(err, ErrSubscriptionExpired) {
			return 0, catalog.Money{Currency: e.plans.Currency()}, nil
		}
		return 0, catalog.Money{}, err
	}
	return remaining, cost, nil
}

// Match reports ErrIncorrectPrice unless payment equals price in amount and currency.
func Match(price, payment catalog.Money) error {
	if !price.Equal(payment) {
		return ErrIncorrectPrice
	}
	return nil
}
