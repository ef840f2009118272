package pricing_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/pricing"
)

func eth(num, den int64) catalog.Money {
	return catalog.Eth(num * catalog.Ether / den)
}

func days(n int) time.Duration {
	return time.Duration(n) * catalog.Day
}

func TestEngine_PriceFor(t *testing.T) {
	t.Parallel()

	e := pricing.New(catalog.DefaultPlans())

	tests := []struct {
		tier   catalog.Tier
		period catalog.Period
		want   catalog.Money
	}{
		{catalog.Free, catalog.Monthly, catalog.Eth(0)},
		{catalog.Basic, catalog.Monthly, eth(5, 100)},
		{catalog.Basic, catalog.Yearly, eth(5, 10)},
		{catalog.Pro, catalog.Yearly, eth(1, 1)},
		{catalog.Enterprise, catalog.Monthly, eth(1, 2)},
		{catalog.Enterprise, catalog.Yearly, eth(5, 1)},
	}
	for _, tt := range tests {
		got, err := e.PriceFor(tt.tier, tt.period)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.tier, tt.period)
	}

	_, err := e.PriceFor(catalog.Tier(7), catalog.Monthly)
	assert.ErrorIs(t, err, catalog.ErrInvalidPlan)
	_, err = e.PriceFor(catalog.Pro, catalog.Period("weekly"))
	assert.ErrorIs(t, err, catalog.ErrInvalidPeriod)
}

func TestEngine_CheckPayment(t *testing.T) {
	t.Parallel()

	e := pricing.New(catalog.DefaultPlans())

	require.NoError(t, e.CheckPayment(catalog.Basic, catalog.Monthly, eth(5, 100)))
	assert.ErrorIs(t, e.CheckPayment(catalog.Basic, catalog.Monthly, eth(4, 100)), pricing.ErrIncorrectPrice)
	assert.ErrorIs(t, e.CheckPayment(catalog.Basic, catalog.Monthly, eth(6, 100)), pricing.ErrIncorrectPrice)
	assert.ErrorIs(t, e.CheckPayment(catalog.Basic, catalog.Monthly, catalog.Eth(5*catalog.Ether/100-1)), pricing.ErrIncorrectPrice)
	assert.ErrorIs(t, e.CheckPayment(catalog.Basic, catalog.Monthly, catalog.Eth(5*catalog.Ether/100+1)), pricing.ErrIncorrectPrice)
	assert.ErrorIs(t,
		e.CheckPayment(catalog.Basic, catalog.Monthly, catalog.Money{Amount: 5 * catalog.Ether / 100, Currency: "USDC"}),
		pricing.ErrIncorrectPrice)
}

func TestEngine_UpgradeCost(t *testing.T) {
	t.Parallel()

	e := pricing.New(catalog.DefaultPlans())

	t.Run("basic yearly to enterprise after 90 days", func(t *testing.T) {
		t.Parallel()
		cost, err := e.UpgradeCost(catalog.Basic, catalog.Enterprise, days(365-90))
		require.NoError(t, err)
		assert.Equal(t, eth(4125, 1000), cost)
	})

	t.Run("two yearly and one monthly term", func(t *testing.T) {
		t.Parallel()
		cost, err := e.UpgradeCost(catalog.Basic, catalog.Enterprise, days(365+365+30))
		require.NoError(t, err)
		assert.Equal(t, eth(114, 10), cost)
	})

	t.Run("full trial to enterprise costs one month", func(t *testing.T) {
		t.Parallel()
		cost, err := e.UpgradeCost(catalog.Free, catalog.Enterprise, catalog.Month)
		require.NoError(t, err)
		assert.Equal(t, eth(1, 2), cost)
	})

	t.Run("partial days are floored", func(t *testing.T) {
		t.Parallel()
		a, err := e.UpgradeCost(catalog.Basic, catalog.Pro, days(10))
		require.NoError(t, err)
		b, err := e.UpgradeCost(catalog.Basic, catalog.Pro, days(10)+23*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, a, b)

		zero, err := e.UpgradeCost(catalog.Basic, catalog.Pro, time.Hour)
		require.NoError(t, err)
		assert.True(t, zero.IsZero())
	})

	t.Run("downgrade and same tier rejected", func(t *testing.T) {
		t.Parallel()
		_, err := e.UpgradeCost(catalog.Pro, catalog.Basic, days(10))
		assert.ErrorIs(t, err, pricing.ErrCannotDowngradeTier)
		_, err = e.UpgradeCost(catalog.Pro, catalog.Pro, days(10))
		assert.ErrorIs(t, err, pricing.ErrCannotDowngradeTier)
	})

	t.Run("expired rejected", func(t *testing.T) {
		t.Parallel()
		_, err := e.UpgradeCost(catalog.Basic, catalog.Pro, 0)
		assert.ErrorIs(t, err, pricing.ErrSubscriptionExpired)
		_, err = e.UpgradeCost(catalog.Basic, catalog.Pro, -time.Minute)
		assert.ErrorIs(t, err, pricing.ErrSubscriptionExpired)
	})

	t.Run("capped price over the longest term stays positive", func(t *testing.T) {
		t.Parallel()
		plans := catalog.DefaultPlans()
		_, err := plans.SetPrice(catalog.Enterprise, catalog.Eth(catalog.MaxAmount))
		require.NoError(t, err)

		// 106751 whole days; delta*days alone exceeds int64.
		cost, err := pricing.New(plans).UpgradeCost(catalog.Free, catalog.Enterprise, time.Duration(math.MaxInt64))
		require.NoError(t, err)
		assert.Equal(t, catalog.Eth(3_558_366_666_666_666_666), cost)
	})
}

func TestEngine_UpgradeCostMonotonic(t *testing.T) {
	t.Parallel()

	e := pricing.New(catalog.DefaultPlans())

	for _, from := range catalog.Tiers() {
		for _, to := range catalog.Tiers() {
			if !to.Above(from) {
				continue
			}
			prev := int64(0)
			for h := 1; h <= 800*24; h += 7 {
				cost, err := e.UpgradeCost(from, to, time.Duration(h)*time.Hour)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, cost.Amount, prev, "%s->%s at %dh", from, to, h)
				prev = cost.Amount
			}
		}
	}

	// A larger price gap never costs less for the same remaining time.
	for d := 1; d <= 400; d++ {
		toPro, err := e.UpgradeCost(catalog.Basic, catalog.Pro, days(d))
		require.NoError(t, err)
		toEnt, err := e.UpgradeCost(catalog.Basic, catalog.Enterprise, days(d))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, toEnt.Amount, toPro.Amount)
	}
}

func TestEngine_UpgradeCostAfterPriceEdit(t *testing.T) {
	t.Parallel()

	plans := catalog.DefaultPlans()
	e := pricing.New(plans)

	_, err := plans.SetPrice(catalog.Basic, eth(1, 1))
	require.NoError(t, err)

	cost, err := e.UpgradeCost(catalog.Basic, catalog.Pro, days(30))
	require.NoError(t, err)
	assert.True(t, cost.IsZero())

	price, err := e.PriceFor(catalog.Basic, catalog.Monthly)
	require.NoError(t, err)
	assert.Equal(t, eth(1, 1), price)
}

func TestEngine_Quote(t *testing.T) {
	t.Parallel()

	e := pricing.New(catalog.DefaultPlans())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	remaining, cost, err := e.Quote(catalog.Basic, catalog.Enterprise, now.Add(days(275)), now)
	require.NoError(t, err)
	assert.Equal(t, days(275), remaining)
	assert.Equal(t, eth(4125, 1000), cost)

	remaining, cost, err = e.Quote(catalog.Basic, catalog.Enterprise, now.Add(-time.Second), now)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.True(t, cost.IsZero())

	_, _, err = e.Quote(catalog.Pro, catalog.Basic, now.Add(days(3)), now)
	assert.ErrorIs(t, err, pricing.ErrCannotDowngradeTier)
}
