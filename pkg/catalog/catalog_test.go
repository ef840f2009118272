package catalog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/catalog"
)

func TestDefaultPlans(t *testing.T) {
	t.Parallel()

	plans := catalog.DefaultPlans()

	tests := []struct {
		tier    catalog.Tier
		monthly int64
		credits int64
	}{
		{catalog.Free, 0, 100},
		{catalog.Basic, 50_000_000, 2_500},
		{catalog.Pro, 100_000_000, 10_000},
		{catalog.Enterprise, 500_000_000, 50_000},
	}
	for _, tt := range tests {
		p, err := plans.Plan(tt.tier)
		require.NoError(t, err)
		assert.Equal(t, tt.monthly, p.MonthlyPrice.Amount, tt.tier.String())
		assert.Equal(t, tt.credits, p.CreditsPerMonth, tt.tier.String())
	}

	_, err := plans.Plan(catalog.Tier(9))
	assert.ErrorIs(t, err, catalog.ErrInvalidPlan)
}

func TestPlan_PeriodMultipliers(t *testing.T) {
	t.Parallel()

	pro, err := catalog.DefaultPlans().Plan(catalog.Pro)
	require.NoError(t, err)

	assert.Equal(t, catalog.Eth(catalog.Ether/10), pro.PriceFor(catalog.Monthly))
	assert.Equal(t, catalog.Eth(catalog.Ether), pro.PriceFor(catalog.Yearly))
	assert.Equal(t, int64(10_000), pro.CreditsFor(catalog.Monthly))
	assert.Equal(t, int64(120_000), pro.CreditsFor(catalog.Yearly))
}

func TestPlans_SetPrice(t *testing.T) {
	t.Parallel()

	t.Run("updates price", func(t *testing.T) {
		t.Parallel()
		plans := catalog.DefaultPlans()
		p, err := plans.SetPrice(catalog.Basic, catalog.Money{Amount: catalog.Ether})
		require.NoError(t, err)
		assert.Equal(t, catalog.Eth(catalog.Ether), p.MonthlyPrice)

		got, err := plans.Plan(catalog.Basic)
		require.NoError(t, err)
		assert.Equal(t, catalog.Eth(catalog.Ether), got.MonthlyPrice)
	})

	t.Run("rejects negative and foreign currency", func(t *testing.T) {
		t.Parallel()
		plans := catalog.DefaultPlans()
		_, err := plans.SetPrice(catalog.Basic, catalog.Eth(-1))
		assert.ErrorIs(t, err, catalog.ErrNegativeAmount)
		_, err = plans.SetPrice(catalog.Basic, catalog.Money{Amount: 1, Currency: "USD"})
		assert.ErrorIs(t, err, catalog.ErrCurrencyMismatch)
		_, err = plans.SetPrice(catalog.Tier(-1), catalog.Eth(1))
		assert.ErrorIs(t, err, catalog.ErrInvalidPlan)
	})

	t.Run("caps the price", func(t *testing.T) {
		t.Parallel()
		plans := catalog.DefaultPlans()
		_, err := plans.SetPrice(catalog.Pro, catalog.Eth(catalog.MaxAmount+1))
		assert.ErrorIs(t, err, catalog.ErrAmountTooLarge)

		p, err := plans.SetPrice(catalog.Pro, catalog.Eth(catalog.MaxAmount))
		require.NoError(t, err)
		assert.Equal(t, catalog.Eth(10*catalog.MaxAmount), p.PriceFor(catalog.Yearly))
	})
}

func TestNewPlans_Validation(t *testing.T) {
	t.Parallel()

	_, err := catalog.NewPlans(catalog.Plan{Tier: catalog.Free})
	assert.ErrorIs(t, err, catalog.ErrInvalidPlanConfiguration)

	_, err = catalog.NewPlans(
		catalog.Plan{Tier: catalog.Free, MonthlyPrice: catalog.Eth(0)},
		catalog.Plan{Tier: catalog.Free, MonthlyPrice: catalog.Eth(0)},
		catalog.Plan{Tier: catalog.Pro, MonthlyPrice: catalog.Eth(0)},
		catalog.Plan{Tier: catalog.Enterprise, MonthlyPrice: catalog.Eth(0)},
	)
	assert.ErrorIs(t, err, catalog.ErrInvalidPlanConfiguration)

	_, err = catalog.NewPlans(
		catalog.Plan{Tier: catalog.Free, MonthlyPrice: catalog.Eth(0)},
		catalog.Plan{Tier: catalog.Basic, MonthlyPrice: catalog.Eth(0)},
		catalog.Plan{Tier: catalog.Pro, MonthlyPrice: catalog.Eth(0)},
		catalog.Plan{Tier: catalog.Enterprise, MonthlyPrice: catalog.Eth(catalog.MaxAmount + 1)},
	)
	assert.ErrorIs(t, err, catalog.ErrAmountTooLarge)
}

func TestTopUps(t *testing.T) {
	t.Parallel()

	topUps := catalog.DefaultTopUps()
	small, err := topUps.Get(0)
	require.NoError(t, err)
	assert.Equal(t, int64(500), small.Credits)
	assert.Equal(t, catalog.Eth(20_000_000), small.Price)
	assert.Len(t, topUps.All(), 4)

	_, err = topUps.Get(42)
	assert.ErrorIs(t, err, catalog.ErrInvalidTopUp)

	edited, err := topUps.Set(0, 1000, catalog.Money{Amount: catalog.Ether / 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), edited.Credits)
	assert.Equal(t, catalog.DefaultCurrency, edited.Price.Currency)

	_, err = topUps.Set(42, 1, catalog.Eth(1))
	assert.ErrorIs(t, err, catalog.ErrInvalidTopUp)
	_, err = topUps.Set(0, -1, catalog.Eth(1))
	assert.ErrorIs(t, err, catalog.ErrNegativeAmount)
	_, err = topUps.Set(0, 1, catalog.Eth(catalog.MaxAmount+1))
	assert.ErrorIs(t, err, catalog.ErrAmountTooLarge)
	_, err = topUps.Set(0, catalog.MaxAmount+1, catalog.Eth(1))
	assert.ErrorIs(t, err, catalog.ErrAmountTooLarge)
}

func TestParse(t *testing.T) {
	t.Parallel()

	const doc = `
currency: ETH
plans:
  - tier: free
    monthly_price: {amount: 0}
    credits_per_month: 10
  - tier: basic
    monthly_price: {amount: 1000}
    credits_per_month: 20
  - tier: 2
    monthly_price: {amount: 2000}
    credits_per_month: 30
  - tier: enterprise
    monthly_price: {amount: 3000}
    credits_per_month: 40
top_ups:
  - id: 7
    name: tiny
    credits: 5
    price: {amount: 10}
`
	plans, topUps, err := catalog.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	pro, err := plans.Plan(catalog.Pro)
	require.NoError(t, err)
	assert.Equal(t, catalog.Eth(2000), pro.MonthlyPrice)
	assert.Equal(t, "pro", pro.Name)

	tiny, err := topUps.Get(7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tiny.Credits)
	assert.Equal(t, "ETH", tiny.Price.Currency)

	_, _, err = catalog.Parse(strings.NewReader("plans: [{tier: gold}]"))
	assert.ErrorIs(t, err, catalog.ErrFailedToLoadCatalog)
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	tier, err := catalog.ParseTier("Enterprise")
	require.NoError(t, err)
	assert.Equal(t, catalog.Enterprise, tier)

	_, err = catalog.ParseTier("platinum")
	assert.ErrorIs(t, err, catalog.ErrInvalidPlan)

	p, err := catalog.ParsePeriod("YEARLY")
	require.NoError(t, err)
	assert.Equal(t, catalog.Yearly, p)

	_, err = catalog.ParsePeriod("weekly")
	assert.ErrorIs(t, err, catalog.ErrInvalidPeriod)

	assert.True(t, catalog.Enterprise.Above(catalog.Pro))
	assert.False(t, catalog.Pro.Above(catalog.Pro))
}

func TestMoney_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.05 ETH", catalog.Eth(5*catalog.Ether/100).String())
	assert.Equal(t, "1.48 ETH", catalog.Eth(148*catalog.Ether/100).String())
	assert.Equal(t, "-2 ETH", catalog.Eth(-2*catalog.Ether).String())
	assert.Equal(t, "0", catalog.Money{}.String())
}
