package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Plan is the immutable pricing of one tier. Edits replace the whole entry.
type Plan struct {
	Tier            Tier   `json:"tier" yaml:"tier"`
	Name            string `json:"name" yaml:"name"`
	MonthlyPrice    Money  `json:"monthly_price" yaml:"monthly_price"`
	CreditsPerMonth int64  `json:"credits_per_month" yaml:"credits_per_month"`
}

// PriceFor returns the price of one term of the given period.
func (p Plan) PriceFor(period Period) Money {
	return p.MonthlyPrice.Mul(period.PriceMultiplier())
}

// CreditsFor returns the credits granted for one term of the given period.
func (p Plan) CreditsFor(period Period) int64 {
	return p.CreditsPerMonth * period.CreditMultiplier()
}

// Plans is the plan catalog of a deployment. It is safe for concurrent use;
// price edits only affect billing events that happen after the edit.
type Plans struct {
	mu       sync.RWMutex
	currency string
	plans    map[Tier]Plan
}

// NewPlans builds a catalog from exactly one entry per tier.
func NewPlans(plans ...Plan) (*Plans, error) {
	if err := validatePlans(plans); err != nil {
		return nil, err
	}
	c := &Plans{
		currency: plans[0].MonthlyPrice.Currency,
		plans:    make(map[Tier]Plan, len(plans)),
	}
	for _, p := range plans {
		if p.Name == "" {
			p.Name = p.Tier.String()
		}
		c.plans[p.Tier] = p
	}
	return c, nil
}

// MustPlans is NewPlans that panics on invalid input. Intended for static catalogs.
func MustPlans(plans ...Plan) *Plans {
	c, err := NewPlans(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultPlans returns the launch pricing.
func DefaultPlans() *Plans {
	return MustPlans(
		Plan{Tier: Free, Name: "Free", MonthlyPrice: Eth(0), CreditsPerMonth: 100},
		Plan{Tier: Basic, Name: "Basic", MonthlyPrice: Eth(5 * Ether / 100), CreditsPerMonth: 2_500},
		Plan{Tier: Pro, Name: "Pro", MonthlyPrice: Eth(Ether / 10), CreditsPerMonth: 10_000},
		Plan{Tier: Enterprise, Name: "Enterprise", MonthlyPrice: Eth(Ether / 2), CreditsPerMonth: 50_000},
	)
}

// Currency is the single currency every plan is priced in.
func (c *Plans) Currency() string {
	return c.currency
}

// Plan returns the catalog entry for a tier.
func (c *Plans) Plan(t Tier) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plans[t]
	if !ok {
		return Plan{}, ErrInvalidPlan
	}
	return p, nil
}

// All returns every plan in rank order.
func (c *Plans) All() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Plan, 0, len(c.plans))
	for _, t := range Tiers() {
		out = append(out, c.plans[t])
	}
	return out
}

// SetPrice replaces the monthly price of a tier.
func (c *Plans) SetPrice(t Tier, price Money) (Plan, error) {
	if !t.Valid() {
		return Plan{}, ErrInvalidPlan
	}
	if price.Amount < 0 {
		return Plan{}, ErrNegativeAmount
	}
	if price.Amount > MaxAmount {
		return Plan{}, ErrAmountTooLarge
	}
	if price.Currency == "" {
		price.Currency = c.currency
	}
	if !price.SameCurrency(Money{Currency: c.currency}) {
		return Plan{}, ErrCurrencyMismatch
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.plans[t]
	p.MonthlyPrice = price
	c.plans[t] = p
	return p, nil
}

func validatePlans(plans []Plan) error {
	if len(plans) != len(tierNames) {
		return errors.Join(ErrInvalidPlanConfiguration,
			fmt.Errorf("expected %d plans, got %d", len(tierNames), len(plans)))
	}
	seen := make([]Tier, 0, len(plans))
	currency := plans[0].MonthlyPrice.Currency
	for _, p := range plans {
		if !p.Tier.Valid() {
			return errors.Join(ErrInvalidPlanConfiguration, ErrInvalidPlan)
		}
		if slices.Contains(seen, p.Tier) {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan %s", p.Tier))
		}
		seen = append(seen, p.Tier)
		if p.MonthlyPrice.Amount < 0 || p.CreditsPerMonth < 0 {
			return errors.Join(ErrInvalidPlanConfiguration, ErrNegativeAmount)
		}
		if p.MonthlyPrice.Amount > MaxAmount || p.CreditsPerMonth > MaxAmount {
			return errors.Join(ErrInvalidPlanConfiguration, ErrAmountTooLarge)
		}
		if !p.MonthlyPrice.SameCurrency(Money{Currency: currency}) {
			return errors.Join(ErrInvalidPlanConfiguration, ErrCurrencyMismatch)
		}
	}
	return nil
}
