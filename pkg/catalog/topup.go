package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// TopUp is a one-off credit bundle.
type TopUp struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Credits int64  `json:"credits" yaml:"credits"`
	Price   Money  `json:"price" yaml:"price"`
}

// TopUps is the mutable credit top-up catalog.
type TopUps struct {
	mu       sync.RWMutex
	currency string
	items    map[int]TopUp
}

// NewTopUps builds a top-up catalog. IDs must be unique and non-negative.
func NewTopUps(currency string, items ...TopUp) (*TopUps, error) {
	c := &TopUps{
		currency: currency,
		items:    make(map[int]TopUp, len(items)),
	}
	for _, it := range items {
		if it.ID < 0 {
			return nil, errors.Join(ErrInvalidPlanConfiguration, ErrInvalidTopUp)
		}
		if _, dup := c.items[it.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate top-up id %d", it.ID))
		}
		if it.Price.Currency == "" {
			it.Price.Currency = currency
		}
		if err := c.validate(it.Credits, it.Price); err != nil {
			return nil, errors.Join(ErrInvalidPlanConfiguration, err)
		}
		c.items[it.ID] = it
	}
	return c, nil
}

// DefaultTopUps returns the launch top-up bundles.
func DefaultTopUps() *TopUps {
	c, err := NewTopUps(DefaultCurrency,
		TopUp{ID: 0, Name: "small", Credits: 500, Price: Eth(2 * Ether / 100)},
		TopUp{ID: 1, Name: "medium", Credits: 5_000, Price: Eth(15 * Ether / 100)},
		TopUp{ID: 2, Name: "big", Credits: 25_000, Price: Eth(Ether / 2)},
		TopUp{ID: 3, Name: "huge", Credits: 100_000, Price: Eth(3 * Ether / 2)},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Currency is the single currency every bundle is priced in.
func (c *TopUps) Currency() string {
	return c.currency
}

// Get returns the top-up with the given id.
func (c *TopUps) Get(id int) (TopUp, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok {
		return TopUp{}, ErrInvalidTopUp
	}
	return it, nil
}

// All returns the top-ups ordered by id.
func (c *TopUps) All() []TopUp {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]TopUp, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.items[id])
	}
	return out
}

// Set edits the credits and price of an existing top-up in place.
func (c *TopUps) Set(id int, credits int64, price Money) (TopUp, error) {
	if price.Currency == "" {
		price.Currency = c.currency
	}
	if err := c.validate(credits, price); err != nil {
		return TopUp{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[id]
	if !ok {
		return TopUp{}, ErrInvalidTopUp
	}
	it.Credits = credits
	it.Price = price
	c.items[id] = it
	return it, nil
}

func (c *TopUps) validate(credits int64, price Money) error {
	if credits < 0 || price.Amount < 0 {
		return ErrNegativeAmount
	}
	if credits > MaxAmount || price.Amount > MaxAmount {
		return ErrAmountTooLarge
	}
	if !price.SameCurrency(Money{Currency: c.currency}) {
		return ErrCurrencyMismatch
	}
	return nil
}
