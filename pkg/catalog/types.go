package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tier is a subscription plan tier. Tiers are ranked: a higher value is a higher plan.
type Tier int

const (
	Free Tier = iota
	Basic
	Pro
	Enterprise
)

var tierNames = [...]string{"free", "basic", "pro", "enterprise"}

// Tiers returns all tiers in rank order.
func Tiers() []Tier {
	return []Tier{Free, Basic, Pro, Enterprise}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t >= Free && t <= Enterprise
}

// Above reports whether t ranks strictly above other.
func (t Tier) Above(other Tier) bool {
	return t > other
}

func (t Tier) String() string {
	if !t.Valid() {
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
	return tierNames[t]
}

// ParseTier accepts either the tier name or its numeric rank.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if s == name {
			return Tier(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Tier(n).Valid() {
		return Tier(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPlan, s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidPlan
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Period is the billing period of a subscription term.
type Period string

const (
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

const (
	// Month is the length of a monthly term.
	Month = 30 * 24 * time.Hour
	// Year is the length of a yearly term.
	Year = 365 * 24 * time.Hour
	// Day is the proration granularity.
	Day = 24 * time.Hour
)

// Valid reports whether p is a known billing period.
func (p Period) Valid() bool {
	return p == Monthly || p == Yearly
}

// Term returns the duration a payment for this period buys.
func (p Period) Term() time.Duration {
	if p == Yearly {
		return Year
	}
	return Month
}

// PriceMultiplier is the number of monthly prices charged for the period.
// Yearly billing gives two months free.
func (p Period) PriceMultiplier() int64 {
	if p == Yearly {
		return 10
	}
	return 1
}

// CreditMultiplier is the number of monthly credit grants awarded for the period.
func (p Period) CreditMultiplier() int64 {
	if p == Yearly {
		return 12
	}
	return 1
}

// ParsePeriod parses "monthly" or "yearly".
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return p, nil
}

// Ether is one whole unit of the default currency expressed in its smallest unit (gwei).
const Ether int64 = 1_000_000_000

// MaxAmount caps catalog prices and credit grants: a million whole units.
// Yearly terms and prorated upgrades derived from capped values fit in int64.
const MaxAmount int64 = 1_000_000 * Ether

// DefaultCurrency is the currency the default catalog is priced in.
const DefaultCurrency = "ETH"

// Money represents an amount in the smallest unit of the catalog currency.
// For the default catalog one ETH is Amount: Ether, Currency: "ETH".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// Eth builds a Money value in the default currency from an amount of gwei.
func Eth(gwei int64) Money {
	return Money{Amount: gwei, Currency: DefaultCurrency}
}

// SameCurrency reports whether both amounts are denominated in the same currency.
func (m Money) SameCurrency(o Money) bool {
	return strings.EqualFold(m.Currency, o.Currency)
}

// Equal reports exact equality of amount and currency.
func (m Money) Equal(o Money) bool {
	return m.Amount == o.Amount && m.SameCurrency(o)
}

// Sub returns m - o in m's currency.
func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}
}

// Mul returns m scaled by n.
func (m Money) Mul(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// String renders the amount with nine decimals trimmed, e.g. "0.05 ETH".
func (m Money) String() string {
	sign := ""
	a := m.Amount
	if a < 0 {
		sign = "-"
		a = -a
	}
	whole := a / Ether
	frac := strings.TrimRight(fmt.Sprintf("%09d", a%Ether), "0")
	s := sign + strconv.FormatInt(whole, 10)
	if frac != "" {
		s += "." + frac
	}
	if m.Currency != "" {
		s += " " + m.Currency
	}
	return s
}
