package ledger

import (
	"strings"
	"time"

	"github.com/meedprogram/meedkit/pkg/catalog"
)

// Address identifies an account: a subscriber, an admin, a collaborator or the platform owner.
// Addresses compare case-insensitively and are stored lower-cased.
type Address string

// ParseAddress normalizes s into an Address.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return "", ErrInvalidAddress
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

// UnmarshalText normalizes the address the way ParseAddress does.
func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// Subscription is the membership record of one subscriber.
// Records are never deleted; whether a record is active is derived from ExpiresAt.
type Subscription struct {
	MembershipID int64        `json:"membership_id"`
	Subscriber   Address      `json:"subscriber"`
	Plan         catalog.Tier `json:"plan"`
	ExpiresAt    time.Time    `json:"expires_at"`
	Trial        bool         `json:"trial"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Active reports whether the term has not yet ended at now.
func (s Subscription) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Remaining returns the time left on the term, or zero once expired.
func (s Subscription) Remaining(now time.Time) time.Duration {
	return max(s.ExpiresAt.Sub(now), 0)
}

// Paid reports whether the subscription is active on a paid tier.
func (s Subscription) Paid(now time.Time) bool {
	return s.Plan != catalog.Free && s.Active(now)
}

// Credit entry reasons.
const (
	ReasonTrial     = "trial"
	ReasonSubscribe = "subscribe"
	ReasonRenew     = "renew"
	ReasonGrant     = "grant"
	ReasonDeduct    = "deduct"
	ReasonCharge    = "charge"
	ReasonSet       = "set"
	ReasonTopUp     = "top_up"
)

// CreditEntry is one append-only movement of a credit balance.
type CreditEntry struct {
	ID           int64     `json:"id"`
	Subscriber   Address   `json:"subscriber"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// PaymentKind classifies value moving in or out of the treasury.
type PaymentKind string

const (
	PaymentSubscribe  PaymentKind = "subscribe"
	PaymentRenew      PaymentKind = "renew"
	PaymentUpgrade    PaymentKind = "upgrade"
	PaymentTopUp      PaymentKind = "top_up"
	PaymentRefund     PaymentKind = "refund"
	PaymentWithdrawal PaymentKind = "withdrawal"
)

// Valid reports whether k is a known payment kind.
func (k PaymentKind) Valid() bool {
	switch k {
	case PaymentSubscribe, PaymentRenew, PaymentUpgrade, PaymentTopUp, PaymentRefund, PaymentWithdrawal:
		return true
	}
	return false
}

// Outflow reports whether the payment leaves the treasury.
func (k PaymentKind) Outflow() bool {
	return k == PaymentRefund || k == PaymentWithdrawal
}

// Payment records value received or paid out. Reference is unique per store.
// For outflows, From is the recipient.
type Payment struct {
	Reference string        `json:"reference"`
	From      Address       `json:"from"`
	Amount    catalog.Money `json:"amount"`
	Kind      PaymentKind   `json:"kind"`
	CreatedAt time.Time     `json:"created_at"`
}

// Signed returns the amount with outflows negated.
func (p Payment) Signed() int64 {
	if p.Kind.Outflow() {
		return -p.Amount.Amount
	}
	return p.Amount.Amount
}

func validatePayment(p Payment) error {
	if !p.Kind.Valid() || p.Amount.Amount < 0 || p.Amount.Currency == "" {
		return ErrInvalidPayment
	}
	return nil
}
