package ledger

import (
	"context"
	"time"

	"github.com/meedprogram/meedkit/pkg/catalog"
)

// Reader is the read side of the ledger.
type Reader interface {
	// SubscriptionByID returns ErrSubscriptionNotFound for unknown ids.
	SubscriptionByID(ctx context.Context, id int64) (Subscription, error)
	// SubscriptionByAddress returns ErrSubscriptionNotFound if the address never subscribed.
	SubscriptionByAddress(ctx context.Context, addr Address) (Subscription, error)
	// Balance returns zero for addresses that never held credits.
	Balance(ctx context.Context, addr Address) (int64, error)
	// History returns credit entries oldest first.
	History(ctx context.Context, addr Address) ([]CreditEntry, error)
	// ExpiredBetween lists subscriptions with from < ExpiresAt <= to.
	ExpiredBetween(ctx context.Context, from, to time.Time) ([]Subscription, error)
	// Revenue is the net of recorded payments in currency. Inside a Tx it also
	// serializes the unit of work against others reading revenue in the same
	// currency, until the unit ends.
	Revenue(ctx context.Context, currency string) (catalog.Money, error)
}

// Tx is a unit of work. Writes become visible to other readers only when the
// enclosing Atomic call returns nil.
type Tx interface {
	Reader

	// NextMembershipID reserves a fresh id. Ids are never reused but may have gaps.
	NextMembershipID(ctx context.Context) (int64, error)
	// CreateSubscription fails with ErrAlreadyOwnsSubscription if the subscriber has a record.
	CreateSubscription(ctx context.Context, sub Subscription) error
	// UpdateSubscription replaces an existing record.
	UpdateSubscription(ctx context.Context, sub Subscription) error

	// AddCredits moves a balance by delta. A result below zero fails with
	// ErrInsufficientCredits and leaves the balance unchanged.
	AddCredits(ctx context.Context, addr Address, delta int64, reason string, at time.Time) (CreditEntry, error)
	// SetCredits overwrites a balance.
	SetCredits(ctx context.Context, addr Address, balance int64, reason string, at time.Time) (CreditEntry, error)

	// RecordPayment stores p. An empty reference is replaced with a generated one.
	// A reused reference fails with ErrDuplicatePayment.
	RecordPayment(ctx context.Context, p Payment) (Payment, error)
}

// Store persists subscriptions, credit balances and payments.
type Store interface {
	Reader

	// Atomic runs fn in a unit of work. If fn returns an error, nothing it wrote is kept.
	// fn must only use tx; calling back into the Store from fn is not supported.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
