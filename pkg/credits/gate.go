// Package credits meters privileged actions against per-subscriber credit
// balances.
//
// Balances are granted by subscriptions and top-up purchases and consumed one
// unit per privileged write elsewhere in the platform. Charge runs the debit
// and the caller's own work in one unit of work: if either fails, neither is
// applied.
package credits

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/lock"
	"github.com/meedprogram/meedkit/pkg/logger"
	"github.com/meedprogram/meedkit/pkg/metrics"
	"github.com/meedprogram/meedkit/pkg/treasury"
)

// Effect is work performed in the same unit of work as a credit debit.
// It must use tx for ledger access and never call back into the store.
type Effect func(ctx context.Context, tx ledger.Tx) error

// Gate is the credit metering service.
type Gate struct {
	store    ledger.Store
	topUps   *catalog.TopUps
	transfer treasury.Transferer

	owner               ledger.Address
	mu                  sync.RWMutex
	consumers           map[ledger.Address]struct{}
	delegation          delegation.Registry
	requireSubscription bool

	locker  lock.Locker
	journal *audit.Logger
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New creates a gate. Overpayments on top-up purchases are refunded through transfer.
func New(store ledger.Store, topUps *catalog.TopUps, transfer treasury.Transferer, opts ...Option) *Gate {
	if store == nil || topUps == nil || transfer == nil {
		panic("credits: store, top-up catalog and transferer are required")
	}
	g := &Gate{
		store:               store,
		topUps:              topUps,
		transfer:            transfer,
		consumers:           make(map[ledger.Address]struct{}),
		delegation:          delegation.None{},
		requireSubscription: true,
		locker:              lock.NewMemoryLocker(),
		journal:             audit.NewLogger(nil),
		log:                 logger.Discard(),
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(logger.Component("credits"))
	return g
}

// TopUps exposes the top-up catalog.
func (g *Gate) TopUps() *catalog.TopUps {
	return g.topUps
}

// AddConsumer registers a collaborator allowed to deduct credits. Owner only.
func (g *Gate) AddConsumer(caller, consumer ledger.Address) error {
	if !g.isOwner(caller) {
		return ErrUnauthorized
	}
	if consumer.IsZero() {
		return ledger.ErrInvalidAddress
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consumers[consumer] = struct{}{}
	return nil
}

// RemoveConsumer revokes a collaborator. Owner only.
func (g *Gate) RemoveConsumer(caller, consumer ledger.Address) error {
	if !g.isOwner(caller) {
		return ErrUnauthorized
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.consumers, consumer)
	return nil
}

func (g *Gate) isOwner(addr ledger.Address) bool {
	return !g.owner.IsZero() && addr == g.owner
}

func (g *Gate) isConsumer(addr ledger.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.consumers[addr]
	return ok
}

// Balance returns the credit balance of addr. Unknown addresses have zero credits.
func (g *Gate) Balance(ctx context.Context, addr ledger.Address) (int64, error) {
	return g.store.Balance(ctx, addr)
}

// History returns every balance movement of addr, oldest first.
func (g *Gate) History(ctx context.Context, addr ledger.Address) ([]ledger.CreditEntry, error) {
	return g.store.History(ctx, addr)
}

// Grant adds amount credits to addr. Owner only.
func (g *Gate) Grant(ctx context.Context, caller, addr ledger.Address, amount int64) (entry ledger.CreditEntry, err error) {
	defer g.observe(ctx, "credits.grant", time.Now(), &err, logger.Subscriber(addr))

	if !g.isOwner(caller) {
		return entry, ErrUnauthorized
	}
	if amount <= 0 {
		return entry, ErrInvalidAmount
	}
	err = g.locked(ctx, addr, func(ctx context.Context, tx ledger.Tx) error {
		entry, err = tx.AddCredits(ctx, addr, amount, ledger.ReasonGrant, g.now().UTC())
		return err
	})
	if err != nil {
		return ledger.CreditEntry{}, err
	}
	g.Record(ctx, caller, entry)
	return entry, nil
}

// Allot adds credits inside a unit of work owned by the caller. It is how
// subscriptions grant their period's credits. Zero is a no-op.
// The caller reports the committed entry with Record.
func (g *Gate) Allot(ctx context.Context, tx ledger.Tx, addr ledger.Address, amount int64, reason string) (ledger.CreditEntry, error) {
	if amount < 0 {
		return ledger.CreditEntry{}, ErrInvalidAmount
	}
	if amount == 0 {
		return ledger.CreditEntry{}, nil
	}
	return tx.AddCredits(ctx, addr, amount, reason, g.now().UTC())
}

// Deduct removes amount credits from addr. Only the owner or a registered
// consumer may deduct.
func (g *Gate) Deduct(ctx context.Context, caller, addr ledger.Address, amount int64) (entry ledger.CreditEntry, err error) {
	defer g.observe(ctx, "credits.deduct", time.Now(), &err, logger.Subscriber(addr), logger.Caller(caller))

	if !g.isOwner(caller) && !g.isConsumer(caller) {
		return entry, ErrUnauthorized
	}
	if amount <= 0 {
		return entry, ErrInvalidAmount
	}
	err = g.locked(ctx, addr, func(ctx context.Context, tx ledger.Tx) error {
		entry, err = tx.AddCredits(ctx, addr, -amount, ledger.ReasonDeduct, g.now().UTC())
		return err
	})
	if err != nil {
		return ledger.CreditEntry{}, err
	}
	g.Record(ctx, caller, entry)
	return entry, nil
}

// Charge debits amount credits from subscriber and then runs effect in the
// same unit of work. An insufficient balance means effect never runs; an
// effect failure rolls the debit back.
//
// The caller may be the subscriber, the owner, a registered consumer, or an
// admin the delegation registry authorizes while the subscriber holds an
// active paid subscription.
func (g *Gate) Charge(ctx context.Context, caller, subscriber ledger.Address, amount int64, effect Effect) (entry ledger.CreditEntry, err error) {
	defer g.observe(ctx, "credits.charge", time.Now(), &err, logger.Subscriber(subscriber), logger.Caller(caller))

	if amount <= 0 {
		return entry, ErrInvalidAmount
	}
	err = g.locked(ctx, subscriber, func(ctx context.Context, tx ledger.Tx) error {
		if err := g.mayCharge(ctx, tx, caller, subscriber); err != nil {
			return err
		}
		entry, err = tx.AddCredits(ctx, subscriber, -amount, ledger.ReasonCharge, g.now().UTC())
		if err != nil {
			return err
		}
		if effect == nil {
			return nil
		}
		return effect(ctx, tx)
	})
	if err != nil {
		return ledger.CreditEntry{}, err
	}
	g.Record(ctx, caller, entry)
	return entry, nil
}

func (g *Gate) mayCharge(ctx context.Context, tx ledger.Tx, caller, subscriber ledger.Address) error {
	if caller == subscriber || g.isOwner(caller) || g.isConsumer(caller) {
		return nil
	}
	ok, err := g.delegation.IsAuthorized(ctx, caller, subscriber)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	sub, err := tx.SubscriptionByAddress(ctx, subscriber)
	if errors.Is(err, ledger.ErrSubscriptionNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if !sub.Paid(g.now()) {
		return ErrUnauthorized
	}
	return nil
}

// SetBalance overwrites the balance of addr. Owner only.
func (g *Gate) SetBalance(ctx context.Context, caller, addr ledger.Address, amount int64) (entry ledger.CreditEntry, err error) {
	defer g.observe(ctx, "credits.set", time.Now(), &err, logger.Subscriber(addr))

	if !g.isOwner(caller) {
		return entry, ErrUnauthorized
	}
	if amount < 0 {
		return entry, ErrInvalidAmount
	}
	err = g.locked(ctx, addr, func(ctx context.Context, tx ledger.Tx) error {
		entry, err = tx.SetCredits(ctx, addr, amount, ledger.ReasonSet, g.now().UTC())
		return err
	})
	if err != nil {
		return ledger.CreditEntry{}, err
	}
	g.Record(ctx, caller, entry)
	return entry, nil
}

// BuyCredits sells top-up bundle id to caller. A payment above the price is
// accepted and the difference refunded in the same unit of work; a failed
// refund cancels the purchase. The refund is sent before the unit commits, so
// a commit failure after a successful refund leaves the refund unrecorded.
func (g *Gate) BuyCredits(ctx context.Context, caller ledger.Address, id int, payment catalog.Money) (entry ledger.CreditEntry, err error) {
	defer g.observe(ctx, "credits.buy", time.Now(), &err, logger.Caller(caller))

	if caller.IsZero() {
		return entry, ledger.ErrInvalidAddress
	}
	top, err := g.topUps.Get(id)
	if err != nil {
		return entry, err
	}
	if !payment.SameCurrency(top.Price) || payment.Amount < top.Price.Amount {
		return entry, ErrInsufficientFunds
	}
	refund := payment.Sub(top.Price)
	ref := ledger.ReferenceFrom(ctx)

	err = g.locked(ctx, caller, func(ctx context.Context, tx ledger.Tx) error {
		if g.requireSubscription {
			sub, err := tx.SubscriptionByAddress(ctx, caller)
			if errors.Is(err, ledger.ErrSubscriptionNotFound) {
				return ErrSubscriptionExpired
			}
			if err != nil {
				return err
			}
			if !sub.Active(g.now()) {
				return ErrSubscriptionExpired
			}
		}

		at := g.now().UTC()
		if _, err := tx.RecordPayment(ctx, ledger.Payment{
			Reference: ref,
			From:      caller,
			Amount:    payment,
			Kind:      ledger.PaymentTopUp,
			CreatedAt: at,
		}); err != nil {
			return err
		}
		entry, err = tx.AddCredits(ctx, caller, top.Credits, ledger.ReasonTopUp, at)
		if err != nil {
			return err
		}
		if refund.Amount == 0 {
			return nil
		}
		if _, err := tx.RecordPayment(ctx, ledger.Payment{
			Reference: ledger.DerivedReference(ref, "refund"),
			From:      caller,
			Amount:    refund,
			Kind:      ledger.PaymentRefund,
			CreatedAt: at,
		}); err != nil {
			return err
		}
		return treasury.Pay(ctx, g.transfer, caller, refund, "top-up refund")
	})
	if err != nil {
		return ledger.CreditEntry{}, err
	}

	g.metrics.Payment(string(ledger.PaymentTopUp), payment.Currency, top.Price.Amount)
	g.Record(ctx, caller, entry)
	_ = g.journal.Log(ctx, audit.ActionCreditsPurchased,
		audit.WithActor(caller.String()),
		audit.WithSubscriber(caller.String()),
		audit.WithMetadata("top_up", top.ID),
		audit.WithMetadata("price", top.Price.String()),
		audit.WithMetadata("refund", refund.String()),
	)
	return entry, nil
}

// EditCreditPlan changes the credits and price of a top-up bundle for future
// purchases. Owner only.
func (g *Gate) EditCreditPlan(ctx context.Context, caller ledger.Address, id int, credits int64, price catalog.Money) (top catalog.TopUp, err error) {
	defer g.observe(ctx, "credits.edit_top_up", time.Now(), &err)

	if !g.isOwner(caller) {
		return top, ErrUnauthorized
	}
	top, err = g.topUps.Set(id, credits, price)
	if err != nil {
		return catalog.TopUp{}, err
	}
	g.log.InfoContext(ctx, "top-up updated",
		slog.Int("top_up", top.ID),
		logger.Credits(top.Credits),
		logger.Amount(top.Price),
	)
	_ = g.journal.Log(ctx, audit.ActionTopUpUpdated,
		audit.WithActor(caller.String()),
		audit.WithMetadata("top_up", top.ID),
		audit.WithMetadata("credits", top.Credits),
		audit.WithMetadata("price", top.Price.String()),
	)
	return top, nil
}

// Record reports a committed balance movement to metrics and the audit journal.
func (g *Gate) Record(ctx context.Context, actor ledger.Address, e ledger.CreditEntry) {
	if e.Delta == 0 && e.Reason != ledger.ReasonSet {
		return
	}
	g.metrics.CreditsMoved(e.Reason, e.Delta)

	action := audit.ActionCreditsAdded
	switch {
	case e.Reason == ledger.ReasonSet:
		action = audit.ActionCreditsSet
	case e.Delta < 0:
		action = audit.ActionCreditsDeducted
	}
	_ = g.journal.Log(ctx, action,
		audit.WithActor(actor.String()),
		audit.WithSubscriber(e.Subscriber.String()),
		audit.WithMetadata("delta", e.Delta),
		audit.WithMetadata("balance", e.BalanceAfter),
		audit.WithMetadata("reason", e.Reason),
	)
	g.log.DebugContext(ctx, "credits moved",
		logger.Subscriber(e.Subscriber),
		logger.Credits(e.Delta),
		slog.Int64("balance", e.BalanceAfter),
		slog.String("reason", e.Reason),
	)
}

func (g *Gate) locked(ctx context.Context, addr ledger.Address, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if addr.IsZero() {
		return ledger.ErrInvalidAddress
	}
	unlock, err := g.locker.Lock(ctx, lock.SubscriberKey(addr.String()))
	if err != nil {
		return err
	}
	defer unlock()
	return g.store.Atomic(ctx, fn)
}

func (g *Gate) observe(ctx context.Context, op string, start time.Time, errp *error, attrs ...slog.Attr) {
	err := *errp
	g.metrics.Observe(op, start, err)
	if err == nil {
		return
	}
	level := slog.LevelError
	if rejected(err) {
		level = slog.LevelWarn
	}
	g.log.LogAttrs(ctx, level, "operation failed",
		append(attrs, logger.Operation(op), logger.Error(err))...)
}
