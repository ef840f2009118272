package ledger

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meedprogram/meedkit/pkg/catalog"
)

// MemoryStore is an in-process Store. Units of work are serialized by a single
// mutex; a unit's writes are staged and merged only when it succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	lastID    int64
	lastEntry int64
	subs      map[int64]Subscription
	byAddr    map[Address]int64
	balances  map[Address]int64
	entries   map[Address][]CreditEntry
	payments  map[string]Payment
	paid      []string
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			subs:     make(map[int64]Subscription),
			byAddr:   make(map[Address]int64),
			balances: make(map[Address]int64),
			entries:  make(map[Address][]CreditEntry),
			payments: make(map[string]Payment),
		},
	}
}

// Atomic implements Store.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newMemoryTx(&m.state)
	defer tx.close()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *MemoryStore) read(fn func(tx *memoryTx)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := newMemoryTx(&m.state)
	defer tx.close()
	fn(tx)
}

func (m *MemoryStore) SubscriptionByID(ctx context.Context, id int64) (sub Subscription, err error) {
	m.read(func(tx *memoryTx) { sub, err = tx.SubscriptionByID(ctx, id) })
	return sub, err
}

func (m *MemoryStore) SubscriptionByAddress(ctx context.Context, addr Address) (sub Subscription, err error) {
	m.read(func(tx *memoryTx) { sub, err = tx.SubscriptionByAddress(ctx, addr) })
	return sub, err
}

func (m *MemoryStore) Balance(ctx context.Context, addr Address) (bal int64, err error) {
	m.read(func(tx *memoryTx) { bal, err = tx.Balance(ctx, addr) })
	return bal, err
}

func (m *MemoryStore) History(ctx context.Context, addr Address) (entries []CreditEntry, err error) {
	m.read(func(tx *memoryTx) { entries, err = tx.History(ctx, addr) })
	return entries, err
}

func (m *MemoryStore) ExpiredBetween(ctx context.Context, from, to time.Time) (subs []Subscription, err error) {
	m.read(func(tx *memoryTx) { subs, err = tx.ExpiredBetween(ctx, from, to) })
	return subs, err
}

func (m *MemoryStore) Revenue(ctx context.Context, currency string) (rev catalog.Money, err error) {
	m.read(func(tx *memoryTx) { rev, err = tx.Revenue(ctx, currency) })
	return rev, err
}

// memoryTx reads through its staged writes to the committed state.
type memoryTx struct {
	base   *memoryState
	closed bool

	lastID    int64
	lastEntry int64
	subs      map[int64]Subscription
	byAddr    map[Address]int64
	balances  map[Address]int64
	entries   []CreditEntry
	payments  []Payment
}

func newMemoryTx(base *memoryState) *memoryTx {
	return &memoryTx{
		base:      base,
		lastID:    base.lastID,
		lastEntry: base.lastEntry,
		subs:      make(map[int64]Subscription),
		byAddr:    make(map[Address]int64),
		balances:  make(map[Address]int64),
	}
}

func (tx *memoryTx) close() { tx.closed = true }

func (tx *memoryTx) commit() {
	b := tx.base
	b.lastID = tx.lastID
	b.lastEntry = tx.lastEntry
	maps.Copy(b.subs, tx.subs)
	maps.Copy(b.byAddr, tx.byAddr)
	maps.Copy(b.balances, tx.balances)
	for _, e := range tx.entries {
		b.entries[e.Subscriber] = append(b.entries[e.Subscriber], e)
	}
	for _, p := range tx.payments {
		b.payments[p.Reference] = p
		b.paid = append(b.paid, p.Reference)
	}
}

func (tx *memoryTx) check(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	return ctx.Err()
}

func (tx *memoryTx) SubscriptionByID(ctx context.Context, id int64) (Subscription, error) {
	if err := tx.check(ctx); err != nil {
		return Subscription{}, err
	}
	if sub, ok := tx.subs[id]; ok {
		return sub, nil
	}
	if sub, ok := tx.base.subs[id]; ok {
		return sub, nil
	}
	return Subscription{}, ErrSubscriptionNotFound
}

func (tx *memoryTx) SubscriptionByAddress(ctx context.Context, addr Address) (Subscription, error) {
	if err := tx.check(ctx); err != nil {
		return Subscription{}, err
	}
	id, ok := tx.byAddr[addr]
	if !ok {
		id, ok = tx.base.byAddr[addr]
	}
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return tx.SubscriptionByID(ctx, id)
}

func (tx *memoryTx) Balance(ctx context.Context, addr Address) (int64, error) {
	if err := tx.check(ctx); err != nil {
		return 0, err
	}
	return tx.balance(addr), nil
}

func (tx *memoryTx) balance(addr Address) int64 {
	if bal, ok := tx.balances[addr]; ok {
		return bal
	}
	return tx.base.balances[addr]
}

func (tx *memoryTx) History(ctx context.Context, addr Address) ([]CreditEntry, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	out := slices.Clone(tx.base.entries[addr])
	for _, e := range tx.entries {
		if e.Subscriber == addr {
			out = append(out, e)
		}
	}
	if out == nil {
		out = []CreditEntry{}
	}
	return out, nil
}

func (tx *memoryTx) ExpiredBetween(ctx context.Context, from, to time.Time) ([]Subscription, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	merged := maps.Clone(tx.base.subs)
	maps.Copy(merged, tx.subs)

	out := []Subscription{}
	for _, sub := range merged {
		if sub.ExpiresAt.After(from) && !sub.ExpiresAt.After(to) {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return cmp.Compare(a.MembershipID, b.MembershipID)
	})
	return out, nil
}

func (tx *memoryTx) Revenue(ctx context.Context, currency string) (catalog.Money, error) {
	if err := tx.check(ctx); err != nil {
		return catalog.Money{}, err
	}
	total := catalog.Money{Currency: currency}
	sum := func(p Payment) {
		if p.Amount.SameCurrency(total) {
			total.Amount += p.Signed()
		}
	}
	for _, ref := range tx.base.paid {
		sum(tx.base.payments[ref])
	}
	for _, p := range tx.payments {
		sum(p)
	}
	return total, nil
}

func (tx *memoryTx) NextMembershipID(ctx context.Context) (int64, error) {
	if err := tx.check(ctx); err != nil {
		return 0, err
	}
	tx.lastID++
	return tx.lastID, nil
}

func (tx *memoryTx) CreateSubscription(ctx context.Context, sub Subscription) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	if sub.Subscriber.IsZero() {
		return ErrInvalidAddress
	}
	if _, err := tx.SubscriptionByAddress(ctx, sub.Subscriber); err == nil {
		return ErrAlreadyOwnsSubscription
	}
	if _, err := tx.SubscriptionByID(ctx, sub.MembershipID); err == nil {
		return ErrAlreadyOwnsSubscription
	}
	tx.subs[sub.MembershipID] = sub
	tx.byAddr[sub.Subscriber] = sub.MembershipID
	return nil
}

func (tx *memoryTx) UpdateSubscription(ctx context.Context, sub Subscription) error {
	current, err := tx.SubscriptionByID(ctx, sub.MembershipID)
	if err != nil {
		return err
	}
	// The owner of a membership never changes.
	sub.Subscriber = current.Subscriber
	tx.subs[sub.MembershipID] = sub
	return nil
}

func (tx *memoryTx) AddCredits(ctx context.Context, addr Address, delta int64, reason string, at time.Time) (CreditEntry, error) {
	if err := tx.check(ctx); err != nil {
		return CreditEntry{}, err
	}
	next := tx.balance(addr) + delta
	if next < 0 {
		return CreditEntry{}, ErrInsufficientCredits
	}
	return tx.append(addr, delta, next, reason, at), nil
}

func (tx *memoryTx) SetCredits(ctx context.Context, addr Address, balance int64, reason string, at time.Time) (CreditEntry, error) {
	if err := tx.check(ctx); err != nil {
		return CreditEntry{}, err
	}
	if balance < 0 {
		return CreditEntry{}, ErrNegativeBalance
	}
	return tx.append(addr, balance-tx.balance(addr), balance, reason, at), nil
}

func (tx *memoryTx) append(addr Address, delta, balance int64, reason string, at time.Time) CreditEntry {
	tx.lastEntry++
	e := CreditEntry{
		ID:           tx.lastEntry,
		Subscriber:   addr,
		Delta:        delta,
		BalanceAfter: balance,
		Reason:       reason,
		CreatedAt:    at,
	}
	tx.balances[addr] = balance
	tx.entries = append(tx.entries, e)
	return e
}

func (tx *memoryTx) RecordPayment(ctx context.Context, p Payment) (Payment, error) {
	if err := tx.check(ctx); err != nil {
		return Payment{}, err
	}
	if err := validatePayment(p); err != nil {
		return Payment{}, err
	}
	if p.Reference == "" {
		p.Reference = uuid.NewString()
	}
	if _, ok := tx.base.payments[p.Reference]; ok {
		return Payment{}, ErrDuplicatePayment
	}
	if slices.ContainsFunc(tx.payments, func(q Payment) bool { return q.Reference == p.Reference }) {
		return Payment{}, ErrDuplicatePayment
	}
	tx.payments = append(tx.payments, p)
	return p, nil
}
