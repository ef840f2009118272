// Package pgstore implements ledger.Store on PostgreSQL.
//
// Each unit of work is one database transaction. Rows read through a Tx are
// locked with SELECT ... FOR UPDATE, and balance changes are conditional
// updates guarded by a CHECK (balance >= 0) constraint, so concurrent
// deductions can never overdraw a balance.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/pg"
)

// Migrations holds the schema, applied with pg.Migrate(ctx, pool, Migrations, MigrationsDir, ...).
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the goose files.
const MigrationsDir = "migrations"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a ledger.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	reader
}

var _ ledger.Store = (*Store)(nil)

// New wraps a pool whose schema has been migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, reader: reader{q: pool}}
}

// Atomic implements ledger.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(pgTx pgx.Tx) error {
		tx := &storeTx{tx: pgTx, reader: reader{q: pgTx, lock: true}}
		defer tx.close()
		return fn(ctx, tx)
	})
}

const subscriptionColumns = `membership_id, subscriber, plan, expires_at, trial, created_at, updated_at`

type reader struct {
	q    querier
	lock bool
}

func (r reader) forUpdate() string {
	if r.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (r reader) SubscriptionByID(ctx context.Context, id int64) (ledger.Subscription, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE membership_id = $1`+r.forUpdate(), id)
	return scanSubscription(row)
}

func (r reader) SubscriptionByAddress(ctx context.Context, addr ledger.Address) (ledger.Subscription, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscriber = $1`+r.forUpdate(), string(addr))
	return scanSubscription(row)
}

func (r reader) Balance(ctx context.Context, addr ledger.Address) (int64, error) {
	var bal int64
	err := r.q.QueryRow(ctx,
		`SELECT balance FROM credit_balances WHERE subscriber = $1`+r.forUpdate(), string(addr)).Scan(&bal)
	if pg.IsNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pgstore: read balance: %w", err)
	}
	return bal, nil
}

func (r reader) History(ctx context.Context, addr ledger.Address) ([]ledger.CreditEntry, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, subscriber, delta, balance_after, reason, created_at
		   FROM credit_entries WHERE subscriber = $1 ORDER BY id`, string(addr))
	if err != nil {
		return nil, fmt.Errorf("pgstore: read history: %w", err)
	}
	defer rows.Close()

	out := []ledger.CreditEntry{}
	for rows.Next() {
		var (
			e          ledger.CreditEntry
			subscriber string
		)
		if err := rows.Scan(&e.ID, &subscriber, &e.Delta, &e.BalanceAfter, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan credit entry: %w", err)
		}
		e.Subscriber = ledger.Address(subscriber)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r reader) ExpiredBetween(ctx context.Context, from, to time.Time) ([]ledger.Subscription, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		  WHERE expires_at > $1 AND expires_at <= $2
		  ORDER BY expires_at, membership_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list expired: %w", err)
	}
	defer rows.Close()

	out := []ledger.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (r reader) Revenue(ctx context.Context, currency string) (catalog.Money, error) {
	if r.lock {
		// Held until commit, so the next sweep sums after this one's withdrawal.
		if _, err := r.q.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext('ledger.revenue:' || lower($1)))`, currency); err != nil {
			return catalog.Money{}, fmt.Errorf("pgstore: lock revenue: %w", err)
		}
	}
	var total int64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN kind IN ('refund', 'withdrawal') THEN -amount ELSE amount END), 0)
		   FROM payments WHERE lower(currency) = lower($1)`, currency).Scan(&total)
	if err != nil {
		return catalog.Money{}, fmt.Errorf("pgstore: read revenue: %w", err)
	}
	return catalog.Money{Amount: total, Currency: currency}, nil
}

func scanSubscription(row pgx.Row) (ledger.Subscription, error) {
	var (
		sub        ledger.Subscription
		subscriber string
		plan       int16
	)
	err := row.Scan(&sub.MembershipID, &subscriber, &plan, &sub.ExpiresAt, &sub.Trial, &sub.CreatedAt, &sub.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return ledger.Subscription{}, ledger.ErrSubscriptionNotFound
	}
	if err != nil {
		return ledger.Subscription{}, fmt.Errorf("pgstore: scan subscription: %w", err)
	}
	sub.Subscriber = ledger.Address(subscriber)
	sub.Plan = catalog.Tier(plan)
	sub.ExpiresAt = sub.ExpiresAt.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub, nil
}

type storeTx struct {
	reader
	tx     pgx.Tx
	closed bool
}

func (t *storeTx) close() { t.closed = true }

func (t *storeTx) check() error {
	if t.closed {
		return ledger.ErrTxClosed
	}
	return nil
}

func (t *storeTx) SubscriptionByID(ctx context.Context, id int64) (ledger.Subscription, error) {
	if err := t.check(); err != nil {
		return ledger.Subscription{}, err
	}
	return t.reader.SubscriptionByID(ctx, id)
}

func (t *storeTx) SubscriptionByAddress(ctx context.Context, addr ledger.Address) (ledger.Subscription, error) {
	if err := t.check(); err != nil {
		return ledger.Subscription{}, err
	}
	return t.reader.SubscriptionByAddress(ctx, addr)
}

func (t *storeTx) Balance(ctx context.Context, addr ledger.Address) (int64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.reader.Balance(ctx, addr)
}

func (t *storeTx) NextMembershipID(ctx context.Context) (int64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	var id int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('membership_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("pgstore: next membership id: %w", err)
	}
	return id, nil
}

func (t *storeTx) CreateSubscription(ctx context.Context, sub ledger.Subscription) error {
	if err := t.check(); err != nil {
		return err
	}
	if sub.Subscriber.IsZero() {
		return ledger.ErrInvalidAddress
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT DO NOTHING`,
		sub.MembershipID, string(sub.Subscriber), int16(sub.Plan), sub.ExpiresAt, sub.Trial, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: create subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAlreadyOwnsSubscription
	}
	return nil
}

func (t *storeTx) UpdateSubscription(ctx context.Context, sub ledger.Subscription) error {
	if err := t.check(); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE subscriptions SET plan = $2, expires_at = $3, trial = $4, updated_at = $5
		  WHERE membership_id = $1`,
		sub.MembershipID, int16(sub.Plan), sub.ExpiresAt, sub.Trial, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrSubscriptionNotFound
	}
	return nil
}

func (t *storeTx) AddCredits(ctx context.Context, addr ledger.Address, delta int64, reason string, at time.Time) (ledger.CreditEntry, error) {
	if err := t.check(); err != nil {
		return ledger.CreditEntry{}, err
	}

	var (
		balance int64
		err     error
	)
	if delta >= 0 {
		err = t.tx.QueryRow(ctx,
			`INSERT INTO credit_balances (subscriber, balance, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (subscriber) DO UPDATE
			   SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
			 RETURNING balance`,
			string(addr), delta, at).Scan(&balance)
	} else {
		err = t.tx.QueryRow(ctx,
			`UPDATE credit_balances SET balance = balance + $2, updated_at = $3
			  WHERE subscriber = $1 AND balance + $2 >= 0
			  RETURNING balance`,
			string(addr), delta, at).Scan(&balance)
	}
	switch {
	case pg.IsNotFoundError(err), pg.IsCheckViolationError(err):
		return ledger.CreditEntry{}, ledger.ErrInsufficientCredits
	case err != nil:
		return ledger.CreditEntry{}, fmt.Errorf("pgstore: add credits: %w", err)
	}

	return t.appendEntry(ctx, addr, delta, balance, reason, at)
}

func (t *storeTx) SetCredits(ctx context.Context, addr ledger.Address, balance int64, reason string, at time.Time) (ledger.CreditEntry, error) {
	if balance < 0 {
		return ledger.CreditEntry{}, ledger.ErrNegativeBalance
	}
	previous, err := t.Balance(ctx, addr)
	if err != nil {
		return ledger.CreditEntry{}, err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO credit_balances (subscriber, balance, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (subscriber) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		string(addr), balance, at)
	if err != nil {
		return ledger.CreditEntry{}, fmt.Errorf("pgstore: set credits: %w", err)
	}
	return t.appendEntry(ctx, addr, balance-previous, balance, reason, at)
}

func (t *storeTx) appendEntry(ctx context.Context, addr ledger.Address, delta, balance int64, reason string, at time.Time) (ledger.CreditEntry, error) {
	e := ledger.CreditEntry{
		Subscriber:   addr,
		Delta:        delta,
		BalanceAfter: balance,
		Reason:       reason,
		CreatedAt:    at,
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO credit_entries (subscriber, delta, balance_after, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		string(addr), delta, balance, reason, at).Scan(&e.ID)
	if err != nil {
		return ledger.CreditEntry{}, fmt.Errorf("pgstore: append credit entry: %w", err)
	}
	return e, nil
}

func (t *storeTx) RecordPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	if err := t.check(); err != nil {
		return ledger.Payment{}, err
	}
	if !p.Kind.Valid() || p.Amount.Amount < 0 || p.Amount.Currency == "" {
		return ledger.Payment{}, ledger.ErrInvalidPayment
	}
	if p.Reference == "" {
		p.Reference = uuid.NewString()
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO payments (reference, payer, amount, currency, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (reference) DO NOTHING`,
		p.Reference, string(p.From), p.Amount.Amount, p.Amount.Currency, string(p.Kind), p.CreatedAt)
	if err != nil {
		return ledger.Payment{}, fmt.Errorf("pgstore: record payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.Payment{}, ledger.ErrDuplicatePayment
	}
	return p, nil
}
