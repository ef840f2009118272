// Package treasury moves value out of the engine: refunds of top-up
// overpayments and sweeps of collected revenue to the platform owner.
package treasury

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/lock"
	"github.com/meedprogram/meedkit/pkg/logger"
)

var (
	ErrUnauthorized   = errors.New("treasury: caller is not the platform owner")
	ErrTransferFailed = errors.New("treasury: transfer failed")
)

// Transferer sends value to an address. It is the engine's only way to pay out.
type Transferer interface {
	Transfer(ctx context.Context, to ledger.Address, amount catalog.Money, memo string) error
}

// Transfer is one payout seen by a Recorder.
type Transfer struct {
	To     ledger.Address
	Amount catalog.Money
	Memo   string
}

// Recorder is an in-memory Transferer that keeps every transfer it was asked to make.
type Recorder struct {
	mu        sync.Mutex
	transfers []Transfer
	fail      error
}

// NewRecorder creates a Recorder that accepts every transfer.
func NewRecorder() *Recorder { return &Recorder{} }

// Transfer records the payout, or returns the error set by FailWith.
func (r *Recorder) Transfer(_ context.Context, to ledger.Address, amount catalog.Money, memo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.transfers = append(r.transfers, Transfer{To: to, Amount: amount, Memo: memo})
	return nil
}

// FailWith makes subsequent transfers return err. Nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Transfers returns a copy of the recorded transfers.
func (r *Recorder) Transfers() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transfer(nil), r.transfers...)
}

// Treasury tracks revenue in the ledger and pays it out to the owner.
type Treasury struct {
	store    ledger.Store
	transfer Transferer
	owner    ledger.Address
	currency string
	locker   lock.Locker
	journal  *audit.Logger
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Treasury.
type Option func(*Treasury)

// WithLocker serializes withdrawals across processes sharing the store.
// Defaults to an in-process MemoryLocker.
func WithLocker(l lock.Locker) Option {
	return func(t *Treasury) {
		if l != nil {
			t.locker = l
		}
	}
}

// WithAudit journals every withdrawal.
func WithAudit(journal *audit.Logger) Option {
	return func(t *Treasury) { t.journal = journal }
}

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(t *Treasury) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock overrides the time source of recorded withdrawals.
func WithClock(now func() time.Time) Option {
	return func(t *Treasury) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates a treasury for revenue denominated in currency.
func New(store ledger.Store, transfer Transferer, owner ledger.Address, currency string, opts ...Option) *Treasury {
	if store == nil || transfer == nil {
		panic("treasury: store and transferer are required")
	}
	t := &Treasury{
		store:    store,
		transfer: transfer,
		owner:    owner,
		currency: currency,
		locker:   lock.NewMemoryLocker(),
		journal:  audit.NewLogger(nil),
		log:      logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(logger.Component("treasury"))
	return t
}

// Revenue returns the net value collected and not yet withdrawn.
func (t *Treasury) Revenue(ctx context.Context) (catalog.Money, error) {
	return t.store.Revenue(ctx, t.currency)
}

// Withdraw sends the whole revenue to the owner. Zero revenue is a no-op.
// Concurrent withdrawals are serialized, so revenue is paid out once.
//
// The withdrawal is recorded and the transfer made in one unit of work; a
// failed transfer leaves the revenue in place. The transfer runs before the
// commit: if the commit itself fails after a successful transfer, the value
// has left without a withdrawal record and the revenue still shows it.
func (t *Treasury) Withdraw(ctx context.Context, caller ledger.Address) (catalog.Money, error) {
	if t.owner.IsZero() || caller != t.owner {
		return catalog.Money{}, ErrUnauthorized
	}

	unlock, err := t.locker.Lock(ctx, lock.TreasuryKey(t.currency))
	if err != nil {
		return catalog.Money{}, err
	}
	defer unlock()

	var amount catalog.Money
	err = t.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		rev, err := tx.Revenue(ctx, t.currency)
		if err != nil {
			return err
		}
		amount = rev
		if rev.Amount <= 0 {
			return nil
		}
		if _, err := tx.RecordPayment(ctx, ledger.Payment{
			From:      t.owner,
			Amount:    rev,
			Kind:      ledger.PaymentWithdrawal,
			CreatedAt: t.now().UTC(),
		}); err != nil {
			return err
		}
		return Pay(ctx, t.transfer, t.owner, rev, "revenue withdrawal")
	})
	if err != nil {
		t.log.ErrorContext(ctx, "withdrawal failed", logger.Caller(caller), logger.Error(err))
		return catalog.Money{}, err
	}
	if amount.Amount <= 0 {
		return catalog.Money{Currency: t.currency}, nil
	}

	t.log.InfoContext(ctx, "revenue withdrawn", logger.Amount(amount))
	_ = t.journal.Log(ctx, audit.ActionRevenueWithdrawn,
		audit.WithActor(caller.String()),
		audit.WithMetadata("amount", amount.String()),
	)
	return amount, nil
}

// Pay calls tr and wraps its failure in ErrTransferFailed.
func Pay(ctx context.Context, tr Transferer, to ledger.Address, amount catalog.Money, memo string) error {
	if err := tr.Transfer(ctx, to, amount, memo); err != nil {
		return errors.Join(ErrTransferFailed, err)
	}
	return nil
}
