package credits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/credits"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/treasury"
)

const (
	owner    = ledger.Address("0xowner")
	brand    = ledger.Address("0xbrand")
	consumer = ledger.Address("0xloyalty")
	admin    = ledger.Address("0xadmin")
	stranger = ledger.Address("0xstranger")
)

var now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *ledger.MemoryStore
	gate     *credits.Gate
	refunds  *treasury.Recorder
	journal  *audit.MemoryStorage
	registry *delegation.MemoryRegistry
}

func newFixture(t *testing.T, opts ...credits.Option) fixture {
	t.Helper()
	f := fixture{
		store:    ledger.NewMemoryStore(),
		refunds:  treasury.NewRecorder(),
		journal:  audit.NewMemoryStorage(),
		registry: delegation.NewMemoryRegistry(),
	}
	opts = append([]credits.Option{
		credits.WithOwner(owner),
		credits.WithConsumers(consumer),
		credits.WithDelegation(f.registry),
		credits.WithAudit(audit.NewLogger(f.journal)),
		credits.WithClock(func() time.Time { return now }),
	}, opts...)
	f.gate = credits.New(f.store, catalog.DefaultTopUps(), f.refunds, opts...)
	return f
}

func (f fixture) subscribe(t *testing.T, addr ledger.Address, plan catalog.Tier, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, f.store.Atomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		id, err := tx.NextMembershipID(ctx)
		if err != nil {
			return err
		}
		return tx.CreateSubscription(ctx, ledger.Subscription{
			MembershipID: id,
			Subscriber:   addr,
			Plan:         plan,
			ExpiresAt:    expiresAt,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}))
}

func (f fixture) balance(t *testing.T, addr ledger.Address) int64 {
	t.Helper()
	bal, err := f.gate.Balance(context.Background(), addr)
	require.NoError(t, err)
	return bal
}

func TestGrant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Grant(ctx, stranger, brand, 100)
	assert.ErrorIs(t, err, credits.ErrUnauthorized)

	_, err = f.gate.Grant(ctx, owner, brand, 0)
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)

	_, err = f.gate.Grant(ctx, owner, brand, 1000)
	require.NoError(t, err)
	entry, err := f.gate.Grant(ctx, owner, brand, 500)
	require.NoError(t, err)

	assert.Equal(t, int64(1500), entry.BalanceAfter)
	assert.Equal(t, int64(1500), f.balance(t, brand))

	events, err := f.journal.Find(ctx, audit.Criteria{Action: audit.ActionCreditsAdded})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestDeduct(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Grant(ctx, owner, brand, 2500)
	require.NoError(t, err)

	_, err = f.gate.Deduct(ctx, stranger, brand, 1)
	assert.ErrorIs(t, err, credits.ErrUnauthorized)

	_, err = f.gate.Deduct(ctx, brand, brand, 1)
	assert.ErrorIs(t, err, credits.ErrUnauthorized, "subscribers cannot deduct directly")

	_, err = f.gate.Deduct(ctx, owner, brand, 2499)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.balance(t, brand))

	_, err = f.gate.Deduct(ctx, consumer, brand, 10)
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)
	assert.Equal(t, int64(1), f.balance(t, brand))

	_, err = f.gate.Deduct(ctx, consumer, brand, 1)
	require.NoError(t, err)
	assert.Zero(t, f.balance(t, brand))

	_, err = f.gate.Deduct(ctx, consumer, brand, -5)
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)
}

func TestConsumers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	other := ledger.Address("0xbundles")

	assert.ErrorIs(t, f.gate.AddConsumer(stranger, other), credits.ErrUnauthorized)
	require.NoError(t, f.gate.AddConsumer(owner, other))

	_, err := f.gate.Grant(ctx, owner, brand, 5)
	require.NoError(t, err)
	_, err = f.gate.Deduct(ctx, other, brand, 1)
	require.NoError(t, err)

	require.NoError(t, f.gate.RemoveConsumer(owner, other))
	_, err = f.gate.Deduct(ctx, other, brand, 1)
	assert.ErrorIs(t, err, credits.ErrUnauthorized)
}

func TestSetBalance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Grant(ctx, owner, brand, 2500)
	require.NoError(t, err)

	_, err = f.gate.SetBalance(ctx, stranger, brand, 1000)
	assert.ErrorIs(t, err, credits.ErrUnauthorized)
	_, err = f.gate.SetBalance(ctx, owner, brand, -1)
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)

	entry, err := f.gate.SetBalance(ctx, owner, brand, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(-1500), entry.Delta)
	assert.Equal(t, int64(1000), f.balance(t, brand))

	history, err := f.gate.History(ctx, brand)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.ReasonSet, history[1].Reason)
}

func TestCharge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("debits and runs effect", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.gate.Grant(ctx, owner, brand, 3)
		require.NoError(t, err)

		ran := false
		entry, err := f.gate.Charge(ctx, brand, brand, 1, func(ctx context.Context, tx ledger.Tx) error {
			bal, err := tx.Balance(ctx, brand)
			require.NoError(t, err)
			assert.Equal(t, int64(2), bal, "debit happens before the effect")
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, int64(2), entry.BalanceAfter)
		assert.Equal(t, ledger.ReasonCharge, entry.Reason)
	})

	t.Run("insufficient credits skips effect", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		ran := false
		_, err := f.gate.Charge(ctx, consumer, brand, 1, func(context.Context, ledger.Tx) error {
			ran = true
			return nil
		})
		assert.ErrorIs(t, err, credits.ErrInsufficientCredits)
		assert.False(t, ran)
	})

	t.Run("failing effect rolls back debit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.gate.Grant(ctx, owner, brand, 3)
		require.NoError(t, err)

		errMint := errors.New("mint failed")
		_, err = f.gate.Charge(ctx, brand, brand, 1, func(context.Context, ledger.Tx) error {
			return errMint
		})
		assert.ErrorIs(t, err, errMint)
		assert.Equal(t, int64(3), f.balance(t, brand))

		history, err := f.gate.History(ctx, brand)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("zero amount", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.gate.Charge(ctx, brand, brand, 0, nil)
		assert.ErrorIs(t, err, credits.ErrInvalidAmount)
	})
}

func TestCharge_DelegatedAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("authorized while owner is a paid subscriber", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Basic, now.Add(catalog.Month))
		require.NoError(t, f.registry.Add(brand, admin))
		_, err := f.gate.Grant(ctx, owner, brand, 10)
		require.NoError(t, err)

		_, err = f.gate.Charge(ctx, admin, brand, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(9), f.balance(t, brand))

		f.registry.OptOut(admin)
		_, err = f.gate.Charge(ctx, admin, brand, 1, nil)
		assert.ErrorIs(t, err, credits.ErrUnauthorized)
	})

	t.Run("rejected on free plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Free, now.Add(catalog.Month))
		require.NoError(t, f.registry.Add(brand, admin))
		_, err := f.gate.Grant(ctx, owner, brand, 10)
		require.NoError(t, err)

		_, err = f.gate.Charge(ctx, admin, brand, 1, nil)
		assert.ErrorIs(t, err, credits.ErrUnauthorized)
	})

	t.Run("rejected once expired", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Pro, now.Add(-time.Second))
		require.NoError(t, f.registry.Add(brand, admin))
		_, err := f.gate.Grant(ctx, owner, brand, 10)
		require.NoError(t, err)

		_, err = f.gate.Charge(ctx, admin, brand, 1, nil)
		assert.ErrorIs(t, err, credits.ErrUnauthorized)
	})

	t.Run("rejected without delegation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Pro, now.Add(catalog.Month))

		_, err := f.gate.Charge(ctx, stranger, brand, 1, nil)
		assert.ErrorIs(t, err, credits.ErrUnauthorized)
	})
}

func TestBuyCredits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	small, err := catalog.DefaultTopUps().Get(0)
	require.NoError(t, err)
	huge, err := catalog.DefaultTopUps().Get(3)
	require.NoError(t, err)

	t.Run("requires an active subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.gate.BuyCredits(ctx, brand, small.ID, small.Price)
		assert.ErrorIs(t, err, credits.ErrSubscriptionExpired)

		f.subscribe(t, brand, catalog.Basic, now.Add(-time.Minute))
		_, err = f.gate.BuyCredits(ctx, brand, small.ID, small.Price)
		assert.ErrorIs(t, err, credits.ErrSubscriptionExpired)
		assert.Zero(t, f.balance(t, brand))
	})

	t.Run("standalone mode", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, credits.WithoutSubscriptionRequirement())

		entry, err := f.gate.BuyCredits(ctx, brand, small.ID, small.Price)
		require.NoError(t, err)
		assert.Equal(t, small.Credits, entry.BalanceAfter)
	})

	t.Run("exact payment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Basic, now.Add(catalog.Month))

		_, err := f.gate.BuyCredits(ctx, brand, small.ID, small.Price)
		require.NoError(t, err)
		assert.Equal(t, small.Credits, f.balance(t, brand))
		assert.Empty(t, f.refunds.Transfers())

		rev, err := f.store.Revenue(ctx, catalog.DefaultCurrency)
		require.NoError(t, err)
		assert.Equal(t, small.Price, rev)
	})

	t.Run("overpayment is refunded", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Basic, now.Add(catalog.Month))

		_, err := f.gate.BuyCredits(ctx, brand, small.ID, huge.Price)
		require.NoError(t, err)
		assert.Equal(t, small.Credits, f.balance(t, brand))

		transfers := f.refunds.Transfers()
		require.Len(t, transfers, 1)
		assert.Equal(t, brand, transfers[0].To)
		assert.Equal(t, huge.Price.Sub(small.Price), transfers[0].Amount)

		rev, err := f.store.Revenue(ctx, catalog.DefaultCurrency)
		require.NoError(t, err)
		assert.Equal(t, small.Price, rev)
	})

	t.Run("failed refund cancels the purchase", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Basic, now.Add(catalog.Month))
		f.refunds.FailWith(errors.New("rejected"))

		_, err := f.gate.BuyCredits(ctx, brand, small.ID, huge.Price)
		assert.ErrorIs(t, err, treasury.ErrTransferFailed)
		assert.Zero(t, f.balance(t, brand))

		rev, err := f.store.Revenue(ctx, catalog.DefaultCurrency)
		require.NoError(t, err)
		assert.Zero(t, rev.Amount)
	})

	t.Run("underpayment and unknown bundle", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Basic, now.Add(catalog.Month))

		big, err := catalog.DefaultTopUps().Get(2)
		require.NoError(t, err)
		_, err = f.gate.BuyCredits(ctx, brand, big.ID, small.Price)
		assert.ErrorIs(t, err, credits.ErrInsufficientFunds)

		_, err = f.gate.BuyCredits(ctx, brand, big.ID, catalog.Money{Amount: big.Price.Amount, Currency: "USDC"})
		assert.ErrorIs(t, err, credits.ErrInsufficientFunds)

		_, err = f.gate.BuyCredits(ctx, brand, 42, big.Price)
		assert.ErrorIs(t, err, credits.ErrInvalidTopUp)
	})

	t.Run("replayed reference is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, brand, catalog.Basic, now.Add(catalog.Month))
		rctx := ledger.WithReference(ctx, "order-7")

		_, err := f.gate.BuyCredits(rctx, brand, small.ID, small.Price)
		require.NoError(t, err)
		_, err = f.gate.BuyCredits(rctx, brand, small.ID, small.Price)
		assert.ErrorIs(t, err, ledger.ErrDuplicatePayment)
		assert.Equal(t, small.Credits, f.balance(t, brand))
	})
}

func TestEditCreditPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, brand, catalog.Basic, now.Add(catalog.Month))

	small, err := f.gate.TopUps().Get(0)
	require.NoError(t, err)

	_, err = f.gate.EditCreditPlan(ctx, stranger, 0, 4000, catalog.Eth(catalog.Ether/10))
	assert.ErrorIs(t, err, credits.ErrUnauthorized)

	top, err := f.gate.EditCreditPlan(ctx, owner, 0, 1000, catalog.Eth(catalog.Ether/10))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), top.Credits)

	_, err = f.gate.BuyCredits(ctx, brand, 0, small.Price)
	assert.ErrorIs(t, err, credits.ErrInsufficientFunds)

	_, err = f.gate.BuyCredits(ctx, brand, 0, catalog.Eth(catalog.Ether/10))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), f.balance(t, brand))

	_, err = f.gate.EditCreditPlan(ctx, owner, 9, 1, catalog.Eth(1))
	assert.ErrorIs(t, err, credits.ErrInvalidTopUp)

	events, err := f.journal.Find(ctx, audit.Criteria{Action: audit.ActionTopUpUpdated})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
