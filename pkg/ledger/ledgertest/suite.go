// Package ledgertest holds the behavioral checks every ledger.Store must pass.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
)

var errBoom = errors.New("boom")

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) ledger.Store

// Run exercises store semantics against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("subscription lifecycle", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("rollback discards writes", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("credits never go negative", func(t *testing.T) { testCredits(t, newStore(t)) })
	t.Run("payments are idempotent", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("expired between", func(t *testing.T) { testExpiredBetween(t, newStore(t)) })
	t.Run("concurrent deductions", func(t *testing.T) { testConcurrentDeduct(t, newStore(t)) })
	t.Run("concurrent revenue sweeps", func(t *testing.T) { testConcurrentSweep(t, newStore(t)) })
}

func now() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func create(t *testing.T, store ledger.Store, addr ledger.Address, tier catalog.Tier, expires time.Time) ledger.Subscription {
	t.Helper()
	var sub ledger.Subscription
	err := store.Atomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		id, err := tx.NextMembershipID(ctx)
		if err != nil {
			return err
		}
		sub = ledger.Subscription{
			MembershipID: id,
			Subscriber:   addr,
			Plan:         tier,
			ExpiresAt:    expires,
			CreatedAt:    now(),
			UpdatedAt:    now(),
		}
		return tx.CreateSubscription(ctx, sub)
	})
	require.NoError(t, err)
	return sub
}

func testSubscriptions(t *testing.T, store ledger.Store) {
	ctx := context.Background()

	alice := create(t, store, "0xa11ce", catalog.Basic, now().Add(catalog.Month))
	bob := create(t, store, "0xb0b", catalog.Pro, now().Add(catalog.Year))
	assert.Greater(t, bob.MembershipID, alice.MembershipID)

	got, err := store.SubscriptionByAddress(ctx, "0xa11ce")
	require.NoError(t, err)
	assert.Equal(t, alice.MembershipID, got.MembershipID)
	assert.Equal(t, catalog.Basic, got.Plan)
	assert.True(t, got.ExpiresAt.Equal(alice.ExpiresAt))

	_, err = store.SubscriptionByID(ctx, 9999)
	assert.ErrorIs(t, err, ledger.ErrSubscriptionNotFound)
	_, err = store.SubscriptionByAddress(ctx, "0xnobody")
	assert.ErrorIs(t, err, ledger.ErrSubscriptionNotFound)

	err = store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		id, err := tx.NextMembershipID(ctx)
		if err != nil {
			return err
		}
		return tx.CreateSubscription(ctx, ledger.Subscription{
			MembershipID: id, Subscriber: "0xa11ce", Plan: catalog.Pro, ExpiresAt: now(),
		})
	})
	assert.ErrorIs(t, err, ledger.ErrAlreadyOwnsSubscription)

	err = store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		sub, err := tx.SubscriptionByID(ctx, alice.MembershipID)
		if err != nil {
			return err
		}
		sub.Plan = catalog.Enterprise
		sub.UpdatedAt = now().Add(time.Hour)
		return tx.UpdateSubscription(ctx, sub)
	})
	require.NoError(t, err)

	got, err = store.SubscriptionByID(ctx, alice.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, catalog.Enterprise, got.Plan)
	assert.Equal(t, ledger.Address("0xa11ce"), got.Subscriber)

	err = store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.UpdateSubscription(ctx, ledger.Subscription{MembershipID: 9999})
	})
	assert.ErrorIs(t, err, ledger.ErrSubscriptionNotFound)
}

func testRollback(t *testing.T, store ledger.Store) {
	ctx := context.Background()

	err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		id, err := tx.NextMembershipID(ctx)
		if err != nil {
			return err
		}
		if err := tx.CreateSubscription(ctx, ledger.Subscription{
			MembershipID: id, Subscriber: "0xc4r01", Plan: catalog.Basic, ExpiresAt: now().Add(catalog.Month),
		}); err != nil {
			return err
		}
		if _, err := tx.AddCredits(ctx, "0xc4r01", 2500, ledger.ReasonSubscribe, now()); err != nil {
			return err
		}
		if _, err := tx.RecordPayment(ctx, ledger.Payment{
			Reference: "rollback-ref", From: "0xc4r01", Amount: catalog.Eth(1), Kind: ledger.PaymentSubscribe,
		}); err != nil {
			return err
		}

		bal, err := tx.Balance(ctx, "0xc4r01")
		if err != nil {
			return err
		}
		if bal != 2500 {
			return fmt.Errorf("tx should read its own writes, got %d", bal)
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = store.SubscriptionByAddress(ctx, "0xc4r01")
	assert.ErrorIs(t, err, ledger.ErrSubscriptionNotFound)
	bal, err := store.Balance(ctx, "0xc4r01")
	require.NoError(t, err)
	assert.Zero(t, bal)
	rev, err := store.Revenue(ctx, catalog.DefaultCurrency)
	require.NoError(t, err)
	assert.Zero(t, rev.Amount)

	// The reference was never committed, so it can be used again.
	err = store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.RecordPayment(ctx, ledger.Payment{
			Reference: "rollback-ref", From: "0xc4r01", Amount: catalog.Eth(1), Kind: ledger.PaymentSubscribe,
		})
		return err
	})
	assert.NoError(t, err)
}

func testCredits(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	const addr = ledger.Address("0xd4v3")

	add := func(delta int64, reason string) (ledger.CreditEntry, error) {
		var e ledger.CreditEntry
		err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
			var err error
			e, err = tx.AddCredits(ctx, addr, delta, reason, now())
			return err
		})
		return e, err
	}

	e, err := add(100, ledger.ReasonGrant)
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.BalanceAfter)

	e, err = add(-40, ledger.ReasonDeduct)
	require.NoError(t, err)
	assert.Equal(t, int64(60), e.BalanceAfter)

	_, err = add(-61, ledger.ReasonDeduct)
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

	bal, err := store.Balance(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, int64(60), bal)

	err = store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.SetCredits(ctx, addr, 5, ledger.ReasonSet, now())
		return err
	})
	require.NoError(t, err)

	err = store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.SetCredits(ctx, addr, -1, ledger.ReasonSet, now())
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrNegativeBalance)

	history, err := store.History(ctx, addr)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{100, -40, -55}, []int64{history[0].Delta, history[1].Delta, history[2].Delta})
	assert.Equal(t, int64(5), history[2].BalanceAfter)
	assert.Equal(t, ledger.ReasonSet, history[2].Reason)

	empty, err := store.History(ctx, "0xempty")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testPayments(t *testing.T, store ledger.Store) {
	ctx := context.Background()

	record := func(p ledger.Payment) (ledger.Payment, error) {
		var out ledger.Payment
		err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
			var err error
			out, err = tx.RecordPayment(ctx, p)
			return err
		})
		return out, err
	}

	p, err := record(ledger.Payment{From: "0xe", Amount: catalog.Eth(500), Kind: ledger.PaymentSubscribe, CreatedAt: now()})
	require.NoError(t, err)
	assert.NotEmpty(t, p.Reference)

	_, err = record(ledger.Payment{Reference: p.Reference, From: "0xe", Amount: catalog.Eth(500), Kind: ledger.PaymentRenew, CreatedAt: now()})
	assert.ErrorIs(t, err, ledger.ErrDuplicatePayment)

	_, err = record(ledger.Payment{From: "0xe", Amount: catalog.Eth(200), Kind: ledger.PaymentTopUp, CreatedAt: now()})
	require.NoError(t, err)
	_, err = record(ledger.Payment{From: "0xe", Amount: catalog.Eth(50), Kind: ledger.PaymentRefund, CreatedAt: now()})
	require.NoError(t, err)
	_, err = record(ledger.Payment{From: "0xe", Amount: catalog.Money{Amount: 7, Currency: "USDC"}, Kind: ledger.PaymentTopUp, CreatedAt: now()})
	require.NoError(t, err)

	_, err = record(ledger.Payment{From: "0xe", Amount: catalog.Eth(-1), Kind: ledger.PaymentTopUp})
	assert.ErrorIs(t, err, ledger.ErrInvalidPayment)
	_, err = record(ledger.Payment{From: "0xe", Amount: catalog.Eth(1), Kind: "gift"})
	assert.ErrorIs(t, err, ledger.ErrInvalidPayment)

	rev, err := store.Revenue(ctx, catalog.DefaultCurrency)
	require.NoError(t, err)
	assert.Equal(t, catalog.Eth(650), rev)

	usdc, err := store.Revenue(ctx, "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(7), usdc.Amount)
}

func testExpiredBetween(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	base := now()

	create(t, store, "0x1", catalog.Basic, base.Add(time.Hour))
	create(t, store, "0x2", catalog.Pro, base.Add(2*time.Hour))
	create(t, store, "0x3", catalog.Pro, base.Add(3*time.Hour))

	subs, err := store.ExpiredBetween(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, ledger.Address("0x2"), subs[0].Subscriber)
	assert.Equal(t, ledger.Address("0x3"), subs[1].Subscriber)

	subs, err = store.ExpiredBetween(ctx, base.Add(3*time.Hour), base.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func testConcurrentDeduct(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	const addr = ledger.Address("0xf00")

	err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.AddCredits(ctx, addr, 10, ledger.ReasonGrant, now())
		return err
	})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
				_, err := tx.AddCredits(ctx, addr, -1, ledger.ReasonDeduct, now())
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ledger.ErrInsufficientCredits) {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 15, fail)
	bal, err := store.Balance(ctx, addr)
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func testConcurrentSweep(t *testing.T, store ledger.Store) {
	ctx := context.Background()

	err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.RecordPayment(ctx, ledger.Payment{From: "0xa", Amount: catalog.Eth(900), Kind: ledger.PaymentSubscribe, CreatedAt: now()})
		return err
	})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		swept []int64
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
				rev, err := tx.Revenue(ctx, catalog.DefaultCurrency)
				if err != nil || rev.Amount <= 0 {
					return err
				}
				if _, err := tx.RecordPayment(ctx, ledger.Payment{From: "0xowner", Amount: rev, Kind: ledger.PaymentWithdrawal, CreatedAt: now()}); err != nil {
					return err
				}
				mu.Lock()
				swept = append(swept, rev.Amount)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []int64{900}, swept)
	rev, err := store.Revenue(ctx, catalog.DefaultCurrency)
	require.NoError(t, err)
	assert.Zero(t, rev.Amount)
}
