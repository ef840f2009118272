// Package ledger defines the persisted records of the billing engine and the
// unit-of-work contract every store implements.
//
// Three kinds of records live in a ledger:
//
//   - Subscription: one membership record per subscriber address, never deleted.
//   - CreditEntry: append-only movements of a per-address credit balance.
//   - Payment: value received or paid out, keyed by a unique reference.
//
// All writes go through Store.Atomic. A unit of work either commits every write
// it made or none of them, which lets a subscription change, its credit grant and
// its payment record land together:
//
//	err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
//		id, err := tx.NextMembershipID(ctx)
//		if err != nil {
//			return err
//		}
//		...
//		_, err = tx.AddCredits(ctx, addr, 2500, ledger.ReasonSubscribe, now)
//		return err
//	})
//
// MemoryStore is the in-process implementation. The pgstore subpackage provides
// a PostgreSQL implementation.
package ledger
