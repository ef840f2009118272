// Package meedkit is a subscription lifecycle and metered credit engine for
// platforms that sell tiered memberships and meter privileged actions with
// credits.
//
// The module is organized leaf-first:
//
//   - pkg/catalog and pkg/pricing hold the plan and top-up catalogs and the
//     proration rules for upgrades.
//   - pkg/ledger defines the transactional store of memberships, credit
//     balances and payments, with an in-memory and a PostgreSQL implementation.
//   - pkg/subscription runs the membership lifecycle: trial, subscribe, renew
//     and change plan.
//   - pkg/credits gates privileged actions behind credit deductions and sells
//     top-up bundles.
//   - pkg/treasury collects revenue and pays refunds and withdrawals.
//   - pkg/expiry reports memberships as they lapse.
//   - modules/billing exposes all of it over HTTP; cmd/meedd wires it together.
//
// A subscription and the credits it grants are written in one ledger
// transaction, serialized per subscriber by a pkg/lock Locker:
//
//	store := ledger.NewMemoryStore()
//	gate := credits.New(store, catalog.DefaultTopUps(), payouts, credits.WithOwner(owner))
//	subs := subscription.New(store, pricing.New(catalog.DefaultPlans()), gate,
//		subscription.WithOwner(owner),
//	)
//
//	sub, err := subs.Subscribe(ctx, brand, catalog.Basic, catalog.Monthly, catalog.Eth(5*catalog.Ether/100))
//	if err != nil {
//		return err
//	}
//
//	// Collaborators spend the subscriber's credits around their own writes.
//	err = subs.Collaborator(loyalty).Charge(ctx, admin, sub.Subscriber, func(ctx context.Context, tx ledger.Tx) error {
//		return issueReward(ctx, tx)
//	})
package meedkit
