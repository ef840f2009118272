// Package subscription manages brand memberships: free trials, paid terms,
// renewals and prorated upgrades.
//
// Each address owns at most one membership, identified by a membership id
// that is never reused. A membership moves through four derived states:
//
//	none --start_trial--> trial
//	none --subscribe----> active
//	trial|active --renew (same plan)--> active
//	trial|active --change_plan (higher plan)--> active
//	expired --renew (any paid plan)--> active
//
// There is no terminal state; a membership is expired once its term ends and
// can be renewed at any time. Every change runs in one ledger unit of work
// together with its payment record and credit grant.
//
// Basic usage:
//
//	engine := pricing.New(catalog.DefaultPlans())
//	gate := credits.New(store, catalog.DefaultTopUps(), transferer, credits.WithOwner(owner))
//	subs := subscription.New(store, engine, gate,
//		subscription.WithOwner(owner),
//		subscription.WithDelegation(registry),
//	)
//
//	sub, err := subs.Subscribe(ctx, brand, catalog.Pro, catalog.Monthly, catalog.Eth(catalog.Ether/10))
//	if errors.Is(err, subscription.ErrIncorrectPrice) {
//		// payment did not match the plan price
//	}
//
// Other modules consume the Collaborator facade:
//
//	collab := subs.Collaborator(loyaltyProgram)
//	err := collab.Charge(ctx, admin, brand, func(ctx context.Context, tx ledger.Tx) error {
//		return mint(ctx, tx)
//	})
package subscription
