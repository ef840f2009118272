// Credit reasons recorded on each balance movement are the ledger.Reason*
// constants. Grant, Deduct, SetBalance, Charge and BuyCredits each hold the
// subscriber's lock for the duration of their unit of work.
//
//	gate := credits.New(store, catalog.DefaultTopUps(), transferer,
//		credits.WithOwner(owner),
//		credits.WithConsumers(loyaltyProgram),
//	)
//	_, err := gate.Charge(ctx, admin, brand, 1, func(ctx context.Context, tx ledger.Tx) error {
//		return mintVoucher(ctx, tx)
//	})
//	if errors.Is(err, credits.ErrInsufficientCredits) {
//		// nothing was minted
//	}
package credits
