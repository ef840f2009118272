// Package binder populates request structs from JSON bodies, chi path
// parameters and query strings. Binders plug into handler.WithBinders.
//
//	type renewRequest struct {
//		ID      int64         `path:"id"`
//		Plan    catalog.Tier  `json:"plan"`
//		Payment catalog.Money `json:"payment"`
//	}
//
//	r.Post("/subscriptions/{id}/renew", handler.Wrap(renew,
//		handler.WithBinders[handler.Context, renewRequest](
//			binder.JSON(),
//			binder.Path(chi.URLParam),
//		),
//	))
//
// Fields whose pointer implements encoding.TextUnmarshaler parse themselves,
// so tiers and addresses can be bound directly from the URL.
package binder
