// Package handler turns typed handler functions into http.HandlerFunc values.
//
// A HandlerFunc receives a Context and a request struct filled by binders,
// and returns a Response. Failures are either rendered directly with
// JSONError or passed to the configured ErrorHandler with Fail:
//
//	balance := func(ctx handler.Context, req addressRequest) handler.Response {
//		n, err := gate.Balance(ctx, req.Address)
//		if err != nil {
//			return handler.Fail(err)
//		}
//		return handler.JSON(balanceResponse{Credits: n})
//	}
//
//	r.Get("/credits/{address}", handler.Wrap(balance,
//		handler.WithBinders[handler.Context, addressRequest](binder.Path(chi.URLParam)),
//		handler.WithErrorHandler[handler.Context, addressRequest](handler.NewErrorHandler(log, mapErr)),
//	))
//
// Every JSON body uses the JSONResponse envelope, with errors carrying the
// stable HTTPError key.
package handler
