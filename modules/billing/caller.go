package billing

import (
	"context"
	"net/http"

	"github.com/meedprogram/meedkit/handler"
	"github.com/meedprogram/meedkit/pkg/ledger"
)

const (
	// CallerHeader carries the authenticated address of the caller. It is
	// set by the gateway in front of the service.
	CallerHeader = "X-Caller-Address"
	// IdempotencyHeader carries the payment reference for paying requests.
	IdempotencyHeader = "Idempotency-Key"
)

var callerKey = handler.NewContextKey("caller")

// Identify reads the caller and idempotency headers into the request context.
// A malformed caller address is rejected with 400.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raw := r.Header.Get(CallerHeader); raw != "" {
			caller, err := ledger.ParseAddress(raw)
			if err != nil {
				_ = handler.JSONError(HTTPError(err)).Render(w, r)
				return
			}
			ctx = context.WithValue(ctx, callerKey, caller)
		}
		ctx = ledger.WithReference(ctx, r.Header.Get(IdempotencyHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFrom returns the caller set by Identify.
func CallerFrom(ctx handler.Context) (ledger.Address, bool) {
	return handler.ContextValueOK[ledger.Address](ctx, callerKey)
}

// requireCaller rejects requests that carry no caller.
func requireCaller[R any](next handler.HandlerFunc[handler.Context, R]) handler.HandlerFunc[handler.Context, R] {
	return func(ctx handler.Context, req R) handler.Response {
		if _, ok := CallerFrom(ctx); !ok {
			return handler.Fail(ErrMissingCaller)
		}
		return next(ctx, req)
	}
}

func caller(ctx handler.Context) ledger.Address {
	addr, _ := CallerFrom(ctx)
	return addr
}
