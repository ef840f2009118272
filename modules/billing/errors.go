package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/meedprogram/meedkit/handler"
	"github.com/meedprogram/meedkit/pkg/binder"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/credits"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/lock"
	"github.com/meedprogram/meedkit/pkg/metrics"
	"github.com/meedprogram/meedkit/pkg/pricing"
	"github.com/meedprogram/meedkit/pkg/subscription"
	"github.com/meedprogram/meedkit/pkg/treasury"
)

// ErrMissingCaller is returned for mutating requests without X-Caller-Address.
var ErrMissingCaller = errors.New("billing: caller address is required")

// errorMap is matched in order; the first sentinel found in the chain wins.
var errorMap = []struct {
	err  error
	http handler.HTTPError
}{
	{ErrMissingCaller, handler.NewHTTPError(http.StatusUnauthorized, "missing_caller")},
	{ledger.ErrInvalidAddress, handler.NewHTTPError(http.StatusBadRequest, "invalid_address")},

	{subscription.ErrTokenNotOwned, handler.NewHTTPError(http.StatusForbidden, "token_not_owned")},
	{subscription.ErrUnauthorized, handler.ErrForbidden},
	{credits.ErrUnauthorized, handler.ErrForbidden},
	{treasury.ErrUnauthorized, handler.ErrForbidden},
	{delegation.ErrUnauthorized, handler.ErrForbidden},

	{ledger.ErrSubscriptionNotFound, handler.NewHTTPError(http.StatusNotFound, "subscription_not_found")},
	{ledger.ErrAlreadyOwnsSubscription, handler.NewHTTPError(http.StatusConflict, "already_owns_subscription")},
	{ledger.ErrDuplicatePayment, handler.NewHTTPError(http.StatusConflict, "duplicate_payment")},
	{subscription.ErrUpgradePlanBeforeRenewal, handler.NewHTTPError(http.StatusConflict, "upgrade_plan_before_renewal")},
	{subscription.ErrInvalidTransition, handler.NewHTTPError(http.StatusConflict, "invalid_transition")},

	{pricing.ErrSubscriptionExpired, handler.NewHTTPError(http.StatusPaymentRequired, "subscription_expired")},
	{pricing.ErrIncorrectPrice, handler.NewHTTPError(http.StatusPaymentRequired, "incorrect_price")},
	{credits.ErrInsufficientFunds, handler.NewHTTPError(http.StatusPaymentRequired, "insufficient_funds")},
	{ledger.ErrInsufficientCredits, handler.NewHTTPError(http.StatusPaymentRequired, "insufficient_credits")},

	{pricing.ErrCannotDowngradeTier, handler.NewHTTPError(http.StatusUnprocessableEntity, "cannot_downgrade_tier")},
	{catalog.ErrInvalidPlan, handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_plan")},
	{catalog.ErrInvalidPeriod, handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_period")},
	{catalog.ErrInvalidTopUp, handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_top_up")},
	{catalog.ErrNegativeAmount, handler.NewHTTPError(http.StatusUnprocessableEntity, "negative_amount")},
	{catalog.ErrCurrencyMismatch, handler.NewHTTPError(http.StatusUnprocessableEntity, "currency_mismatch")},
	{catalog.ErrAmountTooLarge, handler.NewHTTPError(http.StatusUnprocessableEntity, "amount_too_large")},
	{credits.ErrInvalidAmount, handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_amount")},
	{ledger.ErrInvalidPayment, handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_payment")},
	{delegation.ErrSelfDelegation, handler.NewHTTPError(http.StatusUnprocessableEntity, "self_delegation")},

	{binder.ErrMissingContentType, handler.ErrUnsupportedMedia},
	{binder.ErrUnsupportedMediaType, handler.ErrUnsupportedMedia},
	{binder.ErrFailedToParseJSON, handler.ErrBadRequest},
	{binder.ErrFailedToParsePath, handler.ErrBadRequest},
	{binder.ErrFailedToParseQuery, handler.ErrBadRequest},

	{treasury.ErrTransferFailed, handler.NewHTTPError(http.StatusBadGateway, "transfer_failed")},
	{lock.ErrLockTimeout, handler.ErrServiceUnavailable},
}

// HTTPError maps a domain error to its status and key. Unknown errors are 500s.
func HTTPError(err error) handler.HTTPError {
	for _, m := range errorMap {
		if errors.Is(err, m.err) {
			return m.http
		}
	}
	return handler.ErrInternalServerError
}

// ErrorKey labels operation results in metrics: the HTTP key for client
// errors, "error" for everything else.
func ErrorKey(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCanceled
	}
	if e := HTTPError(err); e.Code < http.StatusInternalServerError {
		return e.Key
	}
	return metrics.ResultError
}
