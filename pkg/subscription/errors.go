package subscription

import (
	"errors"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/pricing"
)

var (
	ErrTokenNotOwned            = errors.New("subscription: caller does not own the subscription")
	ErrUpgradePlanBeforeRenewal = errors.New("subscription: upgrade the plan before renewing with a different one")
	ErrUnauthorized             = errors.New("subscription: caller is not the platform owner")
	ErrInvalidTransition        = errors.New("subscription: transition not allowed")
)

// Errors raised by the catalog, the pricing engine and the ledger, re-exported
// so callers can match every failure of this package by its own names.
var (
	ErrInvalidPlan             = catalog.ErrInvalidPlan
	ErrInvalidPeriod           = catalog.ErrInvalidPeriod
	ErrIncorrectPrice          = pricing.ErrIncorrectPrice
	ErrCannotDowngradeTier     = pricing.ErrCannotDowngradeTier
	ErrSubscriptionExpired     = pricing.ErrSubscriptionExpired
	ErrSubscriptionNotFound    = ledger.ErrSubscriptionNotFound
	ErrAlreadyOwnsSubscription = ledger.ErrAlreadyOwnsSubscription
	ErrDuplicatePayment        = ledger.ErrDuplicatePayment
	ErrInsufficientCredits     = ledger.ErrInsufficientCredits
)

var rejections = []error{
	ErrTokenNotOwned,
	ErrUpgradePlanBeforeRenewal,
	ErrUnauthorized,
	ErrInvalidTransition,
	ErrInvalidPlan,
	ErrInvalidPeriod,
	ErrIncorrectPrice,
	ErrCannotDowngradeTier,
	ErrSubscriptionExpired,
	ErrSubscriptionNotFound,
	ErrAlreadyOwnsSubscription,
	ErrDuplicatePayment,
	ledger.ErrInvalidAddress,
	catalog.ErrNegativeAmount,
	catalog.ErrCurrencyMismatch,
}

// IsRejection reports whether err is a business rule failure rather than an
// infrastructure one.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
