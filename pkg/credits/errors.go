package credits

import (
	"errors"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/pricing"
)

var (
	ErrUnauthorized      = errors.New("credits: caller is not authorized")
	ErrInvalidAmount     = errors.New("credits: amount must be positive")
	ErrInsufficientFunds = errors.New("credits: payment is below the top-up price")
)

// Re-exported so callers of the gate match on one package.
var (
	ErrInsufficientCredits = ledger.ErrInsufficientCredits
	ErrInvalidTopUp        = catalog.ErrInvalidTopUp
	ErrSubscriptionExpired = pricing.ErrSubscriptionExpired
)

var rejections = []error{
	ErrUnauthorized,
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrInsufficientCredits,
	ErrInvalidTopUp,
	ErrSubscriptionExpired,
	ledger.ErrInvalidAddress,
	ledger.ErrDuplicatePayment,
	catalog.ErrNegativeAmount,
	catalog.ErrCurrencyMismatch,
}

func rejected(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
