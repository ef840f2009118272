package catalog

import "errors"

var (
	ErrInvalidPlan              = errors.New("catalog: invalid plan")
	ErrInvalidPeriod            = errors.New("catalog: invalid billing period")
	ErrInvalidTopUp             = errors.New("catalog: invalid credit top-up")
	ErrInvalidPlanConfiguration = errors.New("catalog: invalid plan configuration")
	ErrNegativeAmount           = errors.New("catalog: amounts must not be negative")
	ErrAmountTooLarge           = errors.New("catalog: amount exceeds the catalog maximum")
	ErrCurrencyMismatch         = errors.New("catalog: currency does not match catalog currency")
	ErrFailedToLoadCatalog      = errors.New("catalog: failed to load catalog")
)
