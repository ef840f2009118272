package pricing

import "errors"

var (
	ErrIncorrectPrice      = errors.New("pricing: payment does not match the price")
	ErrCannotDowngradeTier = errors.New("pricing: target plan must rank above the current plan")
	ErrSubscriptionExpired = errors.New("pricing: subscription has expired")
)
