package ledger

import "errors"

var (
	ErrInvalidAddress          = errors.New("ledger: invalid address")
	ErrSubscriptionNotFound    = errors.New("ledger: subscription not found")
	ErrAlreadyOwnsSubscription = errors.New("ledger: address already owns a subscription")
	ErrInsufficientCredits     = errors.New("ledger: insufficient credits")
	ErrNegativeBalance         = errors.New("ledger: balance must not be negative")
	ErrDuplicatePayment        = errors.New("ledger: payment reference already recorded")
	ErrInvalidPayment          = errors.New("ledger: invalid payment")
	ErrTxClosed                = errors.New("ledger: transaction already committed or rolled back")
)
