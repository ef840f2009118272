package logger

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Group bundles attrs under name.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under "error". A nil error yields an empty Attr, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errs under "errors", keyed by position.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return Group("errors", as...)
}

func Component(name string) slog.Attr { return slog.String("component", name) }

func Operation(name string) slog.Attr { return slog.String("operation", name) }

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

// Subscriber records the account a ledger operation targets.
func Subscriber(addr fmt.Stringer) slog.Attr {
	return slog.String("subscriber", addr.String())
}

// Caller records the account that invoked an operation.
func Caller(addr fmt.Stringer) slog.Attr {
	return slog.String("caller", addr.String())
}

func MembershipID(id int64) slog.Attr { return slog.Int64("membership_id", id) }

// Plan records a plan tier by name.
func Plan(tier fmt.Stringer) slog.Attr { return slog.String("plan", tier.String()) }

func Period(p string) slog.Attr { return slog.String("period", p) }

// Amount records a money value in its display form, e.g. "0.05 ETH".
func Amount(m fmt.Stringer) slog.Attr { return slog.String("amount", m.String()) }

func Credits(n int64) slog.Attr { return slog.Int64("credits", n) }

func ExpiresAt(t time.Time) slog.Attr { return slog.Time("expires_at", t) }
