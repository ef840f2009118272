package subscription

import (
	"log/slog"
	"time"

	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/lock"
	"github.com/meedprogram/meedkit/pkg/metrics"
)

// Option configures a Service.
type Option func(*Service)

// WithOwner sets the platform owner allowed to edit plan prices.
func WithOwner(owner ledger.Address) Option {
	return func(s *Service) { s.owner = owner }
}

// WithDelegation lets admins act on behalf of paid subscribers.
func WithDelegation(r delegation.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.delegation = r
		}
	}
}

// WithLocker sets the per-subscriber lock taken around every membership write.
// Defaults to an in-process MemoryLocker.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithAudit journals subscriptions, upgrades and price edits.
func WithAudit(journal *audit.Logger) Option {
	return func(s *Service) { s.journal = journal }
}

// WithMetrics records operation results, started subscriptions and payments in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now. Tests use it to move through terms.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
