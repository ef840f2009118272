package credits

import (
	"log/slog"
	"time"

	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/lock"
	"github.com/meedprogram/meedkit/pkg/metrics"
)

// Option configures a Gate.
type Option func(*Gate)

// WithOwner sets the platform owner allowed to grant, set and reprice.
func WithOwner(owner ledger.Address) Option {
	return func(g *Gate) { g.owner = owner }
}

// WithConsumers registers collaborators allowed to deduct credits.
func WithConsumers(consumers ...ledger.Address) Option {
	return func(g *Gate) {
		for _, c := range consumers {
			if !c.IsZero() {
				g.consumers[c] = struct{}{}
			}
		}
	}
}

// WithDelegation sets the registry consulted when an admin charges on behalf of a subscriber.
func WithDelegation(r delegation.Registry) Option {
	return func(g *Gate) {
		if r != nil {
			g.delegation = r
		}
	}
}

// WithoutSubscriptionRequirement lets any address buy top-ups, without an active subscription.
func WithoutSubscriptionRequirement() Option {
	return func(g *Gate) { g.requireSubscription = false }
}

// WithLocker sets the per-subscriber lock taken around every balance write.
// Defaults to an in-process MemoryLocker.
func WithLocker(l lock.Locker) Option {
	return func(g *Gate) {
		if l != nil {
			g.locker = l
		}
	}
}

// WithAudit journals credit movements and catalog edits.
func WithAudit(journal *audit.Logger) Option {
	return func(g *Gate) { g.journal = journal }
}

// WithMetrics records operation results and credit movements in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}
