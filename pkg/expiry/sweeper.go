// Package expiry reports memberships whose term has ended.
//
// Membership state is derived from the clock, so nothing is written back to
// the ledger; the sweeper only journals each expiry once, logs it and counts
// it. It runs on a cron schedule:
//
//	sw := expiry.New(store, expiry.WithAudit(journal), expiry.WithMetrics(m))
//	if err := sw.Start("@every 1m"); err != nil {
//		return err
//	}
//	defer sw.Stop()
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/logger"
	"github.com/meedprogram/meedkit/pkg/metrics"
)

var (
	ErrAlreadyStarted  = errors.New("expiry: sweeper already started")
	ErrInvalidSchedule = errors.New("expiry: invalid cron schedule")
)

// Reader is the part of the ledger the sweeper needs.
type Reader interface {
	ExpiredBetween(ctx context.Context, from, to time.Time) ([]ledger.Subscription, error)
}

// Sweeper finds memberships that expired since its previous run.
type Sweeper struct {
	store   Reader
	journal *audit.Logger
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu      sync.Mutex
	lastRun time.Time
	cron    *cron.Cron
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithAudit journals one SubscriptionExpired event per reported record.
func WithAudit(journal *audit.Logger) Option {
	return func(s *Sweeper) { s.journal = journal }
}

// WithMetrics counts reported expiries and run results in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now, which also sets the startup watermark.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSince sets the lower bound of the first run. It defaults to the time
// New is called, so expiries before startup are not reported.
func WithSince(t time.Time) Option {
	return func(s *Sweeper) { s.lastRun = t }
}

// WithTimeout bounds each scheduled run. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a sweeper reading from store.
func New(store Reader, opts ...Option) *Sweeper {
	if store == nil {
		panic("expiry: store is required")
	}
	s := &Sweeper{
		store:   store,
		journal: audit.NewLogger(nil),
		log:     logger.Discard(),
		now:     time.Now,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lastRun.IsZero() {
		s.lastRun = s.now()
	}
	s.log = s.log.With(logger.Component("expiry"))
	return s
}

// Run reports every membership with an expiry in (previous run, now] and
// returns them. A failed run is retried over the same window next time.
func (s *Sweeper) Run(ctx context.Context) ([]ledger.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.now()
	subs, err := s.store.ExpiredBetween(ctx, s.lastRun, now)
	s.metrics.Observe("expiry.sweep", start, err)
	if err != nil {
		s.log.ErrorContext(ctx, "expiry sweep failed", logger.Error(err))
		return nil, err
	}

	for _, sub := range subs {
		s.log.InfoContext(ctx, "subscription expired",
			logger.Subscriber(sub.Subscriber),
			logger.MembershipID(sub.MembershipID),
			logger.Plan(sub.Plan),
			logger.ExpiresAt(sub.ExpiresAt),
		)
		if err := s.journal.Log(ctx, audit.ActionSubscriptionExpired,
			audit.WithSubscriber(sub.Subscriber.String()),
			audit.WithMembershipID(sub.MembershipID),
			audit.WithMetadata("plan", sub.Plan.String()),
			audit.WithMetadata("expires_at", sub.ExpiresAt),
		); err != nil {
			s.log.WarnContext(ctx, "failed to journal expiry", logger.MembershipID(sub.MembershipID), logger.Error(err))
		}
	}
	s.metrics.SubscriptionsExpired(len(subs))
	s.lastRun = now
	return subs, nil
}

// Start schedules Run with a standard five-field cron spec or a descriptor
// such as "@every 1m". Runs never overlap.
func (s *Sweeper) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, s.scheduled); err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("expiry sweeper started", slog.String("schedule", spec))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (s *Sweeper) scheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.Run(ctx)
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.Error(err))...)
}
