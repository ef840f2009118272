package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meedprogram/meedkit/pkg/audit"
	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/credits"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/ledger"
	"github.com/meedprogram/meedkit/pkg/lock"
	"github.com/meedprogram/meedkit/pkg/logger"
	"github.com/meedprogram/meedkit/pkg/metrics"
	"github.com/meedprogram/meedkit/pkg/pricing"
)

// Service manages membership records and grants their credits.
type Service struct {
	store      ledger.Store
	pricing    *pricing.Engine
	credits    *credits.Gate
	owner      ledger.Address
	delegation delegation.Registry

	locker  lock.Locker
	journal *audit.Logger
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New creates a subscription service. Credits granted by subscriptions go
// through gate inside the same unit of work as the membership change.
func New(store ledger.Store, engine *pricing.Engine, gate *credits.Gate, opts ...Option) *Service {
	if store == nil || engine == nil || gate == nil {
		panic("subscription: store, pricing engine and credit gate are required")
	}
	s := &Service{
		store:      store,
		pricing:    engine,
		credits:    gate,
		delegation: delegation.None{},
		locker:     lock.NewMemoryLocker(),
		journal:    audit.NewLogger(nil),
		log:        logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("subscription"))
	return s
}

// Pricing exposes the pricing engine and through it the plan catalog.
func (s *Service) Pricing() *pricing.Engine {
	return s.pricing
}

// StartTrial opens a free 30-day membership for an address that never had one.
func (s *Service) StartTrial(ctx context.Context, caller ledger.Address) (sub ledger.Subscription, err error) {
	defer s.observe(ctx, "subscription.trial", time.Now(), &err, logger.Caller(caller))

	plan, err := s.pricing.Plans().Plan(catalog.Free)
	if err != nil {
		return sub, err
	}

	var entry ledger.CreditEntry
	err = s.locked(ctx, caller, func(ctx context.Context, tx ledger.Tx) error {
		if err := s.admit(ctx, tx, caller, EventStartTrial); err != nil {
			return err
		}
		now := s.now().UTC()
		sub, err = s.create(ctx, tx, caller, catalog.Free, now.Add(catalog.Month), true, now)
		if err != nil {
			return err
		}
		entry, err = s.credits.Allot(ctx, tx, caller, plan.CreditsFor(catalog.Monthly), ledger.ReasonTrial)
		return err
	})
	if err != nil {
		return ledger.Subscription{}, err
	}

	s.extended(ctx, caller, sub, entry, "trial")
	return sub, nil
}

// Subscribe opens a paid membership. The payment must equal the term price.
func (s *Service) Subscribe(ctx context.Context, caller ledger.Address, plan catalog.Tier, period catalog.Period, payment catalog.Money) (sub ledger.Subscription, err error) {
	defer s.observe(ctx, "subscription.subscribe", time.Now(), &err,
		logger.Caller(caller), logger.Plan(plan), logger.Period(string(period)))

	price, credited, err := s.term(plan, period)
	if err != nil {
		return sub, err
	}

	var entry ledger.CreditEntry
	err = s.locked(ctx, caller, func(ctx context.Context, tx ledger.Tx) error {
		if err := s.admit(ctx, tx, caller, EventSubscribe); err != nil {
			return err
		}
		if err := pricing.Match(price, payment); err != nil {
			return err
		}
		now := s.now().UTC()
		sub, err = s.create(ctx, tx, caller, plan, now.Add(period.Term()), false, now)
		if err != nil {
			return err
		}
		if err := s.pay(ctx, tx, caller, payment, ledger.PaymentSubscribe, now); err != nil {
			return err
		}
		entry, err = s.credits.Allot(ctx, tx, caller, credited, ledger.ReasonSubscribe)
		return err
	})
	if err != nil {
		return ledger.Subscription{}, err
	}

	s.metrics.Payment(string(ledger.PaymentSubscribe), payment.Currency, payment.Amount)
	s.extended(ctx, caller, sub, entry, "subscribe")
	return sub, nil
}

// Renew extends membership id by one term of period. A running term is
// extended from its current end; an expired one restarts now and may switch plan.
func (s *Service) Renew(ctx context.Context, caller ledger.Address, id int64, plan catalog.Tier, period catalog.Period, payment catalog.Money) (sub ledger.Subscription, err error) {
	defer s.observe(ctx, "subscription.renew", time.Now(), &err,
		logger.Caller(caller), logger.MembershipID(id), logger.Plan(plan), logger.Period(string(period)))

	current, err := s.store.SubscriptionByID(ctx, id)
	if err != nil {
		return sub, err
	}

	var entry ledger.CreditEntry
	err = s.locked(ctx, current.Subscriber, func(ctx context.Context, tx ledger.Tx) error {
		sub, err = tx.SubscriptionByID(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.authorize(ctx, caller, sub, now); err != nil {
			return err
		}
		price, credited, err := s.term(plan, period)
		if err != nil {
			return err
		}
		if _, err := fire(StateOf(&sub, now), EventRenew, change{current: sub, target: plan}); err != nil {
			return err
		}
		if err := pricing.Match(price, payment); err != nil {
			return err
		}

		sub.ExpiresAt = maxTime(now, sub.ExpiresAt).Add(period.Term())
		sub.Plan = plan
		sub.Trial = false
		sub.UpdatedAt = now
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := s.pay(ctx, tx, caller, payment, ledger.PaymentRenew, now); err != nil {
			return err
		}
		entry, err = s.credits.Allot(ctx, tx, sub.Subscriber, credited, ledger.ReasonRenew)
		return err
	})
	if err != nil {
		return ledger.Subscription{}, err
	}

	s.metrics.Payment(string(ledger.PaymentRenew), payment.Currency, payment.Amount)
	s.extended(ctx, caller, sub, entry, "renew")
	return sub, nil
}

// ChangePlan moves an active membership to a higher plan for the prorated
// price of the remaining term. The expiry date is unchanged and no credits
// are granted.
func (s *Service) ChangePlan(ctx context.Context, caller ledger.Address, id int64, target catalog.Tier, payment catalog.Money) (sub ledger.Subscription, err error) {
	defer s.observe(ctx, "subscription.change_plan", time.Now(), &err,
		logger.Caller(caller), logger.MembershipID(id), logger.Plan(target))

	current, err := s.store.SubscriptionByID(ctx, id)
	if err != nil {
		return sub, err
	}

	var cost catalog.Money
	err = s.locked(ctx, current.Subscriber, func(ctx context.Context, tx ledger.Tx) error {
		sub, err = tx.SubscriptionByID(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if StateOf(&sub, now) == StateExpired {
			return ErrSubscriptionExpired
		}
		if err := s.authorize(ctx, caller, sub, now); err != nil {
			return err
		}
		if _, err := s.pricing.Plans().Plan(target); err != nil {
			return err
		}
		if _, err := fire(StateOf(&sub, now), EventChangePlan, change{current: sub, target: target}); err != nil {
			return err
		}
		cost, err = s.pricing.UpgradeCost(sub.Plan, target, sub.Remaining(now))
		if err != nil {
			return err
		}
		if err := pricing.Match(cost, payment); err != nil {
			return err
		}

		sub.Plan = target
		sub.UpdatedAt = now
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return s.pay(ctx, tx, caller, payment, ledger.PaymentUpgrade, now)
	})
	if err != nil {
		return ledger.Subscription{}, err
	}

	s.metrics.Payment(string(ledger.PaymentUpgrade), cost.Currency, cost.Amount)
	s.log.InfoContext(ctx, "subscription upgraded",
		logger.Subscriber(sub.Subscriber),
		logger.MembershipID(sub.MembershipID),
		logger.Plan(sub.Plan),
		logger.ExpiresAt(sub.ExpiresAt),
		logger.Amount(cost),
	)
	_ = s.journal.Log(ctx, audit.ActionSubscriptionUpgraded,
		audit.WithActor(caller.String()),
		audit.WithSubscriber(sub.Subscriber.String()),
		audit.WithMembershipID(sub.MembershipID),
		audit.WithMetadata("plan", sub.Plan.String()),
		audit.WithMetadata("expires_at", sub.ExpiresAt),
		audit.WithMetadata("price", cost.String()),
	)
	return sub, nil
}

// RemainingTimeAndPrice quotes an upgrade of membership id to target.
// An expired membership quotes zero time and zero price.
func (s *Service) RemainingTimeAndPrice(ctx context.Context, id int64, target catalog.Tier) (time.Duration, catalog.Money, error) {
	if id <= 0 {
		return 0, catalog.Money{}, ErrSubscriptionNotFound
	}
	sub, err := s.store.SubscriptionByID(ctx, id)
	if err != nil {
		return 0, catalog.Money{}, err
	}
	return s.pricing.Quote(sub.Plan, target, sub.ExpiresAt, s.now())
}

// IsRenewable reports whether membership id exists and is active.
func (s *Service) IsRenewable(ctx context.Context, id int64) (bool, error) {
	sub, err := s.store.SubscriptionByID(ctx, id)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.Active(s.now()), nil
}

// ExpiresAt returns the end of the current term of membership id.
func (s *Service) ExpiresAt(ctx context.Context, id int64) (time.Time, error) {
	sub, err := s.store.SubscriptionByID(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return sub.ExpiresAt, nil
}

// Get returns membership id.
func (s *Service) Get(ctx context.Context, id int64) (ledger.Subscription, error) {
	return s.store.SubscriptionByID(ctx, id)
}

// GetSubscriber returns the membership owned by addr.
func (s *Service) GetSubscriber(ctx context.Context, addr ledger.Address) (ledger.Subscription, error) {
	return s.store.SubscriptionByAddress(ctx, addr)
}

// IsPaidSubscriber reports whether addr holds an active membership on a paid plan.
func (s *Service) IsPaidSubscriber(ctx context.Context, addr ledger.Address) (bool, error) {
	sub, err := s.store.SubscriptionByAddress(ctx, addr)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.Paid(s.now()), nil
}

// GetSubscriberPlan returns the plan recorded for addr, or Free when it has no membership.
func (s *Service) GetSubscriberPlan(ctx context.Context, addr ledger.Address) (catalog.Tier, error) {
	sub, err := s.store.SubscriptionByAddress(ctx, addr)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return catalog.Free, nil
	}
	if err != nil {
		return catalog.Free, err
	}
	return sub.Plan, nil
}

// CalculatePrice returns the price of one term of plan billed per period.
func (s *Service) CalculatePrice(plan catalog.Tier, period catalog.Period) (catalog.Money, error) {
	return s.pricing.PriceFor(plan, period)
}

// EditPlanPrice changes the monthly price of plan for future billing events. Owner only.
func (s *Service) EditPlanPrice(ctx context.Context, caller ledger.Address, plan catalog.Tier, price catalog.Money) (p catalog.Plan, err error) {
	defer s.observe(ctx, "subscription.edit_price", time.Now(), &err, logger.Plan(plan))

	if s.owner.IsZero() || caller != s.owner {
		return p, ErrUnauthorized
	}
	p, err = s.pricing.Plans().SetPrice(plan, price)
	if err != nil {
		return catalog.Plan{}, err
	}

	s.log.InfoContext(ctx, "plan price updated", logger.Plan(plan), logger.Amount(p.MonthlyPrice))
	_ = s.journal.Log(ctx, audit.ActionPriceUpdated,
		audit.WithActor(caller.String()),
		audit.WithMetadata("plan", plan.String()),
		audit.WithMetadata("price", p.MonthlyPrice.String()),
	)
	return p, nil
}

// term returns the price and credits of one paid term.
func (s *Service) term(plan catalog.Tier, period catalog.Period) (catalog.Money, int64, error) {
	if plan == catalog.Free {
		return catalog.Money{}, 0, ErrInvalidPlan
	}
	if !period.Valid() {
		return catalog.Money{}, 0, ErrInvalidPeriod
	}
	p, err := s.pricing.Plans().Plan(plan)
	if err != nil {
		return catalog.Money{}, 0, err
	}
	return p.PriceFor(period), p.CreditsFor(period), nil
}

// admit checks that addr may open a new membership with event.
func (s *Service) admit(ctx context.Context, tx ledger.Tx, addr ledger.Address, on Event) error {
	var current *ledger.Subscription
	existing, err := tx.SubscriptionByAddress(ctx, addr)
	switch {
	case err == nil:
		current = &existing
	case !errors.Is(err, ErrSubscriptionNotFound):
		return err
	}
	_, err = fire(StateOf(current, s.now()), on, change{target: catalog.Free})
	return err
}

// authorize lets the owner of sub act on it, or an admin delegated by the
// owner while the owner holds an active paid membership.
func (s *Service) authorize(ctx context.Context, caller ledger.Address, sub ledger.Subscription, now time.Time) error {
	if caller == sub.Subscriber {
		return nil
	}
	ok, err := s.delegation.IsAuthorized(ctx, caller, sub.Subscriber)
	if err != nil {
		return err
	}
	if !ok || !sub.Paid(now) {
		return ErrTokenNotOwned
	}
	return nil
}

func (s *Service) create(ctx context.Context, tx ledger.Tx, addr ledger.Address, plan catalog.Tier, expiresAt time.Time, trial bool, now time.Time) (ledger.Subscription, error) {
	id, err := tx.NextMembershipID(ctx)
	if err != nil {
		return ledger.Subscription{}, err
	}
	sub := ledger.Subscription{
		MembershipID: id,
		Subscriber:   addr,
		Plan:         plan,
		ExpiresAt:    expiresAt,
		Trial:        trial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return ledger.Subscription{}, err
	}
	return sub, nil
}

func (s *Service) pay(ctx context.Context, tx ledger.Tx, from ledger.Address, amount catalog.Money, kind ledger.PaymentKind, now time.Time) error {
	_, err := tx.RecordPayment(ctx, ledger.Payment{
		Reference: ledger.ReferenceFrom(ctx),
		From:      from,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: now,
	})
	return err
}

// extended reports a committed trial, subscription or renewal.
func (s *Service) extended(ctx context.Context, caller ledger.Address, sub ledger.Subscription, entry ledger.CreditEntry, kind string) {
	s.credits.Record(ctx, caller, entry)
	s.metrics.SubscriptionStarted(kind, sub.Plan.String())
	s.log.InfoContext(ctx, "subscribed or extended",
		slog.String("kind", kind),
		logger.Subscriber(sub.Subscriber),
		logger.MembershipID(sub.MembershipID),
		logger.Plan(sub.Plan),
		logger.ExpiresAt(sub.ExpiresAt),
	)
	_ = s.journal.Log(ctx, audit.ActionSubscribedOrExtended,
		audit.WithActor(caller.String()),
		audit.WithSubscriber(sub.Subscriber.String()),
		audit.WithMembershipID(sub.MembershipID),
		audit.WithMetadata("kind", kind),
		audit.WithMetadata("plan", sub.Plan.String()),
		audit.WithMetadata("expires_at", sub.ExpiresAt),
	)
}

func (s *Service) locked(ctx context.Context, addr ledger.Address, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if addr.IsZero() {
		return ledger.ErrInvalidAddress
	}
	unlock, err := s.locker.Lock(ctx, lock.SubscriberKey(addr.String()))
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.Atomic(ctx, fn)
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error, attrs ...slog.Attr) {
	err := *errp
	s.metrics.Observe(op, start, err)
	if err == nil {
		return
	}
	level := slog.LevelError
	if IsRejection(err) {
		level = slog.LevelWarn
	}
	s.log.LogAttrs(ctx, level, "operation failed",
		append(attrs, logger.Operation(op), logger.Error(err))...)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
