package subscription

import (
	"time"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/ledger"
)

// State is the lifecycle position of an address. It is derived from the
// stored record and the clock, never stored.
type State string

const (
	StateNone    State = "none"
	StateTrial   State = "trial"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Event moves a subscription between states.
type Event string

const (
	EventStartTrial Event = "start_trial"
	EventSubscribe  Event = "subscribe"
	EventRenew      Event = "renew"
	EventChangePlan Event = "change_plan"
)

// StateOf returns the state of sub at now. A nil record is StateNone.
func StateOf(sub *ledger.Subscription, now time.Time) State {
	switch {
	case sub == nil:
		return StateNone
	case !sub.Active(now):
		return StateExpired
	case sub.Trial && sub.Plan == catalog.Free:
		return StateTrial
	default:
		return StateActive
	}
}

// change is the data a guard inspects.
type change struct {
	current ledger.Subscription
	target  catalog.Tier
}

type guard func(c change) error

type transition struct {
	from   State
	on     Event
	to     State
	guards []guard
}

// renewSamePlan keeps a running term on its plan: moving to another plan
// goes through ChangePlan first.
func renewSamePlan(c change) error {
	if c.target != c.current.Plan {
		return ErrUpgradePlanBeforeRenewal
	}
	return nil
}

func upgradeOnly(c change) error {
	if !c.target.Above(c.current.Plan) {
		return ErrCannotDowngradeTier
	}
	return nil
}

var transitions = []transition{
	{from: StateNone, on: EventStartTrial, to: StateTrial},
	{from: StateNone, on: EventSubscribe, to: StateActive},
	{from: StateTrial, on: EventRenew, to: StateActive, guards: []guard{renewSamePlan}},
	{from: StateActive, on: EventRenew, to: StateActive, guards: []guard{renewSamePlan}},
	{from: StateExpired, on: EventRenew, to: StateActive},
	{from: StateTrial, on: EventChangePlan, to: StateActive, guards: []guard{upgradeOnly}},
	{from: StateActive, on: EventChangePlan, to: StateActive, guards: []guard{upgradeOnly}},
}

// refusals names the error for events a state does not accept.
var refusals = map[Event]map[State]error{
	EventStartTrial: {
		StateTrial:   ErrAlreadyOwnsSubscription,
		StateActive:  ErrAlreadyOwnsSubscription,
		StateExpired: ErrAlreadyOwnsSubscription,
	},
	EventSubscribe: {
		StateTrial:   ErrAlreadyOwnsSubscription,
		StateActive:  ErrAlreadyOwnsSubscription,
		StateExpired: ErrAlreadyOwnsSubscription,
	},
	EventRenew: {
		StateNone: ErrSubscriptionNotFound,
	},
	EventChangePlan: {
		StateNone:    ErrSubscriptionNotFound,
		StateExpired: ErrSubscriptionExpired,
	},
}

// fire returns the state reached from from on event, or the error that
// forbids it. Guards run in order; the first failure wins.
func fire(from State, on Event, c change) (State, error) {
	for _, t := range transitions {
		if t.from != from || t.on != on {
			continue
		}
		for _, g := range t.guards {
			if err := g(c); err != nil {
				return from, err
			}
		}
		return t.to, nil
	}
	if err, ok := refusals[on][from]; ok {
		return from, err
	}
	return from, ErrInvalidTransition
}

// CanFire reports whether on is accepted from the state of sub at now,
// ignoring guards.
func CanFire(sub *ledger.Subscription, on Event, now time.Time) bool {
	from := StateOf(sub, now)
	for _, t := range transitions {
		if t.from == from && t.on == on {
			return true
		}
	}
	return false
}
