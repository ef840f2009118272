package audit

import (
	"context"
	"fmt"
	"time"
)

// Ledger actions journaled by the engine.
const (
	ActionSubscribedOrExtended = "subscription.subscribed_or_extended"
	ActionSubscriptionUpgraded = "subscription.upgraded"
	ActionSubscriptionExpired  = "subscription.expired"
	ActionCreditsAdded         = "credits.added"
	ActionCreditsDeducted      = "credits.deducted"
	ActionCreditsSet           = "credits.set"
	ActionCreditsPurchased     = "credits.purchased"
	ActionPriceUpdated         = "catalog.price_updated"
	ActionTopUpUpdated         = "catalog.top_up_updated"
	ActionRevenueWithdrawn     = "treasury.revenue_withdrawn"
)

// Result is the outcome of a journaled action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// Event is one journal entry.
type Event struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	Actor        string         `json:"actor,omitempty"`
	Subscriber   string         `json:"subscriber,omitempty"`
	MembershipID int64          `json:"membership_id,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Result       Result         `json:"result"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Validate checks required fields.
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// EventOption decorates an event before it is stored.
type EventOption func(*Event)

// Storage persists events.
type Storage interface {
	Store(ctx context.Context, event Event) error
}

// BatchWriter persists several events at once.
type BatchWriter interface {
	StoreBatch(ctx context.Context, events []Event) error
}

// Criteria filters events read back from a MemoryStorage. Zero fields match everything.
type Criteria struct {
	Action     string
	Subscriber string
	Since      time.Time
	Limit      int
}
