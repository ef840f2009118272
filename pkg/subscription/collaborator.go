package subscription

import (
	"context"

	"github.com/meedprogram/meedkit/pkg/catalog"
	"github.com/meedprogram/meedkit/pkg/credits"
	"github.com/meedprogram/meedkit/pkg/ledger"
)

// ChargePerAction is the credit cost of one privileged write.
const ChargePerAction int64 = 1

// Collaborator is the surface other platform modules use: plan checks
// before gated features and credit metering around privileged writes.
type Collaborator struct {
	subs *Service
	self ledger.Address
}

// Collaborator returns the facade for the module identified by self. self
// must be registered as a consumer on the credit gate to deduct credits.
func (s *Service) Collaborator(self ledger.Address) *Collaborator {
	return &Collaborator{subs: s, self: self}
}

// IsPaidSubscriber reports whether addr holds an active paid membership.
func (c *Collaborator) IsPaidSubscriber(ctx context.Context, addr ledger.Address) (bool, error) {
	return c.subs.IsPaidSubscriber(ctx, addr)
}

// GetSubscriberPlan returns the plan of addr, Free when it never subscribed.
func (c *Collaborator) GetSubscriberPlan(ctx context.Context, addr ledger.Address) (catalog.Tier, error) {
	return c.subs.GetSubscriberPlan(ctx, addr)
}

// DeductCredits removes amount credits from addr on behalf of the collaborator.
func (c *Collaborator) DeductCredits(ctx context.Context, addr ledger.Address, amount int64) error {
	_, err := c.subs.credits.Deduct(ctx, c.self, addr, amount)
	return err
}

// GetUserCredits returns the credit balance of addr.
func (c *Collaborator) GetUserCredits(ctx context.Context, addr ledger.Address) (int64, error) {
	return c.subs.credits.Balance(ctx, addr)
}

// Charge debits one credit from subscriber and runs effect in the same unit
// of work. admin is the account performing the action: the subscriber itself
// or one of its delegated admins.
func (c *Collaborator) Charge(ctx context.Context, admin, subscriber ledger.Address, effect credits.Effect) error {
	_, err := c.subs.credits.Charge(ctx, admin, subscriber, ChargePerAction, effect)
	return err
}
