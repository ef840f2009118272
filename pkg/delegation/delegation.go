// Package delegation answers whether an admin address may act on behalf of a
// subscriber. The platform's admin registry is external; MemoryRegistry is a
// self-contained implementation for single-node deployments and tests.
package delegation

import (
	"context"
	"errors"
	"sync"

	"github.com/meedprogram/meedkit/pkg/ledger"
)

var (
	ErrSelfDelegation = errors.New("delegation: an address cannot delegate to itself")
	// ErrUnauthorized is returned when a caller edits delegations it does not own.
	ErrUnauthorized = errors.New("delegation: caller cannot manage these delegations")
)

// Registry reports whether admin is delegated by subscriber.
type Registry interface {
	IsAuthorized(ctx context.Context, admin, subscriber ledger.Address) (bool, error)
}

// Manager is a Registry whose delegations can be edited.
type Manager interface {
	Registry
	Add(subscriber, admin ledger.Address) error
	Remove(subscriber, admin ledger.Address)
	OptOut(admin ledger.Address)
	OptIn(admin ledger.Address)
}

var _ Manager = (*MemoryRegistry)(nil)

// None is a Registry that authorizes nobody.
type None struct{}

// IsAuthorized always reports false.
func (None) IsAuthorized(context.Context, ledger.Address, ledger.Address) (bool, error) {
	return false, nil
}

// MemoryRegistry keeps delegations in memory. An admin who opted out is never
// authorized, whatever delegations point at them.
type MemoryRegistry struct {
	mu       sync.RWMutex
	admins   map[ledger.Address]map[ledger.Address]struct{} // subscriber -> admins
	optedOut map[ledger.Address]struct{}
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		admins:   make(map[ledger.Address]map[ledger.Address]struct{}),
		optedOut: make(map[ledger.Address]struct{}),
	}
}

// Add lets admin act for subscriber.
func (r *MemoryRegistry) Add(subscriber, admin ledger.Address) error {
	if subscriber.IsZero() || admin.IsZero() {
		return ledger.ErrInvalidAddress
	}
	if subscriber == admin {
		return ErrSelfDelegation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.admins[subscriber]
	if !ok {
		set = make(map[ledger.Address]struct{})
		r.admins[subscriber] = set
	}
	set[admin] = struct{}{}
	return nil
}

// Remove revokes a delegation. Removing a missing delegation is a no-op.
func (r *MemoryRegistry) Remove(subscriber, admin ledger.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.admins[subscriber], admin)
	if len(r.admins[subscriber]) == 0 {
		delete(r.admins, subscriber)
	}
}

// OptOut withdraws admin from every delegation, now and in future.
func (r *MemoryRegistry) OptOut(admin ledger.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.optedOut[admin] = struct{}{}
}

// OptIn reverses OptOut. Existing delegations become effective again.
func (r *MemoryRegistry) OptIn(admin ledger.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.optedOut, admin)
}

// IsAuthorized implements Registry.
func (r *MemoryRegistry) IsAuthorized(_ context.Context, admin, subscriber ledger.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, out := r.optedOut[admin]; out {
		return false, nil
	}
	_, ok := r.admins[subscriber][admin]
	return ok, nil
}
