// Package lock serializes work per key, typically per subscriber address.
//
// The ledger store already makes each unit of work atomic; a Locker adds
// ordering across the steps around it (pricing reads, external transfers)
// so two requests for the same subscriber never interleave.
//
//	unlock, err := locker.Lock(ctx, lock.SubscriberKey(addr.String()))
//	if err != nil {
//		return err
//	}
//	defer unlock()
package lock

import (
	"context"
	"strings"
	"sync"
)

// Locker acquires an exclusive lock on key. The returned func releases it and
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// SubscriberKey is the lock key guarding every balance and membership write
// of one subscriber.
func SubscriberKey(addr string) string {
	return "sub:" + addr
}

// TreasuryKey is the lock key guarding revenue sweeps in one currency.
func TreasuryKey(currency string) string {
	return "treasury:" + strings.ToLower(currency)
}

// MemoryLocker is a keyed mutex for a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *MemoryLocker) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Held reports the number of keys currently tracked. Used by tests.
func (l *MemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Nop is a Locker that never blocks.
type Nop struct{}

func (Nop) Lock(context.Context, string) (func(), error) { return func() {}, nil }
