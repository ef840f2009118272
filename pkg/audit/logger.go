package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger builds events and hands them to a Storage.
type Logger struct {
	storage   Storage
	now       func() time.Time
	requestID func(context.Context) (string, bool)
	actor     func(context.Context) (string, bool)
}

// NewLogger creates a journal writing to storage. A nil storage discards events.
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		storage = Discard
	}
	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records a successful action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.store(ctx, action, ResultSuccess, nil, opts)
}

// LogError records a failed action.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.store(ctx, action, ResultError, err, opts)
}

func (l *Logger) store(ctx context.Context, action string, result Result, err error, opts []EventOption) error {
	if l == nil {
		return nil
	}
	event := Event{
		ID:        uuid.NewString(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if l.requestID != nil {
		event.RequestID, _ = l.requestID(ctx)
	}
	for _, opt := range opts {
		opt(&event)
	}
	if event.Actor == "" && l.actor != nil {
		event.Actor, _ = l.actor(ctx)
	}
	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}

type discard struct{}

func (discard) Store(context.Context, Event) error { return nil }

// Discard drops every event.
var Discard Storage = discard{}
