package audit

import "context"

// WithActor records who performed the action.
func WithActor(actor string) EventOption {
	return func(e *Event) { e.Actor = actor }
}

// WithSubscriber records whose subscription or balance the action touched.
func WithSubscriber(subscriber string) EventOption {
	return func(e *Event) { e.Subscriber = subscriber }
}

// WithMembershipID records the subscription the action touched.
func WithMembershipID(id int64) EventOption {
	return func(e *Event) { e.MembershipID = id }
}

// WithMetadata adds a key to the event metadata.
func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// Option configures a Logger.
type Option func(*Logger)

// WithRequestIDExtractor fills Event.RequestID from the context.
func WithRequestIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.requestID = fn }
}

// WithActorExtractor fills Event.Actor from the context when no WithActor option is given.
func WithActorExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.actor = fn }
}
