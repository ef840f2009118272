package audit

import (
	"context"
	"log/slog"
)

// SlogStorage writes each event as a structured log record. It is the default
// journal sink of the service binary.
type SlogStorage struct {
	log *slog.Logger
}

// NewSlogStorage writes to log, or slog.Default when log is nil.
func NewSlogStorage(log *slog.Logger) *SlogStorage {
	if log == nil {
		log = slog.Default()
	}
	return &SlogStorage{log: log.With(slog.String("component", "audit"))}
}

func (s *SlogStorage) Store(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Result == ResultError {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("action", e.Action),
		slog.String("result", string(e.Result)),
		slog.Time("at", e.CreatedAt),
	}
	if e.Actor != "" {
		attrs = append(attrs, slog.String("actor", e.Actor))
	}
	if e.Subscriber != "" {
		attrs = append(attrs, slog.String("subscriber", e.Subscriber))
	}
	if e.MembershipID != 0 {
		attrs = append(attrs, slog.Int64("membership_id", e.MembershipID))
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	if len(e.Metadata) > 0 {
		meta := make([]any, 0, len(e.Metadata))
		for k, v := range e.Metadata {
			meta = append(meta, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}
	s.log.LogAttrs(ctx, level, "audit event", attrs...)
	return nil
}

func (s *SlogStorage) StoreBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := s.Store(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
