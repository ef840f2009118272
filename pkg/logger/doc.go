// Package logger builds the service's *slog.Logger: JSON or text output,
// environment presets, and a handler that copies request-scoped values such as
// the request id from context.Context into every record.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "meedd"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "subscription renewed",
//		logger.Subscriber(addr),
//		logger.MembershipID(sub.MembershipID),
//		logger.ExpiresAt(sub.ExpiresAt),
//	)
//
// Attribute helpers keep key names consistent across packages. Error returns an
// empty Attr for a nil error, so it can be passed unconditionally.
package logger
