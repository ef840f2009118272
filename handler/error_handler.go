package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/meedprogram/meedkit/pkg/logger"
	"github.com/meedprogram/meedkit/pkg/requestid"
)

// ErrorMapper translates an error into its HTTP representation.
type ErrorMapper func(error) HTTPError

// NewErrorHandler maps err, logs it at warn for 4xx and error for 5xx, and
// renders a JSON error envelope. A nil mapper keeps HTTPError values and
// reports everything else as a 500.
func NewErrorHandler(log *slog.Logger, mapErr ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = logger.Discard()
	}
	if mapErr == nil {
		mapErr = func(error) HTTPError { return ErrInternalServerError }
	}
	return func(ctx Context, err error) {
		var httpErr HTTPError
		if !errors.As(err, &httpErr) {
			httpErr = mapErr(err)
		}

		r := ctx.Request()
		level := slog.LevelError
		if httpErr.Code < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.Error(err),
			logger.RequestID(requestid.FromContext(r.Context())),
			slog.Int("status", httpErr.Code),
			slog.String("key", httpErr.Key),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		if rerr := JSONError(httpErr).Render(ctx.ResponseWriter(), r); rerr != nil {
			log.ErrorContext(r.Context(), "failed to render error", logger.Error(rerr))
		}
	}
}
