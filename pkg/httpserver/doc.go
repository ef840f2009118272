// Package httpserver runs an http.Handler until its context is canceled and
// then drains in-flight requests within a shutdown timeout.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// Liveness and Readiness build the /healthz and /readyz handlers; Readiness
// takes named checks such as a pgx pool ping or a Redis PING.
package httpserver
