// Package httpserver runs an http.Server bound to a context.
//
//	srv := httpserver.New(cfg.HTTP, router, httpserver.WithLogger(log))
//	if err := srv.Run(ctx); err != nil {
//	    return err
//	}
//
// Run returns once ctx is cancelled and in-flight requests have drained, or
// the shutdown timeout has passed. Signal handling is left to the caller,
// typically through signal.NotifyContext.
package httpserver
