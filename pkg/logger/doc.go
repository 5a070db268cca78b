// Package logger builds *slog.Logger instances with functional options,
// attribute helpers and context attribute injection.
//
// New selects a text or JSON handler and wraps it with LogHandlerDecorator,
// which adds attributes attached with ContextWithAttrs and values registered
// with WithContextValue to every record.
//
//	log := logger.New(
//	    logger.WithService("pushd"),
//	    logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	ctx = logger.ContextWithAttrs(ctx, logger.EventID(event.ID))
//	log.LogAttrs(ctx, slog.LevelWarn, "push attempt failed",
//	    logger.Endpoint(sub.Endpoint),
//	    logger.ErrorCode(string(code)),
//	)
//
// Helpers such as Error and UserID return an empty Attr for empty input, so
// they can be passed unconditionally.
package logger
