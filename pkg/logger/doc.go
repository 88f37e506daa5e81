// Package logger builds *slog.Logger instances for marketpulse services and
// provides attribute helpers so every package names its log keys the same way.
//
// New applies functional options over JSON/info defaults; WithEnvironment
// switches to text/debug output for development. The returned logger wraps its
// handler with LogHandlerDecorator, which runs registered ContextExtractor
// callbacks on every record. RequestIDExtractor pulls the id assigned by chi's
// RequestID middleware.
//
// Usage:
//
//	log := logger.New(
//	    logger.WithEnvironment("production", "marketpulse"),
//	    logger.WithContextExtractors(logger.RequestIDExtractor),
//	)
//	log.LogAttrs(ctx, slog.LevelWarn, "mailbox overflow",
//	    logger.UserID(42),
//	    logger.Kind("chat_message"),
//	)
package logger
