// Package httpserver runs an http.Handler with graceful shutdown and health
// probes.
//
// Server listens on the configured address, serves until its context is
// cancelled or Shutdown is called, and then shuts down within
// ShutdownTimeout. Drain hooks registered with WithDrainHook run
// concurrently with http.Server.Shutdown; they are the place to close
// upgraded sockets and event streams, which Shutdown does not track.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithDrainHook(realtimeService.Close),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// LivenessHandler and ReadinessHandler answer JSON probes. Readiness runs
// every named check concurrently and reports 503 when any fails.
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
