package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/marketpulse/pkg/logger"
)

// Check probes one dependency. pg.Healthcheck and redis.Healthcheck return
// values of this shape.
type Check = func(ctx context.Context) error

// DefaultCheckTimeout bounds a readiness probe.
const DefaultCheckTimeout = 2 * time.Second

// LivenessHandler always answers 200 {"status":"alive"}.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "alive", nil)
	}
}

// ReadinessHandler runs every check concurrently within timeout. It answers
// 200 "ready" when all pass and 503 "not_ready" otherwise; each check is
// reported by name as "ok" or "unavailable". Failures are logged, never
// returned to the caller.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			results = make(map[string]string, len(checks))
			g       errgroup.Group
		)
		for name, check := range checks {
			g.Go(func() error {
				err := check(ctx)
				status := "ok"
				if err != nil {
					status = "unavailable"
					log.LogAttrs(ctx, slog.LevelError, "readiness check failed",
						slog.String("check", name),
						logger.Error(err),
					)
				}
				mu.Lock()
				results[name] = status
				mu.Unlock()
				return err
			})
		}
		if err := g.Wait(); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not_ready", results)
			return
		}
		writeStatus(w, http.StatusOK, "ready", results)
	}
}

func writeStatus(w http.ResponseWriter, code int, status string, checks map[string]string) {
	body := map[string]any{"status": status}
	if checks != nil {
		body["checks"] = checks
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
