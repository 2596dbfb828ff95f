package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

const livenessResponse = `{"status":"ok"}`

// healthHandler answers liveness checks. It sits outside the client session
// middleware so health checks never allocate a store.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, livenessResponse)
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// readinessHandler runs every check concurrently, each under its own timeout.
type readinessHandler struct {
	checks  map[string]ReadinessCheck
	timeout time.Duration
	logger  *slog.Logger
}

func newReadinessHandler(checks map[string]ReadinessCheck, timeout time.Duration, logger *slog.Logger) *readinessHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &readinessHandler{checks: checks, timeout: timeout, logger: logger}
}

func (h *readinessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			status := "ok"
			if err := check(ctx); err != nil {
				status = err.Error()
				h.logger.WarnContext(r.Context(), "readiness check failed", "check", name, "error", err)
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}()
	}
	wg.Wait()

	resp := readinessResponse{Status: "ok", Checks: results}
	code := http.StatusOK
	for _, status := range results {
		if status != "ok" {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			break
		}
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, resp)
}
