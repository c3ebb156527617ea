// Package health serves the liveness and readiness probes of the
// maintenance process.
//
//   - /healthz: liveness. Reports version and uptime, always 200.
//   - /readyz: readiness. 200 only when every registered store probe
//     passes, 503 otherwise.
//
// Probes run concurrently, each under its own timeout, and the response
// carries the per-probe outcome and duration so a failing store can be
// identified from the probe output alone.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Checker is a named readiness probe. Probe returns nil when the dependency
// is healthy; it must respect context cancellation.
type Checker struct {
	Name  string
	Probe func(ctx context.Context) error
}

type probeResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type response struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]probeResult `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. Safe for concurrent use; the checker
// list is fixed at construction.
type Handler struct {
	version  string
	started  time.Time
	checkers []Checker
}

// New creates a Handler evaluating the given checkers on each /readyz
// request.
func New(version string, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{version: version, started: time.Now(), checkers: c}
}

// Healthz reports the process alive, with its version and uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz runs every probe concurrently and returns 200 only when all pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]probeResult, len(h.checkers))
		ready  = true
	)

	for _, c := range h.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			start := time.Now()
			err := c.Probe(ctx)
			res := probeResult{Status: "ok", Duration: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
			}

			mu.Lock()
			checks[c.Name] = res
			if err != nil {
				ready = false
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	resp := response{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		resp.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
