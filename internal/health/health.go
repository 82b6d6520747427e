// Package health provides HTTP liveness and readiness handlers for the bot.
//
// /healthz always answers 200 while the process serves HTTP. /readyz runs
// every registered [Checker] concurrently and answers 200 only when all of
// them pass; for SumireVox these are the settings database and the VOICEVOX
// engine.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sumirevox/internal/observe"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe.
type Checker struct {
	// Name appears as a key in the JSON response (e.g. "storage").
	Name string

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

// Pinger is implemented by the storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a Checker that calls p.Ping.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Versioned returns a Checker that succeeds when version reports no error.
// It fits the VOICEVOX client's Version method, which is the cheapest call
// the engine offers.
func Versioned(name string, version func(ctx context.Context) (string, error)) Checker {
	return Checker{Name: name, Check: func(ctx context.Context) error {
		_, err := version(ctx)
		return err
	}}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Checks run
// concurrently, each with a [checkTimeout] deadline derived from the request
// context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, allOK := h.run(r.Context())

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
		observe.Logger(r.Context()).Warn("readiness check failed", "checks", checks)
	}
	writeJSON(w, status, res)
}

func (h *Handler) run(ctx context.Context) (map[string]string, bool) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
		g      errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()
	return checks, allOK
}

// Register adds the /healthz and /readyz routes to mux.
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
