// Package health serves liveness and readiness probes backed by periodic checks.
//
// A check flips to unhealthy only after FailureThreshold consecutive failures
// and back after SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Probe selects the endpoint a check contributes to.
type Probe uint8

const (
	Liveness Probe = iota
	Readiness
)

func (p Probe) String() string {
	if p == Liveness {
		return "liveness"
	}
	return "readiness"
}

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes a registered check.
type Check struct {
	Name    string
	Probe   Probe
	Timeout time.Duration
	Func    CheckFunc

	// Zero values default to 3 and 1.
	FailureThreshold int
	SuccessThreshold int
}

type result struct {
	err     error
	latency time.Duration
	at      time.Time
}

// state is written by a single runner goroutine and read by handlers.
type state struct {
	Check

	healthy atomic.Bool
	last    atomic.Pointer[result]

	fails int
	oks   int
}

func (s *state) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	err := s.Func(ctx)
	s.last.Store(&result{err: err, latency: time.Since(start), at: start})

	if err != nil {
		s.oks = 0
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.healthy.Store(false)
		}
		return
	}
	s.fails = 0
	s.oks++
	if s.oks >= s.SuccessThreshold {
		s.healthy.Store(true)
	}
}

func (s *state) failure() string {
	if r := s.last.Load(); r != nil && r.err != nil {
		return r.err.Error()
	}
	return "check is unhealthy"
}

// Health tracks checks and the manual readiness gate.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*state
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start healthy.
func (h *Health) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	s := &state{Check: c}
	s.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

// Start runs every registered check immediately and then every interval.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, s := range checks {
		go loop(ctx, s, interval)
	}
}

func loop(ctx context.Context, s *state, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

// Stop cancels the check goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, s := range h.snapshot(Readiness) {
		if !s.healthy.Load() {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(p Probe) []*state {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*state
	for _, s := range h.checks {
		if s.Probe == p {
			out = append(out, s)
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, h.snapshot(Liveness), nil)
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	var extra []string
	if !h.ready.Load() {
		extra = []string{"_readiness", "service is not ready"}
	}
	write(w, h.snapshot(Readiness), extra)
}

// write responds 200 {"status":"ok"} or 503 with failing checks listed.
func write(w http.ResponseWriter, checks []*state, extra []string) {
	failing := len(extra) > 0
	for _, s := range checks {
		if !s.healthy.Load() {
			failing = true
			break
		}
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if !failing {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.ObjStart()
			for _, s := range checks {
				if s.healthy.Load() {
					continue
				}
				e.FieldStart(s.Name)
				e.Str(s.failure())
			}
			for i := 0; i+1 < len(extra); i += 2 {
				e.FieldStart(extra[i])
				e.Str(extra[i+1])
			}
			e.ObjEnd()
		})
	})

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.Write(e.Bytes())
}
