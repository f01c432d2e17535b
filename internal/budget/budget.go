// Package budget enforces per-session ceilings on tool calls, delivered
// bytes, and call rate. Charging is atomic: an operation that would cross a
// ceiling is rejected whole, with no partial credit and no partial output.
package budget

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// Config holds the ceilings for one session.
type Config struct {
	// MaxToolCalls bounds total attempted operations.
	MaxToolCalls int
	// MaxOutputBytes bounds cumulative bytes delivered to the caller.
	MaxOutputBytes int64
	// CallsPerSecond optionally rate-limits admission. Zero disables.
	CallsPerSecond float64
	// Burst is the limiter burst size; defaults to MaxToolCalls when zero.
	Burst int
}

// Usage is a point-in-time snapshot of the counters.
type Usage struct {
	ToolCalls   int   `json:"tool_calls"`
	OutputBytes int64 `json:"output_bytes"`
}

// Enforcer tracks one session's spend against its configured ceilings.
type Enforcer struct {
	mu      sync.Mutex
	cfg     Config
	calls   int
	bytes   int64
	limiter *rate.Limiter
}

// New creates an enforcer for the given ceilings.
func New(cfg Config) *Enforcer {
	e := &Enforcer{cfg: cfg}
	if cfg.CallsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.MaxToolCalls
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), burst)
	}
	return e
}

// ChargeCall admits one tool call. The call counter covers every attempted
// operation, successful or not, so it is charged at admission.
func (e *Enforcer) ChargeCall() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.calls+1 > e.cfg.MaxToolCalls {
		return fault.New(fault.CodeBudgetExceeded,
			"tool call budget exhausted (%d/%d)", e.calls, e.cfg.MaxToolCalls)
	}
	if e.limiter != nil && !e.limiter.Allow() {
		return fault.New(fault.CodeBudgetExceeded,
			"call rate above %.1f/s", e.cfg.CallsPerSecond)
	}
	e.calls++
	return nil
}

// ChargeBytes charges output bytes once their size is known, after the
// underlying operation ran but before anything reaches the caller. On
// failure the crossing call's output must be withheld entirely.
func (e *Enforcer) ChargeBytes(n int64) error {
	if n < 0 {
		n = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bytes+n > e.cfg.MaxOutputBytes {
		return fault.New(fault.CodeBudgetExceeded,
			"output budget exhausted (%d of %d bytes used, %d requested)",
			e.bytes, e.cfg.MaxOutputBytes, n)
	}
	e.bytes += n
	return nil
}

// Usage returns the current counters.
func (e *Enforcer) Usage() Usage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Usage{ToolCalls: e.calls, OutputBytes: e.bytes}
}

// Remaining returns how many tool calls are left.
func (e *Enforcer) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.MaxToolCalls - e.calls
}
