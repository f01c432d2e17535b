package sandbox

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// Config holds the execution ceilings. Zero fields take the defaults below.
type Config struct {
	// MaxCodeBytes caps submission size.
	MaxCodeBytes int
	// Timeout is the wall-clock ceiling per run.
	Timeout time.Duration
	// MaxMemoryBytes is the heap-growth ceiling per run.
	MaxMemoryBytes int64
	// MaxSteps is the Starlark execution step ceiling per run.
	MaxSteps uint64
	// MaxStdoutBytes caps captured print output.
	MaxStdoutBytes int
}

const (
	defaultMaxCodeBytes   = 10 * 1024
	defaultTimeout        = 5 * time.Second
	defaultMaxMemoryBytes = 256 << 20
	defaultMaxSteps       = 50_000_000
	defaultMaxStdoutBytes = 1 << 20

	memWatchInterval = 25 * time.Millisecond
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxCodeBytes == 0 {
		c.MaxCodeBytes = defaultMaxCodeBytes
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxMemoryBytes == 0 {
		c.MaxMemoryBytes = defaultMaxMemoryBytes
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = defaultMaxSteps
	}
	if c.MaxStdoutBytes == 0 {
		c.MaxStdoutBytes = defaultMaxStdoutBytes
	}
}

// Result is the outcome of a completed run. Dynamic guest errors (a fail()
// call, a type error) are a completed run with Status "error"; timeouts and
// memory kills surface as fault errors instead.
type Result struct {
	Stdout  string        `json:"stdout"`
	Stderr  string        `json:"stderr"`
	Status  string        `json:"status"` // "ok" or "error"
	Elapsed time.Duration `json:"elapsed"`
}

// Cancellation reasons. Thread.Cancel folds these into the eval error
// message, which is how the kill cause is recovered afterwards.
const (
	reasonTimeout = "wall-clock timeout"
	reasonMemory  = "memory ceiling"
	reasonOutput  = "output ceiling"
)

// Runner executes validated submissions. Execution is serialized across
// all sessions: the memory watchdog reads process-wide heap stats, so
// only one guest program may allocate at a time for the ceiling to be
// attributable to that run.
type Runner struct {
	cfg    Config
	logger *zap.Logger
	execMu sync.Mutex
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Runner{cfg: cfg, logger: logger}
}

// Validate runs the static pipeline only: the size gate and the syntax-tree
// analysis. Nothing executes.
func (r *Runner) Validate(code string, profile *Profile) error {
	if len(code) > r.cfg.MaxCodeBytes {
		return fault.New(fault.CodeCodeTooLarge,
			"submission is %d bytes, ceiling is %d", len(code), r.cfg.MaxCodeBytes)
	}
	f, err := parse(code)
	if err != nil {
		return err
	}
	return analyze(f, profile)
}

// Run validates and executes code under the configured ceilings. The worker
// is hard-cancelled on timeout or memory violation rather than being left to
// run to completion.
func (r *Runner) Run(ctx context.Context, code string, profile *Profile) (*Result, error) {
	if len(code) > r.cfg.MaxCodeBytes {
		return nil, fault.New(fault.CodeCodeTooLarge,
			"submission is %d bytes, ceiling is %d", len(code), r.cfg.MaxCodeBytes)
	}

	f, err := parse(code)
	if err != nil {
		return nil, err
	}
	if err := analyze(f, profile); err != nil {
		return nil, err
	}

	// One guest at a time. The static pipeline above stays concurrent;
	// only execution, where the memory watchdog samples the shared heap,
	// takes the lock.
	r.execMu.Lock()
	defer r.execMu.Unlock()

	predeclared := starlark.StringDict{
		"math": math.Module,
		"json": json.Module,
	}

	prog, err := starlark.FileProgram(f, predeclared.Has)
	if err != nil {
		// Resolve errors (undefined names and the like) are still a
		// pre-execution rejection.
		return nil, fault.New(fault.CodeSandboxViolation, "resolve error: %v", err)
	}

	var stdout strings.Builder
	thread := &starlark.Thread{Name: "sandbox"}
	thread.SetMaxExecutionSteps(r.cfg.MaxSteps)
	thread.Print = func(_ *starlark.Thread, msg string) {
		if stdout.Len()+len(msg)+1 > r.cfg.MaxStdoutBytes {
			thread.Cancel(reasonOutput)
			return
		}
		stdout.WriteString(msg)
		stdout.WriteByte('\n')
	}

	timer := time.AfterFunc(r.cfg.Timeout, func() {
		thread.Cancel(reasonTimeout)
	})
	defer timer.Stop()

	stopWatch := r.watchMemory(thread)
	defer stopWatch()

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(reasonTimeout)
	})
	defer stop()

	start := time.Now()
	_, execErr := prog.Init(thread, predeclared)
	elapsed := time.Since(start)

	if execErr != nil {
		if kill := killCause(execErr); kill != nil {
			r.logger.Warn("sandbox execution killed",
				zap.String("profile", profile.Name),
				zap.Duration("elapsed", elapsed),
				zap.String("cause", kill.Error()))
			return nil, kill
		}
		// Guest-level failure: the run completed, the program erred.
		return &Result{
			Stdout:  stdout.String(),
			Stderr:  evalMessage(execErr),
			Status:  "error",
			Elapsed: elapsed,
		}, nil
	}

	return &Result{
		Stdout:  stdout.String(),
		Status:  "ok",
		Elapsed: elapsed,
	}, nil
}

// watchMemory samples heap growth and hard-cancels the thread past the
// ceiling. Heap growth is a process-wide approximation of the run's
// footprint; execMu guarantees a single guest executes at a time, so
// growth over the baseline belongs to this run.
func (r *Runner) watchMemory(thread *starlark.Thread) (stop func()) {
	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(memWatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				var now runtime.MemStats
				runtime.ReadMemStats(&now)
				if now.HeapAlloc > baseline.HeapAlloc &&
					int64(now.HeapAlloc-baseline.HeapAlloc) > r.cfg.MaxMemoryBytes {
					thread.Cancel(reasonMemory)
					return
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// killCause maps a cancelled evaluation to its fault, or nil for ordinary
// guest errors.
func killCause(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, reasonMemory):
		return fault.New(fault.CodeSandboxOOM, "execution exceeded the memory ceiling")
	case strings.Contains(msg, reasonOutput):
		return fault.New(fault.CodeSandboxOOM, "execution exceeded the output ceiling")
	case strings.Contains(msg, reasonTimeout):
		return fault.New(fault.CodeSandboxTimeout, "execution exceeded the wall-clock ceiling")
	case strings.Contains(msg, "too many steps"):
		return fault.New(fault.CodeSandboxTimeout, "execution exceeded the step ceiling")
	default:
		return nil
	}
}

// evalMessage prefers the Starlark backtrace when present.
func evalMessage(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}
