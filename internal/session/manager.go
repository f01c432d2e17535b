package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/budget"
	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/handle"
	"github.com/fyrsmithlabs/boundaryd/internal/pathguard"
	"github.com/fyrsmithlabs/boundaryd/internal/provenance"
)

// Config sets system-wide session defaults. Per-session requests may
// shrink the budgets below these values but never exceed them.
type Config struct {
	// IdleTimeout expires sessions with no activity.
	IdleTimeout time.Duration

	// MaxToolCalls is the default and ceiling for per-session call budgets.
	MaxToolCalls int

	// MaxOutputBytes is the default and ceiling for per-session output.
	MaxOutputBytes int64

	// CallsPerSecond optionally rate-limits tool calls. Zero disables.
	CallsPerSecond float64

	// HandleLimits are the per-call read bounds every session gets.
	HandleLimits handle.Limits
}

// CreateOptions are the caller-supplied parameters of a new session.
type CreateOptions struct {
	// Roots are the directories the session may access. At least one is
	// required.
	Roots []string

	// MaxToolCalls shrinks the call budget below the system default.
	// Zero or out-of-range values take the default.
	MaxToolCalls int

	// MaxOutputBytes shrinks the output budget below the system default.
	MaxOutputBytes int64

	// IdleTimeout shrinks the idle timeout below the system default.
	IdleTimeout time.Duration
}

// Manager owns the session table and the idle reaper.
type Manager struct {
	cfg       Config
	logger    *zap.Logger
	publisher provenance.Publisher

	mu       sync.Mutex
	sessions map[string]*Session
	stop     chan struct{}
}

// NewManager creates an empty manager. Call Start to run the idle reaper.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = 100
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 10 * 1024 * 1024
	}
	if cfg.HandleLimits.MaxFileSize <= 0 {
		cfg.HandleLimits.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.HandleLimits.MaxSpanLines <= 0 {
		cfg.HandleLimits.MaxSpanLines = 200
	}
	if cfg.HandleLimits.MaxSpanBytes <= 0 {
		cfg.HandleLimits.MaxSpanBytes = 8 * 1024
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("session"),
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
}

// SetPublisher attaches an audit publisher wired into every new
// session's ledger.
func (m *Manager) SetPublisher(p provenance.Publisher) {
	m.publisher = p
}

// Create validates and canonicalizes the requested roots and registers a
// new session.
func (m *Manager) Create(opts CreateOptions) (*Session, error) {
	if len(opts.Roots) == 0 {
		return nil, fault.New(fault.CodePathNotFound, "at least one root is required")
	}

	roots := make([]string, len(opts.Roots))
	for i, r := range opts.Roots {
		canonical, err := pathguard.CanonicalizeRoot(r)
		if err != nil {
			return nil, err
		}
		roots[i] = canonical
	}

	calls := opts.MaxToolCalls
	if calls <= 0 || calls > m.cfg.MaxToolCalls {
		calls = m.cfg.MaxToolCalls
	}
	bytes := opts.MaxOutputBytes
	if bytes <= 0 || bytes > m.cfg.MaxOutputBytes {
		bytes = m.cfg.MaxOutputBytes
	}
	idle := opts.IdleTimeout
	if idle <= 0 || idle > m.cfg.IdleTimeout {
		idle = m.cfg.IdleTimeout
	}

	id := uuid.New().String()
	ledger := provenance.NewLedger(id)
	if m.publisher != nil {
		ledger.SetPublisher(m.publisher, func(err error) {
			m.logger.Warn("audit publish failed", zap.String("session_id", id), zap.Error(err))
		})
	}

	now := time.Now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		Budget: budget.New(budget.Config{
			MaxToolCalls:   calls,
			MaxOutputBytes: bytes,
			CallsPerSecond: m.cfg.CallsPerSecond,
		}),
		Handles:     handle.NewTable(m.cfg.HandleLimits),
		Ledger:      ledger,
		roots:       roots,
		lastActive:  now,
		idleTimeout: idle,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", id),
		zap.Strings("roots", roots),
		zap.Int("max_tool_calls", calls),
		zap.Int64("max_output_bytes", bytes))
	return s, nil
}

// Get returns a live session, refreshing its idle clock. Expired sessions
// are torn down on access.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fault.New(fault.CodeSessionNotFound, "unknown session %s", id)
	}

	now := time.Now()
	if s.expired(now) {
		m.teardown(s, "expired")
		return nil, fault.New(fault.CodeSessionExpired, "session %s expired", id)
	}
	s.touch(now)
	return s, nil
}

// SetRoots replaces a session's root set with newly validated roots.
func (m *Manager) SetRoots(id string, roots []string) ([]string, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, fault.New(fault.CodePathNotFound, "at least one root is required")
	}

	canonical := make([]string, len(roots))
	for i, r := range roots {
		c, err := pathguard.CanonicalizeRoot(r)
		if err != nil {
			return nil, err
		}
		canonical[i] = c
	}
	s.setRoots(canonical)
	return canonical, nil
}

// Close tears down a session explicitly.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fault.New(fault.CodeSessionNotFound, "unknown session %s", id)
	}
	m.teardown(s, "closed")
	return nil
}

// teardown invalidates handles, writes the final ledger entry, and
// removes the session. Idempotent.
func (m *Manager) teardown(s *Session, reason string) {
	if !s.markClosed() {
		return
	}

	s.Handles.Clear()
	s.Ledger.Record("session.close", "", reason, 0)

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	usage := s.Budget.Usage()
	m.logger.Info("session closed",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
		zap.Int("tool_calls", usage.ToolCalls),
		zap.Int64("output_bytes", usage.OutputBytes))
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start runs the idle reaper until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	interval := m.cfg.IdleTimeout / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.reap(time.Now())
			}
		}
	}()
}

// Stop halts the reaper and tears down all sessions.
func (m *Manager) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}

	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		m.teardown(s, "shutdown")
	}
}

func (m *Manager) reap(now time.Time) {
	m.mu.Lock()
	var stale []*Session
	for _, s := range m.sessions {
		if s.expired(now) {
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.teardown(s, "expired")
	}
}
