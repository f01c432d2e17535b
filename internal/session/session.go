// Package session tracks the live sessions of the gateway. Each session
// owns its roots, handle table, budget, and provenance ledger; nothing in
// here is shared between sessions. Operations within a session run
// strictly serialized.
package session

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/boundaryd/internal/budget"
	"github.com/fyrsmithlabs/boundaryd/internal/handle"
	"github.com/fyrsmithlabs/boundaryd/internal/provenance"
)

// Session is one caller's bounded view of the filesystem.
type Session struct {
	ID        string
	CreatedAt time.Time

	Budget  *budget.Enforcer
	Handles *handle.Table
	Ledger  *provenance.Ledger

	// opMu serializes the session's operations end to end.
	opMu sync.Mutex

	mu          sync.Mutex
	roots       []string
	lastActive  time.Time
	idleTimeout time.Duration
	closed      bool
}

// Lock acquires the session's operation lock. Every tool call holds it
// for the duration of the operation.
func (s *Session) Lock() { s.opMu.Lock() }

// Unlock releases the operation lock.
func (s *Session) Unlock() { s.opMu.Unlock() }

// Roots returns a copy of the session's canonical roots.
func (s *Session) Roots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// setRoots replaces the root set. Existing handles stay registered; reads
// through them revalidate containment against the new roots and fail with
// a root escape if their file is no longer reachable.
func (s *Session) setRoots(roots []string) {
	s.mu.Lock()
	s.roots = roots
	s.mu.Unlock()
}

// touch refreshes the idle clock.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// expired reports whether the session has been idle past its timeout.
func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive) > s.idleTimeout
}

func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
