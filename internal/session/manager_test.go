package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/handle"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.HandleLimits == (handle.Limits{}) {
		cfg.HandleLimits = handle.Limits{
			MaxFileSize:  10 * 1024 * 1024,
			MaxSpanLines: 200,
			MaxSpanBytes: 8192,
		}
	}
	m := NewManager(cfg, zap.NewNop())
	t.Cleanup(m.Stop)
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t, Config{})
	root := t.TempDir()

	s, err := m.Create(CreateOptions{Roots: []string{root}})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Len(t, s.Roots(), 1)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Len())
}

func TestCreateRequiresRoots(t *testing.T) {
	m := newTestManager(t, Config{})

	_, err := m.Create(CreateOptions{})
	require.Error(t, err)
}

func TestCreateRejectsMissingRoot(t *testing.T) {
	m := newTestManager(t, Config{})

	_, err := m.Create(CreateOptions{Roots: []string{"/does/not/exist"}})
	require.Error(t, err)
}

func TestGetUnknownSession(t *testing.T) {
	m := newTestManager(t, Config{})

	_, err := m.Get("nope")
	assert.True(t, fault.HasCode(err, fault.CodeSessionNotFound))
}

func TestBudgetClampedToSystemMaxima(t *testing.T) {
	m := newTestManager(t, Config{MaxToolCalls: 50, MaxOutputBytes: 1000})
	root := t.TempDir()

	s, err := m.Create(CreateOptions{
		Roots:          []string{root},
		MaxToolCalls:   500,
		MaxOutputBytes: 99999,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, s.Budget.Remaining())

	smaller, err := m.Create(CreateOptions{
		Roots:        []string{root},
		MaxToolCalls: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, smaller.Budget.Remaining())
}

func TestCloseTearsDownHandles(t *testing.T) {
	m := newTestManager(t, Config{})
	root := t.TempDir()

	s, err := m.Create(CreateOptions{Roots: []string{root}})
	require.NoError(t, err)

	require.NoError(t, m.Close(s.ID))
	assert.Zero(t, m.Len())

	_, err = m.Get(s.ID)
	assert.True(t, fault.HasCode(err, fault.CodeSessionNotFound))

	// Final ledger entry marks the close.
	entries := s.Ledger.Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "session.close", last.Operation)
	assert.Equal(t, "closed", last.Outcome)
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newTestManager(t, Config{})
	root := t.TempDir()

	s, err := m.Create(CreateOptions{Roots: []string{root}})
	require.NoError(t, err)
	require.NoError(t, m.Close(s.ID))
	assert.Error(t, m.Close(s.ID))
	assert.Equal(t, 1, s.Ledger.Len())
}

func TestExpiredSessionRejectedOnAccess(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: 10 * time.Millisecond})
	root := t.TempDir()

	s, err := m.Create(CreateOptions{Roots: []string{root}})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = m.Get(s.ID)
	assert.True(t, fault.HasCode(err, fault.CodeSessionExpired))
	assert.Zero(t, m.Len())
}

func TestSetRootsReplacesSet(t *testing.T) {
	m := newTestManager(t, Config{})
	rootA := t.TempDir()
	rootB := t.TempDir()

	s, err := m.Create(CreateOptions{Roots: []string{rootA}})
	require.NoError(t, err)

	canonical, err := m.SetRoots(s.ID, []string{rootB})
	require.NoError(t, err)
	require.Len(t, canonical, 1)
	assert.Equal(t, canonical, s.Roots())
}

func TestStopClosesAllSessions(t *testing.T) {
	m := newTestManager(t, Config{})
	root := t.TempDir()

	_, err := m.Create(CreateOptions{Roots: []string{root}})
	require.NoError(t, err)
	_, err = m.Create(CreateOptions{Roots: []string{root}})
	require.NoError(t, err)

	m.Stop()
	assert.Zero(t, m.Len())
}
