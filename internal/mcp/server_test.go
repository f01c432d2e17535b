package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/sandbox"
	"github.com/fyrsmithlabs/boundaryd/internal/secrets"
	"github.com/fyrsmithlabs/boundaryd/internal/session"
)

func testScrubber(t *testing.T) secrets.Scrubber {
	t.Helper()
	return secrets.MustNew(secrets.DefaultConfig())
}

func TestNewServer(t *testing.T) {
	sessions := session.NewManager(session.Config{}, zap.NewNop())
	runner := sandbox.NewRunner(sandbox.Config{}, nil)
	scrubber := testScrubber(t)

	t.Run("valid", func(t *testing.T) {
		srv, err := NewServer(DefaultConfig(), sessions, nil, runner, nil, scrubber)
		require.NoError(t, err)
		require.NotNil(t, srv)
		assert.Equal(t, sandbox.StrictProfile().Name, srv.profile.Name)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		srv, err := NewServer(nil, sessions, nil, runner, nil, scrubber)
		require.NoError(t, err)
		assert.Equal(t, 1000, srv.maxListItems)
		assert.Equal(t, 10, srv.maxSearchResults)
	})

	t.Run("nil session manager", func(t *testing.T) {
		_, err := NewServer(DefaultConfig(), nil, nil, runner, nil, scrubber)
		require.Error(t, err)
	})

	t.Run("nil runner", func(t *testing.T) {
		_, err := NewServer(DefaultConfig(), sessions, nil, nil, nil, scrubber)
		require.Error(t, err)
	})

	t.Run("nil scrubber", func(t *testing.T) {
		_, err := NewServer(DefaultConfig(), sessions, nil, runner, nil, nil)
		require.Error(t, err)
	})

	t.Run("limits clamped to ceilings", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxListItems = 50000
		cfg.MaxSearchResults = 500
		srv, err := NewServer(cfg, sessions, nil, runner, nil, scrubber)
		require.NoError(t, err)
		assert.Equal(t, 1000, srv.maxListItems)
		assert.Equal(t, 10, srv.maxSearchResults)
	})

	t.Run("limits below ceilings preserved", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxListItems = 100
		cfg.MaxSearchResults = 5
		srv, err := NewServer(cfg, sessions, nil, runner, nil, scrubber)
		require.NoError(t, err)
		assert.Equal(t, 100, srv.maxListItems)
		assert.Equal(t, 5, srv.maxSearchResults)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "boundaryd", cfg.Name)
	assert.Equal(t, 1000, cfg.MaxListItems)
	assert.Equal(t, 10, cfg.MaxSearchResults)
	assert.True(t, cfg.WatchRoots)
}

func TestServerClose(t *testing.T) {
	sessions := session.NewManager(session.Config{}, zap.NewNop())
	runner := sandbox.NewRunner(sandbox.Config{}, nil)
	srv, err := NewServer(DefaultConfig(), sessions, nil, runner, nil, testScrubber(t))
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
}
