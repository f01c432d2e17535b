package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/session"
)

func testManager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(session.Config{}, zap.NewNop())
	t.Cleanup(m.Stop)
	return m
}

func TestNewServer(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		srv, err := NewServer(testManager(t), nil, zap.NewNop(), nil)
		require.NoError(t, err)
		require.NotNil(t, srv)
		assert.Equal(t, "localhost:9091", srv.config.Addr)
	})

	t.Run("nil sessions", func(t *testing.T) {
		_, err := NewServer(nil, nil, zap.NewNop(), nil)
		require.Error(t, err)
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewServer(testManager(t), nil, nil, nil)
		require.Error(t, err)
	})
}

func TestHealthz(t *testing.T) {
	srv, err := NewServer(testManager(t), nil, zap.NewNop(), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionsEndpoint(t *testing.T) {
	manager := testManager(t)
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x\n"), 0o644))
	_, err = manager.Create(session.CreateOptions{Roots: []string{root}})
	require.NoError(t, err)

	srv, err := NewServer(manager, nil, zap.NewNop(), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/api/v1/sessions", nil))

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":1}`, rec.Body.String())
}

func TestMetricsRouteAbsentWithoutHandler(t *testing.T) {
	srv, err := NewServer(testManager(t), nil, zap.NewNop(), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestMetricsRouteWithHandler(t *testing.T) {
	handler := nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write([]byte("# metrics\n"))
	})
	srv, err := NewServer(testManager(t), handler, zap.NewNop(), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}
