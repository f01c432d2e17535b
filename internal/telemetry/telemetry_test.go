package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupDisabled(t *testing.T) {
	p, err := Setup(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Handler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupExportsMetrics(t *testing.T) {
	p, err := Setup(Config{Enabled: true, ServiceName: "boundaryd-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	meter := otel.Meter("test")
	counter, err := meter.Int64Counter("test_ops_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_ops_total")
}
