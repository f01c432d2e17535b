package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

func TestChargeCall(t *testing.T) {
	e := New(Config{MaxToolCalls: 2, MaxOutputBytes: 1024})

	require.NoError(t, e.ChargeCall())
	require.NoError(t, e.ChargeCall())

	err := e.ChargeCall()
	assert.Equal(t, fault.CodeBudgetExceeded, fault.CodeOf(err))
	assert.Equal(t, 2, e.Usage().ToolCalls, "rejected call is not charged")
}

func TestChargeBytes(t *testing.T) {
	e := New(Config{MaxToolCalls: 10, MaxOutputBytes: 100})

	require.NoError(t, e.ChargeBytes(60))
	require.NoError(t, e.ChargeBytes(40))

	err := e.ChargeBytes(1)
	assert.Equal(t, fault.CodeBudgetExceeded, fault.CodeOf(err))
	assert.Equal(t, int64(100), e.Usage().OutputBytes, "crossing charge leaves counter untouched")
}

func TestChargeBytesAllOrNothing(t *testing.T) {
	e := New(Config{MaxToolCalls: 10, MaxOutputBytes: 100})
	require.NoError(t, e.ChargeBytes(90))

	// A 20-byte result would cross the ceiling: the whole charge fails,
	// nothing is deducted.
	err := e.ChargeBytes(20)
	assert.Equal(t, fault.CodeBudgetExceeded, fault.CodeOf(err))
	assert.Equal(t, int64(90), e.Usage().OutputBytes)

	// A smaller result still fits.
	require.NoError(t, e.ChargeBytes(10))
}

func TestConcurrentCharging(t *testing.T) {
	e := New(Config{MaxToolCalls: 1000, MaxOutputBytes: 50})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.ChargeBytes(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), e.Usage().OutputBytes, "never exceeds ceiling under contention")
}

func TestRateLimiter(t *testing.T) {
	e := New(Config{MaxToolCalls: 100, MaxOutputBytes: 1024, CallsPerSecond: 1, Burst: 1})

	require.NoError(t, e.ChargeCall())
	err := e.ChargeCall()
	assert.Equal(t, fault.CodeBudgetExceeded, fault.CodeOf(err))
}

func TestRemaining(t *testing.T) {
	e := New(Config{MaxToolCalls: 3, MaxOutputBytes: 1024})
	require.NoError(t, e.ChargeCall())
	assert.Equal(t, 2, e.Remaining())
}
