package sandbox

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

func testRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	return NewRunner(cfg, nil)
}

func TestRunOK(t *testing.T) {
	r := testRunner(t, Config{})

	res, err := r.Run(context.Background(), "print(6 * 7)", StrictProfile())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "42\n", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestRunPredeclaredModules(t *testing.T) {
	r := testRunner(t, Config{})

	res, err := r.Run(context.Background(),
		"print(math.sqrt(16))\nprint(json.encode({\"k\": 1}))", StrictProfile())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Contains(t, res.Stdout, "4")
	assert.Contains(t, res.Stdout, `{"k":1}`)
}

func TestRunConcurrentRunsDoNotShareHeapBlame(t *testing.T) {
	// A tight per-run memory ceiling with two allocation-heavy runs in
	// flight: each allocates under the ceiling, so neither may be killed
	// for the other's heap growth.
	r := testRunner(t, Config{MaxMemoryBytes: 64 << 20})
	code := "x = list(range(100000))\nprint(len(x))"

	var wg sync.WaitGroup
	errs := make([]error, 4)
	results := make([]*Result, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Run(context.Background(), code, StrictProfile())
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "run %d", i)
		assert.Equal(t, "ok", results[i].Status, "run %d", i)
		assert.Equal(t, "100000\n", results[i].Stdout, "run %d", i)
	}
}

func TestRunGuestError(t *testing.T) {
	r := testRunner(t, Config{})

	res, err := r.Run(context.Background(), `fail("deliberate")`, StrictProfile())
	require.NoError(t, err, "guest failure is a completed run, not a gateway fault")
	assert.Equal(t, "error", res.Status)
	assert.Contains(t, res.Stderr, "deliberate")
}

func TestRunCodeTooLarge(t *testing.T) {
	r := testRunner(t, Config{MaxCodeBytes: 64})

	_, err := r.Run(context.Background(), "x = \""+strings.Repeat("a", 100)+"\"", StrictProfile())
	assert.Equal(t, fault.CodeCodeTooLarge, fault.CodeOf(err))
}

func TestRunViolationProducesNoOutput(t *testing.T) {
	r := testRunner(t, Config{})

	// The print would run first if execution were attempted; static
	// rejection must win.
	res, err := r.Run(context.Background(), "print(\"leaked\")\nopen(\"/etc/passwd\")", StrictProfile())
	assert.Equal(t, fault.CodeSandboxViolation, fault.CodeOf(err))
	assert.Nil(t, res)
}

func TestRunWallClockTimeout(t *testing.T) {
	r := testRunner(t, Config{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := r.Run(context.Background(),
		"x = 0\nfor i in range(1000000000):\n    x += i", StrictProfile())
	assert.Equal(t, fault.CodeSandboxTimeout, fault.CodeOf(err))
	assert.Less(t, time.Since(start), 5*time.Second, "worker is hard-terminated, not run to completion")
}

func TestRunStepCeiling(t *testing.T) {
	r := testRunner(t, Config{MaxSteps: 1000})

	_, err := r.Run(context.Background(),
		"x = 0\nfor i in range(1000000):\n    x += i", StrictProfile())
	assert.Equal(t, fault.CodeSandboxTimeout, fault.CodeOf(err))
}

func TestRunOutputCeiling(t *testing.T) {
	r := testRunner(t, Config{MaxStdoutBytes: 128})

	_, err := r.Run(context.Background(),
		"for i in range(10000):\n    print(\"xxxxxxxxxxxxxxxx\")", StrictProfile())
	assert.Equal(t, fault.CodeSandboxOOM, fault.CodeOf(err))
}

func TestRunContextCancel(t *testing.T) {
	r := testRunner(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, "x = 0\nfor i in range(1000000000):\n    x += i", StrictProfile())
	assert.Equal(t, fault.CodeSandboxTimeout, fault.CodeOf(err))
}

func TestValidateOnly(t *testing.T) {
	r := testRunner(t, Config{})

	assert.NoError(t, r.Validate("x = 1", StrictProfile()))
	assert.Equal(t, fault.CodeSandboxViolation,
		fault.CodeOf(r.Validate("open(\"f\")", StrictProfile())))
}
