package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil error", nil, ""},
		{"direct fault", New(CodeRootEscape, "escaped"), CodeRootEscape},
		{"wrapped fault", fmt.Errorf("outer: %w", New(CodeStaleHandle, "changed")), CodeStaleHandle},
		{"plain error", errors.New("boom"), CodeInternal},
		{"wrap of cause", Wrap(CodeBudgetExceeded, errors.New("over")), CodeBudgetExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk gone")
	err := Wrap(CodePathNotFound, cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "PATH_NOT_FOUND")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeInternal, nil))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("tool failed: %w", New(CodeSandboxViolation, "import of os"))
	assert.True(t, HasCode(err, CodeSandboxViolation))
	assert.False(t, HasCode(err, CodeSandboxTimeout))
}
