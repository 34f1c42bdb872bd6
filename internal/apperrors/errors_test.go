package apperrors

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
		{"not found", NotFound("submission", "sub-1"), ErrCodeNotFound},
		{"forbidden", Forbidden("not a reviewer"), ErrCodeForbidden},
		{"invalid transition", InvalidTransition("submission is terminal"), ErrCodeInvalidTransition},
		{"conflict", Conflict("version mismatch"), ErrCodeConflict},
		{"invalid input", InvalidInput("reason", "required"), ErrCodeInvalidInput},
		{"uncoded", errors.New("boom"), ErrCodeInternal},
		{"wrapped in fmt", fmt.Errorf("outer: %w", Conflict("lost the race")), ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("pq: connection reset")
	err := Wrap(cause, ErrCodeInternal, "failed to append review entry")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to append review entry")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsMatchesOnCode(t *testing.T) {
	err := fmt.Errorf("apply decision: %w", Conflict("submission changed underfoot"))
	assert.True(t, errors.Is(err, New(ErrCodeConflict, "")))
	assert.False(t, errors.Is(err, New(ErrCodeNotFound, "")))
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NotFound("flow", "f-1"), ErrCodeNotFound))
	assert.False(t, HasCode(nil, ErrCodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeNotFound))
}
