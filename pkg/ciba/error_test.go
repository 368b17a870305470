package ciba

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "only type",
			err:  ErrSlowDown(),
			want: "ErrorType=slow_down",
		},
		{
			name: "with description",
			err:  ErrInvalidGrant().WithDescription("auth_req_id %s unknown", "x"),
			want: "ErrorType=invalid_grant Description=auth_req_id x unknown",
		},
		{
			name: "with parent",
			err:  ErrServerError().WithParent(io.ErrClosedPipe),
			want: "ErrorType=server_error Parent=io: read/write on closed pipe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	err := ErrAuthorizationPending().WithDescription("user has not yet responded")
	assert.True(t, errors.Is(err, ErrAuthorizationPending()))
	assert.False(t, errors.Is(err, ErrSlowDown()))
	assert.False(t, errors.Is(err, io.EOF))
}

func TestError_Unwrap(t *testing.T) {
	parent := errors.New("downstream unreachable")
	err := ErrServerError().WithParent(parent)
	assert.ErrorIs(t, err, parent)
}

func TestError_IsPollingOutcome(t *testing.T) {
	assert.True(t, ErrAuthorizationPending().IsPollingOutcome())
	assert.True(t, ErrSlowDown().IsPollingOutcome())
	assert.True(t, ErrExpiredToken().IsPollingOutcome())
	assert.True(t, ErrAccessDenied().IsPollingOutcome())
	assert.False(t, ErrInvalidGrant().IsPollingOutcome())
	assert.False(t, ErrServerError().IsPollingOutcome())
}

func TestDefaultToServerError(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		err := errors.New("boom")
		got := DefaultToServerError(err, "description")
		assert.Equal(t, ServerError, got.ErrorType)
		assert.Equal(t, "description", got.Description)
		assert.ErrorIs(t, got, err)
	})
	t.Run("ciba error passes through", func(t *testing.T) {
		err := ErrExpiredToken().WithDescription("transaction expired")
		got := DefaultToServerError(err, "description")
		assert.Equal(t, err, got)
	})
}
