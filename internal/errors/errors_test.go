package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportErrorMessage(t *testing.T) {
	err := &TransportError{
		Operation:        "list members of acme/insiders",
		StatusCode:       404,
		Message:          "Not Found",
		DocumentationURL: "https://docs.github.com/rest",
	}

	assert.Equal(t, "list members of acme/insiders failed with status 404: Not Found (see https://docs.github.com/rest)", err.Error())
	assert.True(t, IsTransport(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsMutation(err))
}

func TestMutationErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *MutationError
		want string
	}{
		{
			name: "grant with provider message",
			err: &MutationError{
				Action:           "grant",
				Handle:           "alice",
				Target:           "acme/insiders",
				StatusCode:       422,
				Message:          "Validation Failed",
				DocumentationURL: "https://docs.github.com/x",
			},
			want: "couldn't add @alice to acme/insiders team: status 422: Validation Failed. See https://docs.github.com/x",
		},
		{
			name: "revoke with wrapped cause",
			err: &MutationError{
				Action: "revoke",
				Handle: "carol",
				Target: "acme/insiders",
				Err:    errors.New("connection reset"),
			},
			want: "couldn't remove @carol from acme/insiders team: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.True(t, IsMutation(tt.err))
		})
	}
}

func TestAppErrorHelpers(t *testing.T) {
	cause := errors.New("boom")
	rl := NewRateLimitedError("secondary rate limit", cause)

	assert.True(t, IsRateLimited(fmt.Errorf("ctx: %w", rl)))
	assert.ErrorIs(t, rl, cause)
	assert.True(t, IsNotFound(NewNotFoundError("run abc")))
	assert.False(t, IsNotFound(NewInternalError("db", cause)))
	assert.Equal(t, "BAD_REQUEST: bad limit", NewBadRequestError("bad limit").Error())
}
