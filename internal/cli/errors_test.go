package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

func TestToCLIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExitCode
	}{
		{
			name: "port exhausted",
			err:  &model.PortExhaustedError{Min: 1024, Max: 1024, Attempts: 1},
			want: model.ExitPortAllocationFailed,
		},
		{
			name: "invalid range",
			err:  fmt.Errorf("[9, 1]: %w", model.ErrInvalidPortRange),
			want: model.ExitInvalidInput,
		},
		{
			name: "attach failed",
			err:  &model.AttachError{PID: 1, Err: errors.New("no such process 1")},
			want: model.ExitAttachFailed,
		},
		{
			name: "injection failed",
			err:  &model.InjectionError{PID: 1, Err: errors.New("rejected")},
			want: model.ExitInjectionFailed,
		},
		{
			name: "cli error passes through",
			err:  model.NewCLIError(model.ExitDockerNotRunning, "Docker daemon is not responding"),
			want: model.ExitDockerNotRunning,
		},
		{
			name: "wrapped cli error",
			err:  fmt.Errorf("resolve: %w", model.NewCLIError(model.ExitInvalidInput, "bad")),
			want: model.ExitInvalidInput,
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: model.ExitGeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toCLIError(tt.err)
			assert.Equal(t, tt.want, got.Code)
			// The original error stays reachable in one direction or the other.
			assert.True(t, errors.Is(got, tt.err) || errors.Is(tt.err, got))
		})
	}
}
