package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

// ContainerInspector is the subset of the Docker SDK client used to resolve
// a container. *client.Client satisfies it.
type ContainerInspector interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// Target is a running container resolved to an attachable host process.
type Target struct {
	ID   string
	Name string
	PID  int
}

// ResolveContainer finds the host PID of the main process of the container
// identified by ref (ID, ID prefix or name).
//
// The daemon reports the PID in the host's pid namespace, which is the one
// the attach provider works in. An unknown container or one that is not
// running is an invalid-input CLIError; a daemon failure maps to
// ExitDockerNotRunning.
func ResolveContainer(ctx context.Context, inspector ContainerInspector, ref string) (Target, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "/")
	if ref == "" {
		return Target{}, model.NewCLIError(model.ExitInvalidInput, "container reference must not be empty")
	}

	info, err := inspector.ContainerInspect(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Target{}, model.WrapCLIError(
				model.ExitInvalidInput,
				fmt.Sprintf("container %q not found", ref),
				err,
			)
		}
		return Target{}, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect container %q", ref),
			err,
		)
	}

	pid, err := pidFromInspect(ref, info)
	if err != nil {
		return Target{}, err
	}
	return Target{ID: info.ID, Name: containerName(info), PID: pid}, nil
}

// pidFromInspect extracts the main process PID from an inspect result.
func pidFromInspect(ref string, info container.InspectResponse) (int, error) {
	if info.ContainerJSONBase == nil || info.State == nil {
		return 0, model.NewCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("container %q: daemon returned no state", ref),
		)
	}

	state := info.State
	if !state.Running || state.Pid <= 0 {
		status := string(state.Status)
		if status == "" {
			status = "not running"
		}
		return 0, model.NewCLIError(
			model.ExitInvalidInput,
			fmt.Sprintf("container %q is %s", ref, status),
		)
	}
	if state.Paused {
		return 0, model.NewCLIError(
			model.ExitInvalidInput,
			fmt.Sprintf("container %q is paused and cannot answer an attach request", ref),
		)
	}
	return state.Pid, nil
}

// containerName returns the display name of an inspected container.
func containerName(info container.InspectResponse) string {
	if info.ContainerJSONBase == nil {
		return ""
	}
	return strings.TrimPrefix(info.Name, "/")
}
