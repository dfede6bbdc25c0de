package attach

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

// Target system properties read during validation.
const (
	propSpecVersion = "java.specification.version"
	propJavaHome    = "java.home"
)

// State is a step of the attach sequence.
//
// Detached is recorded whenever an open handle was released, so it can
// follow Failed: Attached -> Failed -> Detached means the injection failed
// and the handle was still released.
type State string

const (
	StateIdle     State = "idle"
	StateLocated  State = "located"
	StateAttached State = "attached"
	StateInjected State = "injected"
	StateDetached State = "detached"
	StateFailed   State = "failed"
)

// String returns the string representation of State.
func (s State) String() string {
	return string(s)
}

// Provider enumerates attachable processes and opens handles to them.
type Provider interface {
	List(ctx context.Context) ([]model.Descriptor, error)
	AttachDescriptor(ctx context.Context, d model.Descriptor) (VirtualMachine, error)
	AttachPID(ctx context.Context, pid int) (VirtualMachine, error)
}

// VirtualMachine is an open attachment handle. Detach must be called exactly
// once by whoever obtained it.
type VirtualMachine interface {
	ID() string
	SystemProperties(ctx context.Context) (map[string]string, error)
	LoadAgent(ctx context.Context, agentPath, options string) error
	Detach() error
}

// LocalRuntime describes the Java runtime the launcher ships with.
// An empty SpecificationVersion skips the compatibility check.
type LocalRuntime interface {
	SpecificationVersion() string
	Home() string
}

// Orchestrator runs a single attach sequence. It is not safe for concurrent
// use and is not reusable: create one per target.
type Orchestrator struct {
	provider Provider
	local    LocalRuntime
	logger   *slog.Logger

	transitions []State
}

// NewOrchestrator creates an Orchestrator. A nil logger discards output.
func NewOrchestrator(provider Provider, local LocalRuntime, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		provider:    provider,
		local:       local,
		logger:      logger,
		transitions: []State{StateIdle},
	}
}

// State returns the current state of the sequence.
func (o *Orchestrator) State() State {
	return o.transitions[len(o.transitions)-1]
}

// Transitions returns every state visited so far, in order.
func (o *Orchestrator) Transitions() []State {
	out := make([]State, len(o.transitions))
	copy(out, o.transitions)
	return out
}

func (o *Orchestrator) enter(s State) {
	o.transitions = append(o.transitions, s)
	o.logger.Debug("attach state", "state", s)
}

// Run attaches to cfg.PID and injects cfg.AgentPath.
//
// cfg.AgentPath and cfg.CorePath are rewritten to their encoded form before
// the injection; the agent itself is loaded from the original, unencoded
// agent path. The handle is detached on every path once it was opened.
//
// Sequence:
//  1. Validate the Configuration (no state beyond Idle is entered on error)
//  2. Locate the target descriptor among the visible JVMs
//  3. Attach by descriptor, or by PID when no descriptor matched
//  4. Compare Java specification versions (warning only)
//  5. Encode the artifact paths and load the agent
//  6. Detach (deferred, runs on every path after step 3)
func (o *Orchestrator) Run(ctx context.Context, cfg *model.Configuration) (err error) {
	// Step 1: reject an incomplete Configuration before touching the target.
	if err := cfg.Validate(); err != nil {
		o.enter(StateFailed)
		return err
	}

	// Step 2: a missing descriptor is not fatal. The PID may still be
	// attachable, for example when hsperfdata is disabled in the target.
	descriptor, found := o.locate(ctx, cfg.PID)
	o.enter(StateLocated)

	// Step 3: open the handle. Nothing needs releasing if this fails.
	vm, err := o.attach(ctx, cfg.PID, descriptor, found)
	if err != nil {
		o.enter(StateFailed)
		return &model.AttachError{PID: cfg.PID, Err: err}
	}
	o.enter(StateAttached)

	// From here on the handle is released on every path. A failed
	// injection records Failed first and then Detached once the release
	// went through; a failed release leaves the sequence at Failed.
	defer func() {
		if err != nil {
			o.enter(StateFailed)
		}
		detachErr := vm.Detach()
		if detachErr == nil {
			o.enter(StateDetached)
			return
		}
		o.logger.Warn("detach failed", "pid", cfg.PID, "err", detachErr)
		if err == nil {
			err = &model.AttachError{PID: cfg.PID, Err: detachErr}
			o.enter(StateFailed)
		}
	}()

	// Step 4: a version mismatch is reported but does not stop the attach.
	o.validate(ctx, vm)

	// Step 5: the agent is loaded from the raw path; the argument string
	// carries the encoded paths so ';' and spaces cannot split it.
	agentPath := cfg.AgentPath
	cfg.AgentPath = EncodeArg(cfg.AgentPath)
	cfg.CorePath = EncodeArg(cfg.CorePath)

	// LoadAgent blocks until the agent's bootstrap code has returned inside
	// the target, so bootstrap failures surface here.
	if err := vm.LoadAgent(ctx, agentPath, model.AgentArgument(cfg.CorePath, cfg)); err != nil {
		return &model.InjectionError{PID: cfg.PID, Err: err}
	}
	o.enter(StateInjected)
	o.logger.Info("agent injected", "pid", cfg.PID, "agent", agentPath)
	return nil
}

// locate looks for a descriptor whose ID matches pid. Enumeration is
// best-effort: errors are logged and treated as "no match".
func (o *Orchestrator) locate(ctx context.Context, pid int) (model.Descriptor, bool) {
	descriptors, err := o.provider.List(ctx)
	if err != nil {
		o.logger.Debug("process enumeration failed", "err", err)
		return model.Descriptor{}, false
	}
	want := strconv.Itoa(pid)
	for _, d := range descriptors {
		if d.ID == want {
			return d, true
		}
	}
	o.logger.Debug("no descriptor matches target, attaching by pid", "pid", pid, "visible", len(descriptors))
	return model.Descriptor{}, false
}

func (o *Orchestrator) attach(ctx context.Context, pid int, d model.Descriptor, found bool) (VirtualMachine, error) {
	var (
		vm  VirtualMachine
		err error
	)
	if found {
		vm, err = o.provider.AttachDescriptor(ctx, d)
	} else {
		vm, err = o.provider.AttachPID(ctx, pid)
	}
	if err == nil && vm == nil {
		err = errors.New("provider returned no handle")
	}
	return vm, err
}

// validate compares the target and local specification versions. A
// mismatch is reported as a warning only.
func (o *Orchestrator) validate(ctx context.Context, vm VirtualMachine) {
	if o.local == nil {
		return
	}
	props, err := vm.SystemProperties(ctx)
	if err != nil {
		o.logger.Warn("could not read target system properties", "target", vm.ID(), "err", err)
		return
	}
	targetVersion := props[propSpecVersion]
	localVersion := o.local.SpecificationVersion()
	if targetVersion == "" || localVersion == "" || targetVersion == localVersion {
		return
	}
	o.logger.Warn("java version mismatch, attach may fail",
		"local_version", localVersion, "target_version", targetVersion)
	o.logger.Warn("try to set the same JAVA_HOME",
		"target_java_home", props[propJavaHome], "local_java_home", o.local.Home())
}
