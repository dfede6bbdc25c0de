// Package cli (attach.go) implements the "diag-attach attach" command.
//
// Orchestration steps:
//  1. Load launcher defaults and merge explicit flags over them
//  2. Resolve the target PID (directly or from a Docker container)
//  3. Check who owns the telnet port; stop early if the target does
//  4. Optionally move busy default ports to free ones (--auto-ports)
//  5. Attach, inject the agent and detach
//  6. Report the attach to the stats endpoint (best-effort)
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/diag-attach/internal/attach"
	"github.com/shinji-kodama/diag-attach/internal/config"
	"github.com/shinji-kodama/diag-attach/internal/docker"
	"github.com/shinji-kodama/diag-attach/internal/model"
	"github.com/shinji-kodama/diag-attach/internal/port"
	"github.com/shinji-kodama/diag-attach/internal/shell"
	"github.com/shinji-kodama/diag-attach/internal/stats"
)

// attachFlags holds the flag values for the attach command.
type attachFlags struct {
	pid            int
	container      string
	agentPath      string
	corePath       string
	targetIP       string
	telnetPort     int
	httpPort       int
	sessionTimeout int
	username       string
	password       string
	tunnelServer   string
	agentID        string
	appName        string
	statURL        string
	autoPorts      bool
	attachTimeout  time.Duration
	dryRun         bool
}

// NewAttachCommand creates the "attach" cobra command.
func NewAttachCommand() *cobra.Command {
	flags := &attachFlags{}

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach the diagnostic agent to a running JVM",
		Long: `Attach to a running JVM and load the diagnostic agent into it.

The target is given by --pid, or by --container for a JVM running as the
main process of a Docker container. Values not given on the command line
come from the launcher defaults.

Examples:
  diag-attach attach --pid 4242 --agent /opt/diag/agent.jar --core /opt/diag/core.jar
  diag-attach attach --container orders-api --auto-ports
  diag-attach attach --pid 4242 --dry-run`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context(), flags, cmd.Flags().Changed)
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.pid, "pid", 0, "Target Java process ID")
	f.StringVar(&flags.container, "container", "", "Docker container (ID or name) whose main process is the target JVM")
	f.StringVar(&flags.agentPath, "agent", "", "Agent artifact to load")
	f.StringVar(&flags.corePath, "core", "", "Core artifact the agent bootstraps")
	f.StringVar(&flags.targetIP, "target-ip", "", "Address the diagnostic service binds to (default from config: 127.0.0.1)")
	f.IntVar(&flags.telnetPort, "telnet-port", 0, "Telnet listener port of the diagnostic service")
	f.IntVar(&flags.httpPort, "http-port", 0, "HTTP listener port of the diagnostic service")
	f.IntVar(&flags.sessionTimeout, "session-timeout", 0, "Idle session timeout in seconds")
	f.StringVar(&flags.username, "username", "", "Diagnostic service username")
	f.StringVar(&flags.password, "password", "", "Diagnostic service password")
	f.StringVar(&flags.tunnelServer, "tunnel-server", "", "Tunnel server URL")
	f.StringVar(&flags.agentID, "agent-id", "", "Agent ID registered with the tunnel server")
	f.StringVar(&flags.appName, "app-name", "", "Application name")
	f.StringVar(&flags.statURL, "stat-url", "", "Endpoint receiving a report after a successful attach")
	f.BoolVar(&flags.autoPorts, "auto-ports", false, "Pick free ports when the configured ones are busy")
	f.DurationVar(&flags.attachTimeout, "attach-timeout", 0, "How long to wait for the JVM attach listener (default from config: 6s)")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Print the agent argument without attaching")

	cmd.MarkFlagsMutuallyExclusive("pid", "container")

	return cmd
}

// attachResult is the JSON output of a finished attach.
type attachResult struct {
	Status     string `json:"status"`
	Session    string `json:"session"`
	PID        int    `json:"pid"`
	TargetIP   string `json:"targetIp"`
	TelnetPort int    `json:"telnetPort,omitempty"`
	HTTPPort   int    `json:"httpPort,omitempty"`
	Argument   string `json:"argument,omitempty"`
}

func runAttach(ctx context.Context, flags *attachFlags, changed func(string) bool) error {
	defaults, _, err := loadDefaults()
	if err != nil {
		return err
	}

	if flags.container != "" {
		pid, err := resolveContainerPID(ctx, flags.container)
		if err != nil {
			return err
		}
		flags.pid = pid
	}
	if flags.pid <= 0 {
		return model.NewCLIError(model.ExitInvalidInput, "a target is required: set --pid or --container")
	}

	cfg := buildConfiguration(defaults, flags, changed)

	session := uuid.New()
	log := logger.With("session", session.String(), "pid", cfg.PID)

	if err := cfg.Validate(); err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "invalid attach configuration", err)
	}

	if flags.dryRun {
		return printDryRun(session, cfg)
	}

	lookup := port.NewDefaultListenerLookup(shell.NewExecRunner(), log)
	attached, err := checkTelnetPort(ctx, lookup, cfg, flags.autoPorts && !changed("telnet-port"))
	if err != nil {
		return err
	}
	if attached {
		log.Info("target already serves the diagnostic telnet port", "port", cfg.TelnetPort)
		return printAttachResult("already-attached", session, cfg)
	}

	if flags.autoPorts {
		resolver := port.NewDefaultResolver(log)
		if err := assignFreePorts(port.NewScanner(), resolver, cfg, defaults, changed); err != nil {
			return err
		}
	}

	timeout, err := attachTimeout(defaults, flags, changed)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "invalid attach timeout", err)
	}
	provider := attach.NewHotSpotProvider(log)
	provider.AttachTimeout = timeout

	o := attach.NewOrchestrator(provider, attach.NewJavaHomeRuntime(), log)
	VerboseLog("Attaching to process %d", cfg.PID)
	if err := o.Run(ctx, cfg); err != nil {
		log.Debug("attach sequence ended", "transitions", o.Transitions())
		return err
	}

	if cfg.StatURL != "" {
		sendReport(ctx, log, session, cfg)
	}
	return printAttachResult("attached", session, cfg)
}

func resolveContainerPID(ctx context.Context, ref string) (int, error) {
	cli, err := docker.NewClient()
	if err != nil {
		return 0, err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return 0, err
	}
	target, err := docker.ResolveContainer(ctx, cli.Inner(), ref)
	if err != nil {
		return 0, err
	}
	VerboseLog("Container %s (%s) runs as host process %d", target.Name, target.ID, target.PID)
	return target.PID, nil
}

// buildConfiguration merges the launcher defaults with the flags that were
// set explicitly on the command line.
func buildConfiguration(defaults *config.Config, flags *attachFlags, changed func(string) bool) *model.Configuration {
	cfg := &model.Configuration{
		PID:            flags.pid,
		AgentPath:      defaults.AgentPath,
		CorePath:       defaults.CorePath,
		TargetIP:       defaults.TargetIP,
		TelnetPort:     defaults.TelnetPort,
		HTTPPort:       defaults.HTTPPort,
		SessionTimeout: defaults.SessionTimeout,
		Username:       defaults.Username,
		Password:       defaults.Password,
		TunnelServer:   defaults.TunnelServer,
		AgentID:        defaults.AgentID,
		AppName:        defaults.AppName,
		StatURL:        defaults.StatURL,
	}

	overrideString := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	overrideInt := func(name string, dst *int, v int) {
		if changed(name) {
			*dst = v
		}
	}
	overrideString("agent", &cfg.AgentPath, flags.agentPath)
	overrideString("core", &cfg.CorePath, flags.corePath)
	overrideString("target-ip", &cfg.TargetIP, flags.targetIP)
	overrideInt("telnet-port", &cfg.TelnetPort, flags.telnetPort)
	overrideInt("http-port", &cfg.HTTPPort, flags.httpPort)
	overrideInt("session-timeout", &cfg.SessionTimeout, flags.sessionTimeout)
	overrideString("username", &cfg.Username, flags.username)
	overrideString("password", &cfg.Password, flags.password)
	overrideString("tunnel-server", &cfg.TunnelServer, flags.tunnelServer)
	overrideString("agent-id", &cfg.AgentID, flags.agentID)
	overrideString("app-name", &cfg.AppName, flags.appName)
	overrideString("stat-url", &cfg.StatURL, flags.statURL)

	if cfg.TargetIP == "" {
		cfg.TargetIP = model.DefaultTargetIP
	}
	return cfg
}

// checkTelnetPort reports whether the target already listens on the
// configured telnet port, which means an earlier attach is still serving.
// A port held by another process is an error unless it may be reassigned.
func checkTelnetPort(ctx context.Context, lookup port.ListenerLookup, cfg *model.Configuration, reassignable bool) (bool, error) {
	if cfg.TelnetPort == 0 {
		return false, nil
	}
	owner, found := lookup.LookupListener(ctx, cfg.TelnetPort)
	switch {
	case !found:
		return false, nil
	case owner == cfg.PID:
		return true, nil
	case reassignable:
		return false, nil
	default:
		return false, model.NewCLIError(model.ExitPortAllocationFailed, fmt.Sprintf(
			"telnet port %d is used by process %d, not the target %d; choose another --telnet-port or use --auto-ports",
			cfg.TelnetPort, owner, cfg.PID))
	}
}

// assignFreePorts replaces busy listener ports that were not set on the
// command line with random free ones from the configured range.
func assignFreePorts(checker port.Checker, resolver *port.Resolver, cfg *model.Configuration, defaults *config.Config, changed func(string) bool) error {
	reassign := func(name string, p *int) error {
		if changed(name) || *p == 0 || checker.IsPortAvailable(*p) {
			return nil
		}
		free, err := resolver.FindAvailablePort(defaults.PortRangeMin, defaults.PortRangeMax)
		if err != nil {
			return err
		}
		VerboseLog("Port %d is busy, using %d for %s", *p, free, name)
		*p = free
		return nil
	}
	if err := reassign("telnet-port", &cfg.TelnetPort); err != nil {
		return err
	}
	return reassign("http-port", &cfg.HTTPPort)
}

func attachTimeout(defaults *config.Config, flags *attachFlags, changed func(string) bool) (time.Duration, error) {
	if changed("attach-timeout") {
		if flags.attachTimeout < 0 {
			return 0, fmt.Errorf("must not be negative, got %s", flags.attachTimeout)
		}
		return flags.attachTimeout, nil
	}
	return defaults.AttachTimeoutDuration()
}

func sendReport(ctx context.Context, log *slog.Logger, session uuid.UUID, cfg *model.Configuration) {
	err := stats.NewReporter(cfg.StatURL, log).Send(ctx, stats.Report{
		SessionID: session,
		TargetIP:  cfg.TargetIP,
		PID:       cfg.PID,
		Version:   Version,
		AgentID:   cfg.AgentID,
		AppName:   cfg.AppName,
	})
	if err != nil {
		log.Warn("stats report failed", "url", cfg.StatURL, "err", err)
	}
}

// dryRunArgument is the argument the target would receive.
func dryRunArgument(cfg *model.Configuration) string {
	encoded := *cfg
	encoded.AgentPath = attach.EncodeArg(cfg.AgentPath)
	encoded.CorePath = attach.EncodeArg(cfg.CorePath)
	return model.AgentArgument(encoded.CorePath, &encoded)
}

func printDryRun(session uuid.UUID, cfg *model.Configuration) error {
	arg := dryRunArgument(cfg)
	if IsJSONOutput() {
		printJSON(attachResult{
			Status:     "dry-run",
			Session:    session.String(),
			PID:        cfg.PID,
			TargetIP:   cfg.TargetIP,
			TelnetPort: cfg.TelnetPort,
			HTTPPort:   cfg.HTTPPort,
			Argument:   arg,
		})
		return nil
	}
	fmt.Printf("Agent:    %s\n", cfg.AgentPath)
	fmt.Printf("Argument: %s\n", arg)
	return nil
}

func printAttachResult(status string, session uuid.UUID, cfg *model.Configuration) error {
	if IsJSONOutput() {
		printJSON(attachResult{
			Status:     status,
			Session:    session.String(),
			PID:        cfg.PID,
			TargetIP:   cfg.TargetIP,
			TelnetPort: cfg.TelnetPort,
			HTTPPort:   cfg.HTTPPort,
		})
		return nil
	}

	if status == "already-attached" {
		fmt.Printf("Process %d is already attached; the diagnostic service listens on %s:%d.\n",
			cfg.PID, cfg.TargetIP, cfg.TelnetPort)
		return nil
	}
	fmt.Printf("Attach process %d success.\n", cfg.PID)
	if cfg.TelnetPort != 0 {
		fmt.Printf("  telnet %s %d\n", cfg.TargetIP, cfg.TelnetPort)
	}
	if cfg.HTTPPort != 0 {
		fmt.Printf("  http://%s:%d\n", cfg.TargetIP, cfg.HTTPPort)
	}
	return nil
}
