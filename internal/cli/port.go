// Package cli (port.go) implements the "diag-attach port" command group:
// finding a free port, checking one, and naming the process listening on it.
package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/diag-attach/internal/model"
	"github.com/shinji-kodama/diag-attach/internal/port"
	"github.com/shinji-kodama/diag-attach/internal/shell"
)

// NewPortCommand creates the "port" command group.
func NewPortCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "port",
		Short: "Inspect local TCP ports",
	}
	cmd.AddCommand(newPortFindCommand())
	cmd.AddCommand(newPortCheckCommand())
	cmd.AddCommand(newPortWhoCommand())
	cmd.AddCommand(newPortUsedCommand())
	return cmd
}

type portFindFlags struct {
	min int
	max int
}

func newPortFindCommand() *cobra.Command {
	flags := &portFindFlags{}
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Print a random free TCP port",
		Long: `Print a random TCP port that is free on the loopback interface.

The range defaults to the port-range-min and port-range-max launcher
defaults (1024-65535).

Examples:
  diag-attach port find
  diag-attach port find --min 30000 --max 31000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortFind(flags, cmd.Flags().Changed)
		},
	}
	cmd.Flags().IntVar(&flags.min, "min", 0, "Lowest candidate port")
	cmd.Flags().IntVar(&flags.max, "max", 0, "Highest candidate port")
	return cmd
}

func runPortFind(flags *portFindFlags, changed func(string) bool) error {
	defaults, _, err := loadDefaults()
	if err != nil {
		return err
	}
	minPort, maxPort := defaults.PortRangeMin, defaults.PortRangeMax
	if changed("min") {
		minPort = flags.min
	}
	if changed("max") {
		maxPort = flags.max
	}

	p, err := port.NewDefaultResolver(logger).FindAvailablePort(minPort, maxPort)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		printJSON(map[string]int{"port": p})
	} else {
		fmt.Println(p)
	}
	return nil
}

func newPortCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <port>",
		Short: "Report whether a TCP port is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePortArg(args[0])
			if err != nil {
				return err
			}
			available := port.NewScanner().IsPortAvailable(p)
			if IsJSONOutput() {
				printJSON(map[string]interface{}{"port": p, "available": available})
				return nil
			}
			if available {
				fmt.Printf("Port %d is free.\n", p)
			} else {
				fmt.Printf("Port %d is in use.\n", p)
			}
			return nil
		},
	}
}

func newPortWhoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "who <port>",
		Short: "Print the PID of the process listening on a TCP port",
		Long: `Print the PID of the process listening on a TCP port.

The lookup uses lsof (Linux, macOS) or netstat (Windows) and falls back to
the OS socket table. A port nobody listens on is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePortArg(args[0])
			if err != nil {
				return err
			}
			lookup := port.NewDefaultListenerLookup(shell.NewExecRunner(), logger)
			return runPortWho(cmd.Context(), lookup, p)
		},
	}
}

func runPortWho(ctx context.Context, lookup port.ListenerLookup, p int) error {
	pid, found := lookup.LookupListener(ctx, p)
	if IsJSONOutput() {
		result := map[string]interface{}{"port": p, "found": found}
		if found {
			result["pid"] = pid
		}
		printJSON(result)
		return nil
	}
	if !found {
		fmt.Printf("No process is listening on port %d.\n", p)
		return nil
	}
	fmt.Println(pid)
	return nil
}

func newPortUsedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "used <start> <end>",
		Short: "List the TCP ports in a range that cannot be bound",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parsePortArg(args[0])
			if err != nil {
				return err
			}
			end, err := parsePortArg(args[1])
			if err != nil {
				return err
			}
			if start > end {
				return model.NewCLIError(model.ExitInvalidInput,
					fmt.Sprintf("start port %d is greater than end port %d", start, end))
			}
			used := port.NewScanner().GetUsedPorts(start, end)
			if IsJSONOutput() {
				printJSON(map[string]interface{}{"used": append(make([]int, 0, len(used)), used...)})
				return nil
			}
			for _, p := range used {
				fmt.Println(p)
			}
			return nil
		},
	}
}

// parsePortArg parses a positional port argument.
func parsePortArg(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, model.NewCLIError(model.ExitInvalidInput,
			fmt.Sprintf("invalid port %q: must be an integer in 1-65535", s))
	}
	return p, nil
}
