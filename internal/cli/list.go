// Package cli (list.go) implements the "diag-attach list" command.
//
// The list command shows the JVMs the current user can attach to, found
// through their hsperfdata files and the process table. Output is a text
// table or a JSON array, depending on the --json flag.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/diag-attach/internal/attach"
	"github.com/shinji-kodama/diag-attach/internal/model"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// filter keeps only descriptors whose display name contains it.
	filter string
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attachable Java processes",
		Long: `List the Java processes visible to the current user.

Each process is shown with its PID, how it was discovered, and its main
class or jar when known.

Examples:
  diag-attach list
  diag-attach list --filter orders
  diag-attach list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.filter, "filter", "", "Only show processes whose name contains this text")

	return cmd
}

func runList(ctx context.Context, flags *listFlags) error {
	provider := attach.NewHotSpotProvider(logger)
	descriptors, err := provider.List(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to enumerate Java processes", err)
	}
	VerboseLog("Found %d Java processes", len(descriptors))

	descriptors = filterDescriptors(descriptors, flags.filter)
	printListResult(descriptors)
	return nil
}

// filterDescriptors keeps descriptors whose display name contains filter,
// ignoring case. An empty filter keeps everything.
func filterDescriptors(descriptors []model.Descriptor, filter string) []model.Descriptor {
	if filter == "" {
		return descriptors
	}
	needle := strings.ToLower(filter)
	out := make([]model.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if strings.Contains(strings.ToLower(d.DisplayName), needle) {
			out = append(out, d)
		}
	}
	return out
}

func printListResult(descriptors []model.Descriptor) {
	if IsJSONOutput() {
		printListResultJSON(descriptors)
	} else {
		printListResultText(descriptors)
	}
}

func printListResultJSON(descriptors []model.Descriptor) {
	type resultJSON struct {
		Processes []model.Descriptor `json:"processes"`
	}
	// An empty slice renders as [] rather than null.
	result := resultJSON{Processes: make([]model.Descriptor, 0, len(descriptors))}
	result.Processes = append(result.Processes, descriptors...)
	printJSON(result)
}

// printListResultText outputs the process list as an aligned table:
//
//	PID      SOURCE         NAME
//	4242     hsperfdata     com.example.orders.Main
//	5120     process-table  -
func printListResultText(descriptors []model.Descriptor) {
	if len(descriptors) == 0 {
		fmt.Println("No Java processes found.")
		return
	}

	fmt.Printf("%-8s %-14s %s\n", "PID", "SOURCE", "NAME")
	for _, d := range descriptors {
		fmt.Printf("%-8d %-14s %s\n", d.PID, d.Source, FormatDisplayName(d.DisplayName))
	}
}

// FormatDisplayName shortens a display name for the table. Jar paths are
// reduced to their file name; an unknown name is shown as "-".
//
// Example:
//
//	"/srv/app/orders-api.jar" → "orders-api.jar"
//	""                        → "-"
func FormatDisplayName(name string) string {
	if name == "" {
		return "-"
	}
	if strings.HasSuffix(name, ".jar") {
		if i := strings.LastIndexAny(name, `/\`); i >= 0 {
			return name[i+1:]
		}
	}
	return name
}
