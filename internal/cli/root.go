// Package cli implements the cobra-based CLI commands for diag-attach.
//
// Each subcommand (attach, list, port, config) is defined in its own file
// within this package. This file defines the root command that serves as
// the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/diag-attach/internal/config"
	"github.com/shinji-kodama/diag-attach/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command.
var (
	// jsonOutput switches command output and log records to JSON.
	jsonOutput bool

	// verbose enables debug-level logging on stderr.
	verbose bool

	// configPath overrides the launcher defaults file location.
	configPath string

	// logger is built from the global flags before any subcommand runs.
	logger = slog.New(slog.DiscardHandler)
)

// Version, Commit and Date are set at build time via ldflags.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action; it only provides
// help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "diag-attach",
		Short: "Attach a diagnostic agent to a running JVM",
		Long: `diag-attach locates a running Java process, opens a dynamic attach
channel to it and loads a diagnostic agent, handing it the listener ports,
credentials and tunnel settings of the diagnostic service.

Launcher defaults are read from ~/.config/diag-attach/config.yaml (or
--config, or $DIAG_ATTACH_CONFIG) and DIAG_ATTACH_* environment variables.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(os.Stderr, jsonOutput, verbose)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Launcher defaults file (default: ~/.config/diag-attach/config.yaml)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return model.WrapCLIError(model.ExitInvalidInput, "invalid flags", err)
	})

	rootCmd.AddCommand(NewAttachCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewPortCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// newLogger builds the structured logger for diagnostics on w. Command
// results go to stdout; logs never do.
func newLogger(w io.Writer, asJSON, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadDefaults reads the launcher defaults selected by --config.
func loadDefaults() (*config.Config, string, error) {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return nil, "", model.WrapCLIError(model.ExitGeneralError, "failed to locate launcher defaults", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, model.WrapCLIError(model.ExitInvalidInput, "invalid launcher defaults", err)
	}
	VerboseLog("Loaded launcher defaults from %s", path)
	return cfg, path, nil
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// Domain errors are mapped to CLIError by toCLIError; the CLIError's code
// becomes the process exit code.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		cliErr := toCLIError(err)
		printError(cliErr.Message, cliErr.Err)
		os.Exit(int(cliErr.Code))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// stdout is reserved for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// printJSON writes v as indented JSON on stdout.
func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
// It is meant for human-oriented progress notes; structured diagnostics
// go through the slog logger.
func VerboseLog(format string, args ...interface{}) {
	if verbose && !jsonOutput {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
