// Package cli (config.go) implements the "diag-attach config" command group.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/diag-attach/internal/config"
	"github.com/shinji-kodama/diag-attach/internal/model"
)

// NewConfigCommand creates the "config" command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the launcher defaults",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective launcher defaults as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadDefaults()
			if err != nil {
				return err
			}
			if IsJSONOutput() {
				printJSON(map[string]interface{}{"path": path, "config": cfg.Masked()})
				return nil
			}
			fmt.Printf("# %s\n", path)
			if err := config.Dump(os.Stdout, cfg); err != nil {
				return model.WrapCLIError(model.ExitGeneralError, "failed to print launcher defaults", err)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the launcher defaults file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ResolvePath(configPath)
			if err != nil {
				return model.WrapCLIError(model.ExitGeneralError, "failed to locate launcher defaults", err)
			}
			fmt.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables that override the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := config.Usage()
			if err != nil {
				return model.WrapCLIError(model.ExitGeneralError, "failed to describe environment", err)
			}
			fmt.Println(usage)
			return nil
		},
	})

	return cmd
}
