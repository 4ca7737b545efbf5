package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ruletoggle/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate ruletoggle configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and check for errors.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if errs := cfg.Validate(); len(errs) > 0 {
			fmt.Fprintf(out, "❌ Configuration validation failed (%s):\n", path)
			for _, e := range errs {
				fmt.Fprintf(out, "  - %v\n", e)
			}
			return fmt.Errorf("%d validation errors", len(errs))
		}

		fmt.Fprintf(out, "✅ Configuration is valid (%s)\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
