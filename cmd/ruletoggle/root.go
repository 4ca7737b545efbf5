package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ruletoggle/internal/config"
)

const (
	defaultConfigPath = "./config.toml"
	defaultEnvPath    = "./.env"
	apiEnvVar         = "RULETOGGLE_API"
)

var (
	configPath string
	apiURL     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ruletoggle",
	Short: "ruletoggle - time-windowed rule toggler",
	Long: `ruletoggle keeps named rule blocks in a shared YAML document and turns
them on and off on a cron schedule.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config.toml")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "daemon API base URL (default from config or $"+apiEnvVar+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(kvCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig reads .env and the config file. A missing default config
// file yields the defaults.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvOptional(defaultEnvPath); err != nil {
		return nil, err
	}
	if configPath == defaultConfigPath {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(configPath)
}

// baseURL picks the API address: --api, then $RULETOGGLE_API, then the
// configured listen address.
func baseURL() string {
	if apiURL != "" {
		return apiURL
	}
	if v := os.Getenv(apiEnvVar); v != "" {
		return v
	}
	cfg, err := loadConfig()
	if err != nil {
		return "http://" + config.Default().API.Listen
	}
	return "http://" + cfg.API.Listen
}
