package cli

import (
	"festivalbot/internal/config"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.json"

var rootCmd = &cobra.Command{
	Use:   "festivalbot",
	Short: "Holiday greeting bot for Telegram groups",
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to config file (json or yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(holidaysCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	if p == "" {
		return defaultConfigPath
	}
	return p
}

// loadConfig parses and validates without starting a watcher.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.NewConfigManager(configPath(cmd)).Parse()
}
