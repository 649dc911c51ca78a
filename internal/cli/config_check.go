package cli

import (
	"fmt"
	"io"

	"festivalbot/internal/app"
	"festivalbot/internal/config"

	"github.com/spf13/cobra"
)

var configCheckCmd = LeafCommand{
	Use:   "check",
	Short: "Validate the config file and the holiday sources it names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runConfigCheck(cmd.OutOrStdout(), configPath(cmd), cfg)
	},
}.Build()

var configCmd = GroupCommand{
	Use:   "config",
	Short: "Configuration helpers",
	Subcommands: []*cobra.Command{
		configCheckCmd,
	},
}.Build()

func runConfigCheck(w io.Writer, path string, cfg *config.Config) error {
	cat, warnings, err := app.LoadCatalog(cfg)
	if err != nil {
		return err
	}
	if _, err := app.EngineOptions(cfg, cat); err != nil {
		return err
	}
	for _, msg := range warnings {
		_, _ = fmt.Fprintln(w, "warning:", msg)
	}
	_, err = fmt.Fprintf(w, "%s: ok (timezone %s, trigger %s, %d holidays, transport %s)\n",
		path, cfg.Timezone, cfg.TriggerTime, len(cat.Definitions()), cfg.Dispatch.Transport)
	return err
}
