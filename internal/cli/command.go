package cli

import "github.com/spf13/cobra"

type BoolFlag struct {
	Name    string
	Usage   string
	Default bool
}

type StringFlag struct {
	Name    string
	Usage   string
	Default string
}

type IntFlag struct {
	Name    string
	Usage   string
	Default int
}

// LeafCommand is a command that runs something.
type LeafCommand struct {
	Use       string
	Short     string
	Args      cobra.PositionalArgs
	BoolFlags []BoolFlag
	StrFlags  []StringFlag
	IntFlags  []IntFlag
	RunE      func(cmd *cobra.Command, args []string) error
}

func (lc LeafCommand) Build() *cobra.Command {
	cmd := &cobra.Command{
		Use:           lc.Use,
		Short:         lc.Short,
		Args:          lc.Args,
		RunE:          lc.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	for _, f := range lc.BoolFlags {
		cmd.Flags().Bool(f.Name, f.Default, f.Usage)
	}
	for _, f := range lc.StrFlags {
		cmd.Flags().String(f.Name, f.Default, f.Usage)
	}
	for _, f := range lc.IntFlags {
		cmd.Flags().Int(f.Name, f.Default, f.Usage)
	}
	return cmd
}

// GroupCommand only holds subcommands.
type GroupCommand struct {
	Use         string
	Short       string
	Subcommands []*cobra.Command
}

func (gc GroupCommand) Build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   gc.Use,
		Short: gc.Short,
	}
	for _, sub := range gc.Subcommands {
		cmd.AddCommand(sub)
	}
	return cmd
}
