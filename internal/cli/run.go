package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"festivalbot/internal/app"

	"github.com/spf13/cobra"
)

var runCmd = LeafCommand{
	Use:   "run",
	Short: "Run the bot until SIGINT or SIGTERM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context(), configPath(cmd))
	},
}.Build()

func runBot(parent context.Context, path string) error {
	a, err := app.NewApp(path)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	stop := func(reason app.StopReason) {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), a.StopTimeout())
		defer stopCancel()
		_ = a.Stop(stopCtx, reason)
	}

	if err := a.Start(ctx); err != nil {
		stop(app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	case <-parent.Done():
		reason = app.StopAppStop
	}
	fatal := a.Err()
	stop(reason)
	if reason == app.StopFatalError && fatal != nil {
		return fatal
	}
	return nil
}
