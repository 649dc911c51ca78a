package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"festivalbot/internal/app"
	"festivalbot/internal/config"
	"festivalbot/internal/holiday"
	"festivalbot/internal/storage"
	"festivalbot/internal/trigger"
	logx "festivalbot/pkg/logx"

	"github.com/spf13/cobra"
)

var ledgerPruneCmd = LeafCommand{
	Use:   "prune",
	Short: "Delete delivery records older than storage.retention",
	Args:  cobra.NoArgs,
	StrFlags: []StringFlag{
		{Name: "before", Usage: "delete records dated before this day (YYYY-MM-DD) instead of the retention horizon"},
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		before, _ := cmd.Flags().GetString("before")
		return withStore(cmd, func(cfg *config.Config, st storage.Store) error {
			return runLedgerPrune(cmd.Context(), cmd.OutOrStdout(), cfg, st, before, time.Now)
		})
	},
}.Build()

var ledgerTargetsCmd = LeafCommand{
	Use:   "targets",
	Short: "List conversations that receive scheduled greetings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(_ *config.Config, st storage.Store) error {
			return runLedgerTargets(cmd.Context(), cmd.OutOrStdout(), st)
		})
	},
}.Build()

var ledgerHistoryCmd = LeafCommand{
	Use:   "history <conversation> <holiday-id> <YYYY-MM-DD>",
	Short: "Show every delivery recorded for one greeting",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(_ *config.Config, st storage.Store) error {
			return runLedgerHistory(cmd.Context(), cmd.OutOrStdout(), st, args[0], args[1], args[2])
		})
	},
}.Build()

var ledgerCmd = GroupCommand{
	Use:   "ledger",
	Short: "Inspect and maintain the delivery ledger",
	Subcommands: []*cobra.Command{
		ledgerPruneCmd,
		ledgerTargetsCmd,
		ledgerHistoryCmd,
	},
}.Build()

func withStore(cmd *cobra.Command, fn func(cfg *config.Config, st storage.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg, logx.NewConsole("WARN").With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(cfg, st)
}

func runLedgerPrune(ctx context.Context, w io.Writer, cfg *config.Config, st storage.Store, before string, now func() time.Time) error {
	if before = strings.TrimSpace(before); before != "" {
		d, err := holiday.ParseDate(before)
		if err != nil {
			return fmt.Errorf("--before: %w", err)
		}
		n, err := st.Prune(ctx, d.String())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "removed %d records dated before %s\n", n, d)
		return err
	}

	opt, err := app.EngineOptions(cfg, nil)
	if err != nil {
		return err
	}
	eng := trigger.New(trigger.Deps{Store: st, Now: now}, opt)
	n, err := eng.Prune(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "removed %d records older than %s\n", n, opt.Retention)
	return err
}

func runLedgerTargets(ctx context.Context, w io.Writer, st storage.Store) error {
	targets, err := st.Targets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		_, err := fmt.Fprintln(w, "no targets registered")
		return err
	}
	for _, t := range targets {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", t.ConversationID, t.RegisteredAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func runLedgerHistory(ctx context.Context, w io.Writer, st storage.Store, conv, holidayID, date string) error {
	d, err := holiday.ParseDate(date)
	if err != nil {
		return err
	}
	recs, err := st.History(ctx, storage.Key{ConversationID: conv, HolidayID: holidayID, Date: d.String()})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "no deliveries recorded")
		return err
	}
	for _, r := range recs {
		kind := "scheduled"
		if r.Debug {
			kind = "debug"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.DeliveredAt.Format(time.RFC3339), kind, r.Text); err != nil {
			return err
		}
	}
	return nil
}
