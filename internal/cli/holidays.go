package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"festivalbot/internal/app"
	"festivalbot/internal/config"
	"festivalbot/internal/holiday"

	"github.com/spf13/cobra"
)

const maxWindowDays = 366

var holidaysCmd = LeafCommand{
	Use:   "holidays",
	Short: "List upcoming holidays from the configured catalog",
	Args:  cobra.NoArgs,
	StrFlags: []StringFlag{
		{Name: "from", Usage: "first day (YYYY-MM-DD), default today in the configured timezone"},
	},
	IntFlags: []IntFlag{
		{Name: "days", Usage: "window length in days (1-366)", Default: 30},
	},
	BoolFlags: []BoolFlag{
		{Name: "ics", Usage: "print an iCalendar feed instead of a table"},
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		days, _ := cmd.Flags().GetInt("days")
		ics, _ := cmd.Flags().GetBool("ics")
		return runHolidays(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, from, days, ics, time.Now)
	},
}.Build()

func runHolidays(w, errw io.Writer, cfg *config.Config, from string, days int, ics bool, now func() time.Time) error {
	if days < 1 || days > maxWindowDays {
		return fmt.Errorf("--days must be between 1 and %d", maxWindowDays)
	}
	cat, warnings, err := app.LoadCatalog(cfg)
	if err != nil {
		return err
	}
	for _, msg := range warnings {
		_, _ = fmt.Fprintln(errw, "warning:", msg)
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	start := holiday.Today(now(), loc)
	if strings.TrimSpace(from) != "" {
		if start, err = holiday.ParseDate(strings.TrimSpace(from)); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}

	occ, err := cat.Upcoming(start, days)
	if err != nil {
		return err
	}
	if ics {
		return holiday.WriteICS(w, occ, now())
	}
	if len(occ) == 0 {
		_, err := fmt.Fprintf(w, "no holidays between %s and %s\n", start, start.AddDays(days-1))
		return err
	}
	for _, o := range occ {
		line := fmt.Sprintf("%s  %s (%s)", o.Date, o.Holiday.Name, o.Holiday.ID)
		if n := o.Holiday.Duration(); n > 1 {
			line += fmt.Sprintf("  %d days", n)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
