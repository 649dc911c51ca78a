// Package scheduler runs named jobs on cron expressions or fixed intervals in
// a configured time zone. Each schedule has a skip-if-running gate, an
// optional per-run timeout and panic recovery, and its runs are reported on
// the event bus.
package scheduler
