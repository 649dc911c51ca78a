// Package storage persists the greeting delivery ledger.
//
// It records which (conversation, holiday, date) keys were greeted, keeps the
// set of known target conversations, and offers a cross-process lock so two
// bot processes sharing one ledger never greet the same key twice.
//
// Two backends exist:
//   - "file": JSON Lines journal + JSON snapshot, no external dependencies
//   - "sqlite": a single SQLite database file (modernc.org/sqlite, pure Go)
package storage
