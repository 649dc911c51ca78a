package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "festivalbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db    *sql.DB
	log   logx.Logger
	locks keyLocks
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, persistErr("open", errors.New("sqlite path is required"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("open", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistErr("open", err)
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	if _, err := db.Exec(migrationsSQL); err != nil {
		_ = db.Close()
		return nil, persistErr("migrate", err)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	return &sqliteStore{db: db, log: log, locks: keyLocks{prefix: base}}, nil
}

func (s *sqliteStore) HasDelivered(ctx context.Context, k Key) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM deliveries WHERE conversation_id = ? AND holiday_id = ? AND date = ?`,
		k.ConversationID, k.HolidayID, k.Date,
	).Scan(&n)
	if err != nil {
		return false, persistErr("has_delivered", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) RecordDelivery(ctx context.Context, r DeliveryRecord) error {
	if err := validateRecord(r); err != nil {
		return persistErr("record", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(id, conversation_id, holiday_id, date, delivered_at, text, text_hash, debug)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.ID, r.ConversationID, r.HolidayID, r.Date,
		r.DeliveredAt.UTC().Format(time.RFC3339Nano), r.Text, r.TextHash, boolInt(r.Debug),
	)
	return persistErr("record", err)
}

func (s *sqliteStore) Prune(ctx context.Context, before string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE date < ?`, before)
	if err != nil {
		return 0, persistErr("prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr("prune", err)
	}
	return int(n), nil
}

func (s *sqliteStore) History(ctx context.Context, k Key) ([]DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, holiday_id, date, delivered_at, text, text_hash, debug
		 FROM deliveries WHERE conversation_id = ? AND holiday_id = ? AND date = ?
		 ORDER BY rowid`,
		k.ConversationID, k.HolidayID, k.Date,
	)
	if err != nil {
		return nil, persistErr("history", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var (
			r     DeliveryRecord
			at    string
			debug int
		)
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.HolidayID, &r.Date, &at, &r.Text, &r.TextHash, &debug); err != nil {
			return nil, persistErr("history", err)
		}
		if r.DeliveredAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, persistErr("history", err)
		}
		r.Debug = debug != 0
		out = append(out, r)
	}
	return out, persistErr("history", rows.Err())
}

func (s *sqliteStore) RegisterTarget(ctx context.Context, conversationID string, at time.Time) (bool, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return false, persistErr("register_target", errors.New("conversation id is empty"))
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO targets(conversation_id, registered_at) VALUES(?,?)
		 ON CONFLICT(conversation_id) DO NOTHING`,
		conversationID, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, persistErr("register_target", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("register_target", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Targets(ctx context.Context) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conversation_id, registered_at FROM targets`)
	if err != nil {
		return nil, persistErr("targets", err)
	}
	defer rows.Close()

	var out []Target
	for rows.Next() {
		var (
			t  Target
			at string
		)
		if err := rows.Scan(&t.ConversationID, &at); err != nil {
			return nil, persistErr("targets", err)
		}
		if t.RegisteredAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, persistErr("targets", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("targets", err)
	}
	sortTargets(out)
	return out, nil
}

func (s *sqliteStore) Lock(ctx context.Context, k Key) (func(), error) {
	return s.locks.Lock(ctx, k)
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
