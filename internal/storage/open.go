package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "festivalbot/pkg/logx"
)

// Store is the delivery ledger.
type Store interface {
	// HasDelivered reports whether a record exists for exactly k.
	HasDelivered(ctx context.Context, k Key) (bool, error)
	// RecordDelivery appends r and makes it durable before returning.
	RecordDelivery(ctx context.Context, r DeliveryRecord) error
	// Prune deletes records dated before the YYYY-MM-DD date and returns how many went.
	Prune(ctx context.Context, before string) (int, error)
	// History returns every record for k in append order.
	History(ctx context.Context, k Key) ([]DeliveryRecord, error)

	// RegisterTarget adds a known conversation; added is false if it was known.
	RegisterTarget(ctx context.Context, conversationID string, at time.Time) (added bool, err error)
	Targets(ctx context.Context) ([]Target, error)

	// Lock enters a section that excludes other holders of k in any process
	// sharing this ledger. The returned func releases it.
	Lock(ctx context.Context, k Key) (unlock func(), err error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", ErrPersistence, driver)
	}
}
