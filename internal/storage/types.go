package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrPersistence wraps every backend failure. Callers treat it as
// "not delivered" and keep running.
var ErrPersistence = errors.New("persistence failure")

var errClosed = errors.New("store closed")

// Config configures storage.
//
// Driver values:
//   - "file": journal + snapshot under Path (a file prefix)
//   - "sqlite": SQLite database at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Key identifies one greeting: a conversation, a holiday and a calendar date.
type Key struct {
	ConversationID string
	HolidayID      string
	Date           string // YYYY-MM-DD
}

func (k Key) String() string {
	return k.ConversationID + "|" + k.HolidayID + "|" + k.Date
}

// DeliveryRecord is written once per successful dispatch and never mutated.
type DeliveryRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	HolidayID      string    `json:"holiday_id"`
	Date           string    `json:"date"`
	DeliveredAt    time.Time `json:"delivered_at"`
	Text           string    `json:"text"`
	TextHash       string    `json:"text_hash"`
	Debug          bool      `json:"debug,omitempty"`
}

func (r DeliveryRecord) Key() Key {
	return Key{ConversationID: r.ConversationID, HolidayID: r.HolidayID, Date: r.Date}
}

// NewRecord builds a record for a dispatched text.
func NewRecord(k Key, text string, at time.Time, debug bool) DeliveryRecord {
	return DeliveryRecord{
		ID:             uuid.NewString(),
		ConversationID: k.ConversationID,
		HolidayID:      k.HolidayID,
		Date:           k.Date,
		DeliveredAt:    at,
		Text:           text,
		TextHash:       TextHash(text),
		Debug:          debug,
	}
}

func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Target is a conversation known to receive scheduled greetings.
type Target struct {
	ConversationID string    `json:"conversation_id"`
	RegisteredAt   time.Time `json:"registered_at"`
}

func validateRecord(r DeliveryRecord) error {
	switch {
	case r.ConversationID == "":
		return errors.New("record: conversation id is empty")
	case r.HolidayID == "":
		return errors.New("record: holiday id is empty")
	case len(r.Date) != len("2006-01-02"):
		return fmt.Errorf("record: invalid date %q", r.Date)
	}
	return nil
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
