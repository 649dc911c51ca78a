package trigger

import (
	"time"

	"festivalbot/internal/holiday"
)

// Kind names the entry point of a pass.
type Kind string

const (
	KindScheduled Kind = "scheduled"
	KindManual    Kind = "manual"
	KindDebug     Kind = "debug"
)

// Status is the outcome of one (conversation, occurrence) unit.
type Status string

const (
	StatusDispatched     Status = "dispatched"
	StatusSkipped        Status = "skipped"
	StatusDispatchFailed Status = "dispatch_failed"
	// StatusPersistFailed means the greeting was sent but the ledger write failed.
	StatusPersistFailed Status = "persist_failed"
)

// Delivery is the result of one unit.
type Delivery struct {
	Kind           Kind
	ConversationID string
	HolidayID      string
	HolidayName    string
	Date           holiday.Date
	DayIndex       int
	Status         Status
	Text           string
	ViaFallback    bool
	Attempts       int
	Err            error
}

// Sent reports whether the greeting reached the transport.
func (d Delivery) Sent() bool {
	return d.Status == StatusDispatched || d.Status == StatusPersistFailed
}

// Report summarizes one pass.
type Report struct {
	Kind        Kind
	Date        holiday.Date
	Started     time.Time
	Duration    time.Duration
	Occurrences []holiday.Occurrence
	Targets     []string
	Deliveries  []Delivery
}

// Count returns how many deliveries ended with s.
func (r Report) Count(s Status) int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == s {
			n++
		}
	}
	return n
}

// Sent returns how many greetings reached the transport.
func (r Report) Sent() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Sent() {
			n++
		}
	}
	return n
}

// Failed returns the deliveries whose dispatch failed.
func (r Report) Failed() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if d.Status == StatusDispatchFailed {
			out = append(out, d)
		}
	}
	return out
}
