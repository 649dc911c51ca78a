package trigger

import (
	"time"

	"festivalbot/internal/eventbus"
)

// Event types published on the bus.
const (
	EventRunStarted       = "trigger.run_started"
	EventRunFinished      = "trigger.run_finished"
	EventTargetRegistered = "trigger.target_registered"
	EventDispatched       = "greeting.dispatched"
	EventSkipped          = "greeting.skipped"
	EventDispatchFailed   = "greeting.dispatch_failed"
	EventPersistFailed    = "greeting.persist_failed"
)

// DeliveryEvent is the payload of greeting.* events.
type DeliveryEvent struct {
	Kind           Kind   `json:"kind"`
	ConversationID string `json:"conversation_id"`
	HolidayID      string `json:"holiday_id"`
	Date           string `json:"date"`
	ViaFallback    bool   `json:"via_fallback,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RunEvent is the payload of trigger.run_* events.
type RunEvent struct {
	Kind        Kind          `json:"kind"`
	Date        string        `json:"date"`
	Targets     int           `json:"targets"`
	Occurrences int           `json:"occurrences"`
	Dispatched  int           `json:"dispatched,omitempty"`
	Failed      int           `json:"failed,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}

func (e *Engine) publishDelivery(typ string, d Delivery) {
	ev := DeliveryEvent{
		Kind:           d.Kind,
		ConversationID: d.ConversationID,
		HolidayID:      d.HolidayID,
		Date:           d.Date.String(),
		ViaFallback:    d.ViaFallback,
	}
	if d.Err != nil {
		ev.Error = d.Err.Error()
	}
	e.publish(typ, ev)
}
