package trigger

import "errors"

var (
	// ErrBusy rejects a scheduled tick that finds a pass already running.
	ErrBusy = errors.New("trigger: a pass is already running")
	// ErrManualDisabled is returned when allow_manual_trigger is off.
	ErrManualDisabled = errors.New("trigger: manual trigger disabled")
	// ErrNotAllowed is returned when the group filter rejects the conversation.
	ErrNotAllowed = errors.New("trigger: conversation not allowed by group filter")
	// ErrUnauthorized is returned to non-privileged debug callers.
	ErrUnauthorized = errors.New("trigger: caller is not authorized")
	// ErrNoHoliday is returned by manual and debug runs on a day without eligible holidays.
	ErrNoHoliday = errors.New("trigger: no holiday today")
	// ErrDispatch wraps transport failures in a Delivery.
	ErrDispatch = errors.New("trigger: dispatch failed")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("trigger: engine stopped")
)
