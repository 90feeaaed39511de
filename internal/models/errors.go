package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes shared across components.
// Callers classify with errors.Is.
var (
	// ErrBusy rejects a movement command while the actuator is
	// exclusively held by an in-flight timed movement.
	ErrBusy = errors.New("actuator busy")

	// ErrEmergencyStop rejects movement while the emergency latch holds.
	ErrEmergencyStop = errors.New("emergency stop active")

	// ErrTimeout wraps waypoint, task and mission deadline expiries.
	ErrTimeout = errors.New("operation timed out")

	// ErrSensorStale marks a cached sample older than the freshness bound.
	ErrSensorStale = errors.New("sensor sample stale")

	// ErrNoMission rejects mission operations when no mission is active.
	ErrNoMission = errors.New("no active mission")

	// ErrMissionState rejects a lifecycle operation not permitted in the
	// mission's current state.
	ErrMissionState = errors.New("operation not allowed in current mission state")
)

// ValidationError reports malformed command or mission input, rejected
// before any state mutation
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError with a formatted reason
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
