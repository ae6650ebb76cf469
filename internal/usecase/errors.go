package usecase

import (
	"errors"
	"fmt"
)

// Error families. Handlers switch on these with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrSchedulingConflict = errors.New("scheduling conflict")
)

var (
	ErrInvalidDateFormat       = fmt.Errorf("%w: invalid date format, use YYYY-MM-DD", ErrInvalidInput)
	ErrInvalidTimeFormat       = fmt.Errorf("%w: invalid time format, use HH:MM", ErrInvalidInput)
	ErrInvalidTimeRange        = fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	ErrInvalidStatus           = fmt.Errorf("%w: invalid appointment status", ErrInvalidInput)
	ErrInvalidStatusTransition = fmt.Errorf("%w: status transition not allowed", ErrInvalidInput)
	ErrNotesTooLong            = fmt.Errorf("%w: notes exceed 500 characters", ErrInvalidInput)
	ErrInvalidWorkingHours     = fmt.Errorf("%w: invalid working hours", ErrInvalidInput)
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
)

// Availability rejection reasons.
const (
	ReasonDoctorNotFound      = "doctor_not_found"
	ReasonInvalidTimeRange    = "invalid_time_range"
	ReasonOutsideWorkingHours = "outside_working_hours"
	ReasonWeekend             = "weekend"
	ReasonOutsideDefaultHours = "outside_default_hours"
	ReasonNoWorkingHours      = "no_working_hours"
	ReasonConflict            = "conflict"
	ReasonLookupFailed        = "lookup_failed"
)

// SchedulingConflictError carries the reason a slot could not be booked.
// It matches ErrSchedulingConflict under errors.Is.
type SchedulingConflictError struct {
	Reason string
}

func (e *SchedulingConflictError) Error() string {
	return fmt.Sprintf("doctor is not available for the requested slot: %s", e.Reason)
}

func (e *SchedulingConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}

func newConflict(reason string) error {
	return &SchedulingConflictError{Reason: reason}
}
