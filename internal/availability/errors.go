package availability

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Input validation errors. These are the only hard failures of the engine.
var (
	ErrInvalidTimeFormat      = errors.New("invalid time format, expected HH:MM")
	ErrInvalidDate            = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTimeRange       = errors.New("start time must be before end time")
	ErrInvalidDateRange       = errors.New("start date must not be after end date")
	ErrInvalidRecurrence      = errors.New("invalid recurrence rule")
	ErrInvalidRecurrenceRange = errors.New("recurrence until date is before the block date")
	ErrInvalidSchedule        = errors.New("invalid working hours")
	ErrInvalidDuration        = errors.New("invalid appointment duration")
	ErrInvalidVacationType    = errors.New("unknown leave type")
)

// Booking and modification outcomes.
var (
	ErrPastDate                   = errors.New("requested time is in the past")
	ErrSlotUnavailable            = errors.New("slot is not available")
	ErrSlotConflict               = errors.New("slot conflicts with an existing appointment")
	ErrModificationWindowExceeded = errors.New("appointment can no longer be modified")
	ErrAppointmentClosed          = errors.New("appointment is in a terminal status")
	ErrInvalidTransition          = errors.New("invalid appointment status transition")
)

// SlotUnavailableError reports why a proposed slot cannot be booked.
type SlotUnavailableError struct {
	Reason SlotStatus
	Detail string
}

func (e *SlotUnavailableError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", ErrSlotUnavailable, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s: %s", ErrSlotUnavailable, e.Reason)
}

func (e *SlotUnavailableError) Is(target error) bool { return target == ErrSlotUnavailable }

// SlotConflictError names the active appointment a proposal collides with.
type SlotConflictError struct {
	AppointmentID uuid.UUID
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSlotConflict, e.AppointmentID)
}

func (e *SlotConflictError) Is(target error) bool { return target == ErrSlotConflict }
