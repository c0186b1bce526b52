package scheduling

import "errors"

var (
	// ErrNotFound is returned when a record does not exist for the doctor.
	ErrNotFound = errors.New("not found")
	// ErrStaleAppointment means the appointment changed status between the
	// read and the write.
	ErrStaleAppointment = errors.New("appointment was modified concurrently")
)

// ErrInvalidRequest flags a malformed request such as an unknown
// calendar view or a missing required field.
var ErrInvalidRequest = errors.New("invalid request")
