package availability

import "fmt"

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
}

// CanTransition reports whether an appointment may move from one status to
// another.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition for a move the lifecycle forbids.
func Transition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// NextStatuses lists where an appointment in status s can go.
func NextStatuses(s AppointmentStatus) []AppointmentStatus {
	return append([]AppointmentStatus(nil), transitions[s]...)
}
