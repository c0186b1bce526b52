package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingRequest is a proposed appointment.
type BookingRequest struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            Date
	Time            TimeOfDay
	DurationMinutes int
	Role            Role
	Notes           string
}

// NormalizeDuration applies the default and rejects out-of-range values.
func NormalizeDuration(minutes int) (int, error) {
	switch {
	case minutes == 0:
		return DefaultDurationMinutes, nil
	case minutes < 0, minutes > MaxDurationMinutes:
		return 0, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}
	return minutes, nil
}

// ProposeBooking decides whether req can be accepted against s. A nil
// error means accepted. Rejections are ErrPastDate, *SlotUnavailableError or
// *SlotConflictError; ErrInvalidDuration is an input error.
func (s Snapshot) ProposeBooking(req BookingRequest, now time.Time) error {
	duration, err := NormalizeDuration(req.DurationMinutes)
	if err != nil {
		return err
	}
	if req.Date.In(s.Loc(), req.Time).Before(now) {
		return fmt.Errorf("%w: %s %s", ErrPastDate, req.Date, req.Time)
	}

	dv := s.day(req.Date)
	slot := dv.explain(req.Time)
	switch slot.Status {
	case SlotAvailable:
	case SlotBooked:
		return &SlotConflictError{AppointmentID: *slot.AppointmentID}
	default:
		return &SlotUnavailableError{Reason: slot.Status, Detail: slot.Reason}
	}
	if unavailable, blocked := dv.fit(req.Time, duration); blocked {
		return unavailable
	}
	if a, busy := dv.occupant(req.Time, req.Time.Add(duration)); busy {
		return &SlotConflictError{AppointmentID: a.ID}
	}
	return nil
}

// NewAppointment builds the record for an accepted request. Staff bookings
// start confirmed, patient bookings pending.
func NewAppointment(req BookingRequest, now time.Time) Appointment {
	duration, _ := NormalizeDuration(req.DurationMinutes)
	status := StatusPending
	if req.Role == RoleDoctor || req.Role == RoleAdmin {
		status = StatusConfirmed
	}
	return Appointment{
		ID:              uuid.New(),
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: duration,
		Status:          status,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Policy holds the minimum notice needed to modify an appointment.
type Policy struct {
	PatientNotice time.Duration
	StaffNotice   time.Duration
}

// DefaultPolicy is two hours for patients, thirty minutes for staff.
var DefaultPolicy = Policy{PatientNotice: 2 * time.Hour, StaffNotice: 30 * time.Minute}

// Notice returns the notice required of role.
func (p Policy) Notice(role Role) time.Duration {
	if role.IsStaff() {
		return p.StaffNotice
	}
	return p.PatientNotice
}

// CheckModify reports why role may not change a right now, or nil.
func (p Policy) CheckModify(a Appointment, role Role, loc *time.Location, now time.Time) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrAppointmentClosed, a.Status)
	}
	if a.StartsAt(loc).Sub(now) < p.Notice(role) {
		return fmt.Errorf("%w: %s requires %s notice", ErrModificationWindowExceeded, role, p.Notice(role))
	}
	return nil
}

// CanModify is CheckModify as a predicate.
func (p Policy) CanModify(a Appointment, role Role, loc *time.Location, now time.Time) bool {
	return p.CheckModify(a, role, loc, now) == nil
}

// Reschedule is the pair of records a successful reschedule writes.
type Reschedule struct {
	Old Appointment
	New Appointment
}

// PlanReschedule moves old to the slot in req. The old appointment does not
// count against the new slot. On error nothing should be written.
func (s Snapshot) PlanReschedule(p Policy, old Appointment, req BookingRequest, now time.Time) (Reschedule, error) {
	if err := p.CheckModify(old, req.Role, s.Loc(), now); err != nil {
		return Reschedule{}, err
	}
	if err := Transition(old.Status, StatusRescheduled); err != nil {
		return Reschedule{}, err
	}
	req.DoctorID = old.DoctorID
	req.PatientID = old.PatientID
	if req.DurationMinutes == 0 {
		req.DurationMinutes = old.Duration()
	}
	if req.Notes == "" {
		req.Notes = old.Notes
	}
	if err := s.Without(old.ID).ProposeBooking(req, now); err != nil {
		return Reschedule{}, err
	}

	moved := old
	moved.Status = StatusRescheduled
	moved.UpdatedAt = now

	next := NewAppointment(req, now)
	from := old.ID
	next.RescheduledFrom = &from
	return Reschedule{Old: moved, New: next}, nil
}
