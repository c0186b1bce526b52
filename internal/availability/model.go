package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DaySchedule is one weekday of a doctor's recurring template. When Working is
// false the remaining fields are ignored.
type DaySchedule struct {
	Working    bool       `json:"working"`
	Start      *TimeOfDay `json:"start,omitempty"`
	End        *TimeOfDay `json:"end,omitempty"`
	BreakStart *TimeOfDay `json:"break_start,omitempty"`
	BreakEnd   *TimeOfDay `json:"break_end,omitempty"`
}

// HasBreak reports whether both break bounds are set.
func (d DaySchedule) HasBreak() bool {
	return d.BreakStart != nil && d.BreakEnd != nil
}

// Validate checks the ordering start <= breakStart < breakEnd <= end.
func (d DaySchedule) Validate() error {
	if !d.Working {
		return nil
	}
	if d.Start == nil || d.End == nil {
		return fmt.Errorf("%w: working day needs start and end", ErrInvalidSchedule)
	}
	if *d.Start >= *d.End {
		return fmt.Errorf("%w: start %s not before end %s", ErrInvalidSchedule, *d.Start, *d.End)
	}
	if (d.BreakStart == nil) != (d.BreakEnd == nil) {
		return fmt.Errorf("%w: break needs both start and end", ErrInvalidSchedule)
	}
	if d.HasBreak() {
		bs, be := *d.BreakStart, *d.BreakEnd
		if bs < *d.Start || bs >= be || be > *d.End {
			return fmt.Errorf("%w: break %s-%s outside %s-%s", ErrInvalidSchedule, bs, be, *d.Start, *d.End)
		}
	}
	return nil
}

// WorkingDay builds a working DaySchedule from "HH:MM" bounds. Pass empty
// strings for breakStart and breakEnd when there is no break.
func WorkingDay(start, end, breakStart, breakEnd string) (DaySchedule, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return DaySchedule{}, err
	}
	e, err := ParseEndTimeOfDay(end)
	if err != nil {
		return DaySchedule{}, err
	}
	day := DaySchedule{Working: true, Start: &s, End: &e}
	if breakStart != "" || breakEnd != "" {
		bs, err := ParseTimeOfDay(breakStart)
		if err != nil {
			return DaySchedule{}, err
		}
		be, err := ParseEndTimeOfDay(breakEnd)
		if err != nil {
			return DaySchedule{}, err
		}
		day.BreakStart, day.BreakEnd = &bs, &be
	}
	return day, day.Validate()
}

// WeeklySchedule maps every weekday to its template. A schedule built with
// NewWeeklySchedule always carries all seven keys.
type WeeklySchedule map[time.Weekday]DaySchedule

// NewWeeklySchedule copies days and fills any missing weekday with a day off.
func NewWeeklySchedule(days map[time.Weekday]DaySchedule) WeeklySchedule {
	ws := make(WeeklySchedule, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		ws[wd] = days[wd]
	}
	return ws
}

// Day returns the template for wd; a missing key reads as a day off.
func (w WeeklySchedule) Day(wd time.Weekday) DaySchedule {
	return w[wd]
}

// Validate checks every weekday.
func (w WeeklySchedule) Validate() error {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if err := w[wd].Validate(); err != nil {
			return fmt.Errorf("%s: %w", wd, err)
		}
	}
	return nil
}

// Frequency is the repeat cadence of a recurring block.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// RecurrenceRule repeats a block until the given date inclusive.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`
	Until     Date      `json:"until"`
}

// BlockedInterval is a one-off or recurring period a doctor is unavailable.
type BlockedInterval struct {
	ID         uuid.UUID       `json:"id"`
	DoctorID   uuid.UUID       `json:"doctor_id"`
	Date       Date            `json:"date"`
	Start      TimeOfDay       `json:"start_time"`
	End        TimeOfDay       `json:"end_time"`
	Reason     string          `json:"reason"`
	Recurrence *RecurrenceRule `json:"recurrence,omitempty"`
}

// Validate is run once when a block is created.
func (b BlockedInterval) Validate() error {
	if b.Start >= b.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, b.Start, b.End)
	}
	if b.Recurrence == nil {
		return nil
	}
	switch b.Recurrence.Frequency {
	case Weekly, Monthly:
	default:
		return fmt.Errorf("%w: frequency %q", ErrInvalidRecurrence, b.Recurrence.Frequency)
	}
	if b.Recurrence.Until.Before(b.Date) {
		return fmt.Errorf("%w: until %s, date %s", ErrInvalidRecurrenceRange, b.Recurrence.Until, b.Date)
	}
	return nil
}

// LastDate is the final date the block can produce an occurrence on.
func (b BlockedInterval) LastDate() Date {
	if b.Recurrence == nil {
		return b.Date
	}
	return b.Recurrence.Until
}

// VacationType classifies a leave period.
type VacationType string

const (
	VacationLeave VacationType = "vacation"
	SickLeave     VacationType = "sick_leave"
	Conference    VacationType = "conference"
	Personal      VacationType = "personal"
	OtherLeave    VacationType = "other"
)

// Valid reports whether t is a known leave type.
func (t VacationType) Valid() bool {
	switch t {
	case VacationLeave, SickLeave, Conference, Personal, OtherLeave:
		return true
	}
	return false
}

// Vacation blocks whole days from StartDate to EndDate inclusive.
type Vacation struct {
	ID        uuid.UUID    `json:"id"`
	DoctorID  uuid.UUID    `json:"doctor_id"`
	StartDate Date         `json:"start_date"`
	EndDate   Date         `json:"end_date"`
	Type      VacationType `json:"type"`
	Reason    string       `json:"reason,omitempty"`
}

func (v Vacation) Validate() error {
	if v.EndDate.Before(v.StartDate) {
		return fmt.Errorf("%w: %s..%s", ErrInvalidDateRange, v.StartDate, v.EndDate)
	}
	if v.Type != "" && !v.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVacationType, v.Type)
	}
	return nil
}

// Covers reports whether d falls inside the leave period.
func (v Vacation) Covers(d Date) bool {
	return !d.Before(v.StartDate) && !d.After(v.EndDate)
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Active reports whether the status occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further modification is allowed.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

// DefaultDurationMinutes is used when a booking leaves the duration unset.
const DefaultDurationMinutes = 30

// MaxDurationMinutes caps a single appointment.
const MaxDurationMinutes = 8 * 60

// Appointment is a booked visit. Appointments are never deleted.
type Appointment struct {
	ID                 uuid.UUID         `json:"id"`
	DoctorID           uuid.UUID         `json:"doctor_id"`
	PatientID          uuid.UUID         `json:"patient_id"`
	Date               Date              `json:"date"`
	Time               TimeOfDay         `json:"time"`
	DurationMinutes    int               `json:"duration_minutes"`
	Status             AppointmentStatus `json:"status"`
	RescheduledFrom    *uuid.UUID        `json:"rescheduled_from,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Duration returns the effective duration in minutes.
func (a Appointment) Duration() int {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return a.DurationMinutes
}

// Interval returns the half-open time the appointment occupies.
func (a Appointment) Interval() Interval {
	return Interval{Date: a.Date, Start: a.Time, End: a.Time.Add(a.Duration())}
}

// StartsAt returns the appointment start instant in loc.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.In(loc, a.Time)
}

// SlotStatus is the derived state of a slot.
type SlotStatus string

const (
	SlotAvailable  SlotStatus = "available"
	SlotBooked     SlotStatus = "booked"
	SlotBlocked    SlotStatus = "blocked"
	SlotOutOfHours SlotStatus = "out_of_hours"
)

// Slot is one derived position on a doctor's day. Reason is a human label
// such as "break", "vacation" or the block reason.
type Slot struct {
	Date            Date       `json:"date"`
	Time            TimeOfDay  `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          SlotStatus `json:"status"`
	Reason          string     `json:"reason,omitempty"`

	// AppointmentID is set on booked slots.
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// Available reports whether the slot can take a booking.
func (s Slot) Available() bool { return s.Status == SlotAvailable }

// Role is the acting party on a booking or modification.
type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleAdmin     Role = "admin"
	RoleNurse     Role = "nurse"
	RoleRegistrar Role = "registrar"
)

// IsStaff reports whether r gets the short modification notice.
func (r Role) IsStaff() bool {
	switch r {
	case RoleDoctor, RoleAdmin, RoleNurse, RoleRegistrar:
		return true
	}
	return false
}
