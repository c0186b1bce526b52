package availability

import (
	"iter"
	"time"

	"github.com/google/uuid"
)

// DefaultGranularity is the slot step used when a caller passes zero.
const DefaultGranularity = 30

// Human labels carried in Slot.Reason.
const (
	ReasonNotWorking = "not a working day"
	ReasonOutOfHours = "outside working hours"
	ReasonBreak      = "break"
	ReasonBooked     = "booked"
	ReasonBlocked    = "blocked"
	ReasonVacation   = "vacation"
)

// Window is the fixed range ListSlots scans, independent of working hours so
// that out-of-hours positions are shown and labeled.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// DefaultWindow is 06:00 to 22:00.
var DefaultWindow = Window{Start: 6 * 60, End: 22 * 60}

func (w Window) orDefault() Window {
	if w.Start >= w.End {
		return DefaultWindow
	}
	return w
}

// Snapshot is everything known about one doctor's calendar for the queried
// range. It is never mutated; every query is a pure function of its fields.
type Snapshot struct {
	DoctorID     uuid.UUID
	Schedule     WeeklySchedule
	Blocks       []BlockedInterval
	Vacations    []Vacation
	Appointments []Appointment
	Location     *time.Location
	Window       Window
}

// Loc returns the snapshot's location, UTC when unset.
func (s Snapshot) Loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Without returns a copy of s that ignores the given appointment.
func (s Snapshot) Without(id uuid.UUID) Snapshot {
	out := s
	out.Appointments = make([]Appointment, 0, len(s.Appointments))
	for _, a := range s.Appointments {
		if a.ID != id {
			out.Appointments = append(out.Appointments, a)
		}
	}
	return out
}

// With returns a copy of s that also holds a.
func (s Snapshot) With(a Appointment) Snapshot {
	out := s
	out.Appointments = append(append([]Appointment(nil), s.Appointments...), a)
	return out
}

// IsAvailable reports whether date@t is free to book.
func (s Snapshot) IsAvailable(date Date, t TimeOfDay) bool {
	return s.Explain(date, t).Available()
}

// SlotStatus classifies date@t.
func (s Snapshot) SlotStatus(date Date, t TimeOfDay) SlotStatus {
	return s.Explain(date, t).Status
}

// Explain classifies date@t and gives the reason. Causes are checked in the
// order: out-of-hours or break, booked, blocked interval, vacation.
func (s Snapshot) Explain(date Date, t TimeOfDay) Slot {
	slot := s.day(date).explain(t)
	slot.DurationMinutes = DefaultGranularity
	return slot
}

// ListSlots yields every granularity-sized position of the scan window on
// date. The sequence can be ranged over any number of times.
func (s Snapshot) ListSlots(date Date, granularity int) iter.Seq[Slot] {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	win := s.Window.orDefault()
	return func(yield func(Slot) bool) {
		dv := s.day(date)
		for t := win.Start; t < win.End; t = t.Add(granularity) {
			slot := dv.explain(t)
			slot.DurationMinutes = granularity
			if !yield(slot) {
				return
			}
		}
	}
}

// FreeSlots yields slot starts on date where a booking of the given duration
// would be accepted, ignoring the clock. The scan follows the ListSlots grid
// but is widened to cover the day's working hours, so shifts reaching past
// the window are not cut off.
func (s Snapshot) FreeSlots(date Date, granularity, duration int) iter.Seq[Slot] {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	if duration <= 0 {
		duration = DefaultDurationMinutes
	}
	return func(yield func(Slot) bool) {
		dv := s.day(date)
		start, end := dv.scanRange(s.Window.orDefault(), granularity)
		for t := start; t < end; t = t.Add(granularity) {
			slot := dv.explain(t)
			if !slot.Available() {
				continue
			}
			if _, blocked := dv.fit(t, duration); blocked {
				continue
			}
			if _, busy := dv.occupant(t, t.Add(duration)); busy {
				continue
			}
			slot.DurationMinutes = duration
			if !yield(slot) {
				return
			}
		}
	}
}

// scanRange extends win to the working hours of the day, keeping its grid.
func (dv dayView) scanRange(win Window, granularity int) (TimeOfDay, TimeOfDay) {
	start, end := win.Start, win.End
	if !dv.sched.Working || dv.sched.Start == nil || dv.sched.End == nil {
		return start, end
	}
	for start.Add(-granularity) >= *dv.sched.Start {
		start = start.Add(-granularity)
	}
	if *dv.sched.End > end {
		end = *dv.sched.End
	}
	return start, end
}

// NextAvailable returns the first slot on or after from, within the given
// number of days, that starts after now and fits duration.
func (s Snapshot) NextAvailable(from Date, days, granularity, duration int, now time.Time) (Slot, bool) {
	if days <= 0 {
		days = 1
	}
	loc := s.Loc()
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		for slot := range s.FreeSlots(d, granularity, duration) {
			if d.In(loc, slot.Time).Before(now) {
				continue
			}
			return slot, true
		}
	}
	return Slot{}, false
}

// dayView is the part of a snapshot relevant to one date.
type dayView struct {
	date   Date
	sched  DaySchedule
	blocks []blockOccurrence
	leave  *Vacation
	appts  []Appointment
}

type blockOccurrence struct {
	Interval
	reason string
}

func (s Snapshot) day(date Date) dayView {
	dv := dayView{
		date:  date,
		sched: s.Schedule.Day(date.Weekday()),
	}
	for _, b := range s.Blocks {
		for _, iv := range Expand(b, date, date) {
			dv.blocks = append(dv.blocks, blockOccurrence{Interval: iv, reason: b.Reason})
		}
	}
	for i := range s.Vacations {
		if s.Vacations[i].Covers(date) {
			dv.leave = &s.Vacations[i]
			break
		}
	}
	for _, a := range s.Appointments {
		if a.Date == date && a.Status.Active() {
			dv.appts = append(dv.appts, a)
		}
	}
	return dv
}

func (dv dayView) explain(t TimeOfDay) Slot {
	slot := Slot{Date: dv.date, Time: t, Status: SlotAvailable}

	if status, reason, ok := dv.hours(t, t.Add(1)); !ok {
		slot.Status, slot.Reason = status, reason
		return slot
	}
	if a, ok := dv.occupant(t, t.Add(1)); ok {
		id := a.ID
		slot.Status, slot.Reason, slot.AppointmentID = SlotBooked, ReasonBooked, &id
		return slot
	}
	if reason, ok := dv.blockedBy(t, t.Add(1)); ok {
		slot.Status, slot.Reason = SlotBlocked, reason
		return slot
	}
	if dv.leave != nil {
		slot.Status, slot.Reason = SlotBlocked, leaveReason(dv.leave)
		return slot
	}
	return slot
}

// fit checks [t, t+duration) against hours, break, blocks and leave. It
// reports the first blocking cause.
func (dv dayView) fit(t TimeOfDay, duration int) (*SlotUnavailableError, bool) {
	end := t.Add(duration)
	if status, reason, ok := dv.hours(t, end); !ok {
		return &SlotUnavailableError{Reason: status, Detail: reason}, true
	}
	if reason, ok := dv.blockedBy(t, end); ok {
		return &SlotUnavailableError{Reason: SlotBlocked, Detail: reason}, true
	}
	if dv.leave != nil {
		return &SlotUnavailableError{Reason: SlotBlocked, Detail: leaveReason(dv.leave)}, true
	}
	return nil, false
}

// hours checks [start, end) against the day's working hours and break.
func (dv dayView) hours(start, end TimeOfDay) (SlotStatus, string, bool) {
	if !dv.sched.Working || dv.sched.Start == nil || dv.sched.End == nil {
		return SlotOutOfHours, ReasonNotWorking, false
	}
	if start < *dv.sched.Start || end > *dv.sched.End {
		return SlotOutOfHours, ReasonOutOfHours, false
	}
	if dv.sched.HasBreak() && overlapsRange(start, end, *dv.sched.BreakStart, *dv.sched.BreakEnd) {
		return SlotOutOfHours, ReasonBreak, false
	}
	return "", "", true
}

func (dv dayView) occupant(start, end TimeOfDay) (Appointment, bool) {
	for _, a := range dv.appts {
		iv := a.Interval()
		if overlapsRange(start, end, iv.Start, iv.End) {
			return a, true
		}
	}
	return Appointment{}, false
}

func (dv dayView) blockedBy(start, end TimeOfDay) (string, bool) {
	for _, b := range dv.blocks {
		if overlapsRange(start, end, b.Start, b.End) {
			if b.reason == "" {
				return ReasonBlocked, true
			}
			return b.reason, true
		}
	}
	return "", false
}

func leaveReason(v *Vacation) string {
	if v.Type == "" || v.Type == VacationLeave {
		return ReasonVacation
	}
	return ReasonVacation + ": " + string(v.Type)
}
