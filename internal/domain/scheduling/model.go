package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/hms/internal/availability"
	"github.com/hospital/hms/internal/scheduleview"
)

// WorkingHoursDoc is the wire form of a weekly schedule, keyed by lowercase
// weekday name ("monday" ... "sunday"). Missing days are not working.
type WorkingHoursDoc map[string]availability.DaySchedule

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Schedule converts the document into a validated weekly schedule.
func (d WorkingHoursDoc) Schedule() (availability.WeeklySchedule, error) {
	days := make(map[time.Weekday]availability.DaySchedule, len(d))
	for name, ds := range d {
		wd, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", availability.ErrInvalidSchedule, name)
		}
		days[wd] = ds
	}
	ws := availability.NewWeeklySchedule(days)
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	return ws, nil
}

// DocFromSchedule renders ws with all seven days present.
func DocFromSchedule(ws availability.WeeklySchedule) WorkingHoursDoc {
	doc := make(WorkingHoursDoc, 7)
	for name, wd := range weekdayNames {
		doc[name] = ws.Day(wd)
	}
	return doc
}

// BookRequest is the body of POST /appointments.
type BookRequest struct {
	DoctorID        uuid.UUID               `json:"doctor_id"`
	PatientID       uuid.UUID               `json:"patient_id"`
	Date            availability.Date       `json:"date"`
	Time            *availability.TimeOfDay `json:"time"`
	DurationMinutes int                     `json:"duration_minutes,omitempty"`
	Notes           string                  `json:"notes,omitempty"`
}

// Validate checks the fields binding cannot.
func (r BookRequest) Validate() error {
	if r.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalidRequest)
	}
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: date is required", availability.ErrInvalidDate)
	}
	if r.Time == nil {
		return fmt.Errorf("%w: time is required", availability.ErrInvalidTimeFormat)
	}
	return nil
}

func (r BookRequest) booking(role availability.Role) availability.BookingRequest {
	return availability.BookingRequest{
		DoctorID:        r.DoctorID,
		PatientID:       r.PatientID,
		Date:            r.Date,
		Time:            *r.Time,
		DurationMinutes: r.DurationMinutes,
		Role:            role,
		Notes:           r.Notes,
	}
}

// RescheduleRequest is the body of POST /appointments/:id/reschedule.
type RescheduleRequest struct {
	Date            availability.Date       `json:"date"`
	Time            *availability.TimeOfDay `json:"time"`
	DurationMinutes int                     `json:"duration_minutes,omitempty"`
	Notes           string                  `json:"notes,omitempty"`
}

// Validate checks the fields binding cannot.
func (r RescheduleRequest) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("%w: date is required", availability.ErrInvalidDate)
	}
	if r.Time == nil {
		return fmt.Errorf("%w: time is required", availability.ErrInvalidTimeFormat)
	}
	return nil
}

// CancelRequest is the optional body of POST /appointments/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// AvailabilityResponse answers a point check.
type AvailabilityResponse struct {
	Available bool                    `json:"available"`
	Status    availability.SlotStatus `json:"status"`
	Reason    string                  `json:"reason,omitempty"`
	Slot      availability.Slot       `json:"slot"`
}

// ModifyResponse answers GET /appointments/:id/can-modify.
type ModifyResponse struct {
	CanModify bool                             `json:"can_modify"`
	Reason    string                           `json:"reason,omitempty"`
	Role      availability.Role                `json:"role"`
	Next      []availability.AppointmentStatus `json:"next_statuses"`
}

// CalendarView names the grouping returned by Calendar.
type CalendarView string

const (
	ViewDay   CalendarView = "day"
	ViewWeek  CalendarView = "week"
	ViewMonth CalendarView = "month"
)

// Calendar holds exactly one of Day, Week or Month, matching View.
type Calendar struct {
	View  CalendarView            `json:"view"`
	Day   *scheduleview.DayView   `json:"day,omitempty"`
	Week  *scheduleview.WeekView  `json:"week,omitempty"`
	Month *scheduleview.MonthView `json:"month,omitempty"`
}

// RescheduleResult pairs the retired appointment with its replacement.
type RescheduleResult struct {
	Old *availability.Appointment `json:"old"`
	New *availability.Appointment `json:"new"`
}
