package scheduling

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/hospital/hms/internal/availability"
)

const (
	icalProductID = "-//hms//doctor calendar//EN"
	maxICalDays   = 92
)

func icalStatus(s availability.AppointmentStatus) ics.ObjectStatus {
	switch s {
	case availability.StatusPending:
		return ics.ObjectStatusTentative
	case availability.StatusCancelled, availability.StatusRescheduled:
		return ics.ObjectStatusCancelled
	}
	return ics.ObjectStatusConfirmed
}

// CalendarFeed renders appointments and vacations in [from, to] as an
// RFC 5545 calendar. Times are converted from the clinic timezone to UTC.
func CalendarFeed(doctorID uuid.UUID, loc *time.Location, appts []availability.Appointment, vacations []availability.Vacation, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icalProductID)
	cal.SetName("Doctor " + doctorID.String())

	for _, a := range appts {
		start := a.Date.In(loc, a.Time)
		ev := cal.AddEvent(a.ID.String() + "@hms")
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(time.Duration(a.Duration()) * time.Minute))
		ev.SetSummary("Appointment (" + string(a.Status) + ")")
		ev.SetStatus(icalStatus(a.Status))
		if a.Notes != "" {
			ev.SetDescription(a.Notes)
		}
	}

	for _, v := range vacations {
		ev := cal.AddEvent(v.ID.String() + "@hms")
		ev.SetDtStampTime(stamp)
		ev.SetAllDayStartAt(v.StartDate.In(time.UTC, 0))
		// DTEND is exclusive for all-day events.
		ev.SetAllDayEndAt(v.EndDate.AddDays(1).In(time.UTC, 0))
		summary := string(v.Type)
		if v.Reason != "" {
			summary += ": " + v.Reason
		}
		ev.SetSummary(summary)
		ev.SetStatus(ics.ObjectStatusConfirmed)
	}

	return cal.Serialize()
}

// ExportICal returns the doctor's appointments and vacations in [from, to]
// as an iCalendar feed.
func (s *Service) ExportICal(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) (string, error) {
	if err := checkRange(from, to); err != nil {
		return "", err
	}
	if from.DaysUntil(to) >= maxICalDays {
		return "", fmt.Errorf("%w: feed covers at most %d days", ErrInvalidRequest, maxICalDays)
	}
	appts, err := s.appointments.ListForRange(ctx, doctorID, from, to)
	if err != nil {
		return "", fmt.Errorf("load appointments: %w", err)
	}
	vacations, err := s.vacations.ListForRange(ctx, doctorID, from, to)
	if err != nil {
		return "", fmt.Errorf("load vacations: %w", err)
	}
	return CalendarFeed(doctorID, s.loc, appts, vacations, s.now().UTC()), nil
}
