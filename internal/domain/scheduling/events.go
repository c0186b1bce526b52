package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/hms/internal/availability"
)

type EventType string

const (
	EventAppointmentBooked      EventType = "appointment.booked"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
	EventAppointmentCancelled   EventType = "appointment.cancelled"
	EventAppointmentConfirmed   EventType = "appointment.confirmed"
	EventAppointmentCompleted   EventType = "appointment.completed"
	EventAppointmentNoShow      EventType = "appointment.no_show"

	EventWorkingHoursUpdated EventType = "schedule.working_hours_updated"
	EventBlockAdded          EventType = "schedule.block_added"
	EventBlockRemoved        EventType = "schedule.block_removed"
	EventVacationAdded       EventType = "schedule.vacation_added"
	EventVacationRemoved     EventType = "schedule.vacation_removed"
)

var transitionEvents = map[availability.AppointmentStatus]EventType{
	availability.StatusCancelled: EventAppointmentCancelled,
	availability.StatusConfirmed: EventAppointmentConfirmed,
	availability.StatusCompleted: EventAppointmentCompleted,
	availability.StatusNoShow:    EventAppointmentNoShow,
}

// Event is published after a write has been stored. Delivery is best
// effort: a failed publish is logged and the write still stands.
type Event struct {
	Type        EventType                 `json:"type"`
	DoctorID    uuid.UUID                 `json:"doctor_id"`
	Appointment *availability.Appointment `json:"appointment,omitempty"`
	// Previous is the replaced appointment of a reschedule.
	Previous *availability.Appointment `json:"previous,omitempty"`
	// ResourceID names the block or vacation a schedule event is about.
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// RoutingKey is the topic the event is published under, for example
// "scheduling.appointment.booked".
func (e Event) RoutingKey() string {
	return "scheduling." + string(e.Type)
}

// EventPublisher delivers encoded events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// WithEvents publishes an Event after every successful write.
func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func (s *Service) emit(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		s.log(ctx).Error().Err(err).Str("event", string(evt.Type)).Msg("encode event")
		return
	}
	if err := s.events.Publish(ctx, evt.RoutingKey(), body); err != nil {
		s.log(ctx).Warn().Err(err).
			Str("event", string(evt.Type)).
			Str("doctor_id", evt.DoctorID.String()).
			Msg("event publish failed")
	}
}

func (s *Service) emitSchedule(ctx context.Context, t EventType, doctorID uuid.UUID, resourceID *uuid.UUID) {
	s.emit(ctx, Event{Type: t, DoctorID: doctorID, ResourceID: resourceID})
}
