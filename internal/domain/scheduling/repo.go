package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/hms/internal/availability"
)

// WorkingHoursRepository stores the weekly template. Get returns an all-off
// schedule for a doctor that has none.
type WorkingHoursRepository interface {
	Get(ctx context.Context, doctorID uuid.UUID) (availability.WeeklySchedule, error)
	Replace(ctx context.Context, doctorID uuid.UUID, ws availability.WeeklySchedule) error
}

// BlockRepository stores blocks unexpanded. ListForRange includes recurring
// blocks whose series intersects [from, to].
type BlockRepository interface {
	Create(ctx context.Context, b *availability.BlockedInterval) error
	Delete(ctx context.Context, doctorID, id uuid.UUID) error
	ListForRange(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.BlockedInterval, error)
}

type VacationRepository interface {
	Create(ctx context.Context, v *availability.Vacation) error
	Delete(ctx context.Context, doctorID, id uuid.UUID) error
	ListForRange(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.Vacation, error)
}

// AppointmentRepository never deletes. Insert and Reschedule are atomic
// check-and-insert operations that fail with *availability.SlotConflictError
// when an open appointment overlaps. UpdateStatus and Reschedule compare the
// stored status with the expected one and fail with ErrStaleAppointment on a
// mismatch.
type AppointmentRepository interface {
	Insert(ctx context.Context, a *availability.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*availability.Appointment, error)
	ListForRange(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*availability.Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*availability.Appointment, int, error)
	ListOpenByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*availability.Appointment, error)
	ListOpenByPatient(ctx context.Context, patientID uuid.UUID) ([]*availability.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to availability.AppointmentStatus, reason string, at time.Time) error
	Reschedule(ctx context.Context, plan availability.Reschedule, prev availability.AppointmentStatus) error
}
