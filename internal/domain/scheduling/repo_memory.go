package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/hms/internal/availability"
)

// MemoryStore keeps every record in process memory. One mutex guards all
// tables so the booking check-and-insert is atomic.
type MemoryStore struct {
	mu           sync.Mutex
	hours        map[uuid.UUID]availability.WeeklySchedule
	blocks       map[uuid.UUID]availability.BlockedInterval
	vacations    map[uuid.UUID]availability.Vacation
	appointments map[uuid.UUID]availability.Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hours:        make(map[uuid.UUID]availability.WeeklySchedule),
		blocks:       make(map[uuid.UUID]availability.BlockedInterval),
		vacations:    make(map[uuid.UUID]availability.Vacation),
		appointments: make(map[uuid.UUID]availability.Appointment),
	}
}

func (m *MemoryStore) WorkingHours() WorkingHoursRepository { return memoryHours{m} }
func (m *MemoryStore) Blocks() BlockRepository              { return memoryBlocks{m} }
func (m *MemoryStore) Vacations() VacationRepository        { return memoryVacations{m} }
func (m *MemoryStore) Appointments() AppointmentRepository  { return memoryAppointments{m} }

// Ping satisfies the health check used for the postgres pool.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// =========== Working Hours ===========

type memoryHours struct{ m *MemoryStore }

func (r memoryHours) Get(_ context.Context, doctorID uuid.UUID) (availability.WeeklySchedule, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ws, ok := r.m.hours[doctorID]
	if !ok {
		return availability.NewWeeklySchedule(nil), nil
	}
	return availability.NewWeeklySchedule(ws), nil
}

func (r memoryHours) Replace(_ context.Context, doctorID uuid.UUID, ws availability.WeeklySchedule) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.hours[doctorID] = availability.NewWeeklySchedule(ws)
	return nil
}

// =========== Blocks ===========

type memoryBlocks struct{ m *MemoryStore }

func (r memoryBlocks) Create(_ context.Context, b *availability.BlockedInterval) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.blocks[b.ID] = *b
	return nil
}

func (r memoryBlocks) Delete(_ context.Context, doctorID, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.blocks[id]
	if !ok || b.DoctorID != doctorID {
		return fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	delete(r.m.blocks, id)
	return nil
}

func (r memoryBlocks) ListForRange(_ context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.BlockedInterval, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []availability.BlockedInterval
	for _, b := range r.m.blocks {
		if b.DoctorID != doctorID || b.Date.After(to) || b.LastDate().Before(from) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// =========== Vacations ===========

type memoryVacations struct{ m *MemoryStore }

func (r memoryVacations) Create(_ context.Context, v *availability.Vacation) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.vacations[v.ID] = *v
	return nil
}

func (r memoryVacations) Delete(_ context.Context, doctorID, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.vacations[id]
	if !ok || v.DoctorID != doctorID {
		return fmt.Errorf("vacation %s: %w", id, ErrNotFound)
	}
	delete(r.m.vacations, id)
	return nil
}

func (r memoryVacations) ListForRange(_ context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.Vacation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []availability.Vacation
	for _, v := range r.m.vacations {
		if v.DoctorID != doctorID || v.StartDate.After(to) || v.EndDate.Before(from) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// =========== Appointments ===========

type memoryAppointments struct{ m *MemoryStore }

// conflictLocked returns the open appointment overlapping a, ignoring skip.
// Callers hold m.mu.
func (m *MemoryStore) conflictLocked(a availability.Appointment, skip uuid.UUID) (uuid.UUID, bool) {
	want := a.Interval()
	for id, other := range m.appointments {
		if id == skip || other.DoctorID != a.DoctorID || !other.Status.Active() {
			continue
		}
		if other.Interval().Overlaps(want) {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (r memoryAppointments) Insert(_ context.Context, a *availability.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if a.Status.Active() {
		if id, busy := r.m.conflictLocked(*a, a.ID); busy {
			return &availability.SlotConflictError{AppointmentID: id}
		}
	}
	r.m.appointments[a.ID] = *a
	return nil
}

func (r memoryAppointments) GetByID(_ context.Context, id uuid.UUID) (*availability.Appointment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return &a, nil
}

func (r memoryAppointments) ListForRange(_ context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.Appointment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []availability.Appointment
	for _, a := range r.m.appointments {
		if a.DoctorID == doctorID && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r memoryAppointments) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*availability.Appointment, int, error) {
	items := r.filter(func(a availability.Appointment) bool { return a.DoctorID == doctorID })
	return page(items, limit, offset)
}

func (r memoryAppointments) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*availability.Appointment, int, error) {
	items := r.filter(func(a availability.Appointment) bool { return a.PatientID == patientID })
	return page(items, limit, offset)
}

func (r memoryAppointments) ListOpenByDoctor(_ context.Context, doctorID uuid.UUID) ([]*availability.Appointment, error) {
	return r.filter(func(a availability.Appointment) bool {
		return a.DoctorID == doctorID && a.Status.Active()
	}), nil
}

func (r memoryAppointments) ListOpenByPatient(_ context.Context, patientID uuid.UUID) ([]*availability.Appointment, error) {
	return r.filter(func(a availability.Appointment) bool {
		return a.PatientID == patientID && a.Status.Active()
	}), nil
}

func (r memoryAppointments) filter(keep func(availability.Appointment) bool) []*availability.Appointment {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var vals []availability.Appointment
	for _, a := range r.m.appointments {
		if keep(a) {
			vals = append(vals, a)
		}
	}
	sortAppointments(vals)
	out := make([]*availability.Appointment, len(vals))
	for i := range vals {
		out[i] = &vals[i]
	}
	return out
}

func (r memoryAppointments) UpdateStatus(_ context.Context, id uuid.UUID, from, to availability.AppointmentStatus, reason string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	if a.Status != from {
		return fmt.Errorf("appointment %s is %s: %w", id, a.Status, ErrStaleAppointment)
	}
	a.Status = to
	if reason != "" {
		a.CancellationReason = reason
	}
	a.UpdatedAt = at
	r.m.appointments[id] = a
	return nil
}

func (r memoryAppointments) Reschedule(_ context.Context, plan availability.Reschedule, prev availability.AppointmentStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	old, ok := r.m.appointments[plan.Old.ID]
	if !ok {
		return fmt.Errorf("appointment %s: %w", plan.Old.ID, ErrNotFound)
	}
	if old.Status != prev {
		return fmt.Errorf("appointment %s is %s: %w", old.ID, old.Status, ErrStaleAppointment)
	}
	if id, busy := r.m.conflictLocked(plan.New, plan.Old.ID); busy {
		return &availability.SlotConflictError{AppointmentID: id}
	}
	old.Status = plan.Old.Status
	old.UpdatedAt = plan.Old.UpdatedAt
	r.m.appointments[old.ID] = old
	r.m.appointments[plan.New.ID] = plan.New
	return nil
}

func sortAppointments(items []availability.Appointment) {
	sort.Slice(items, func(i, j int) bool {
		if c := items[i].Date.Compare(items[j].Date); c != 0 {
			return c < 0
		}
		if items[i].Time != items[j].Time {
			return items[i].Time < items[j].Time
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func page(items []*availability.Appointment, limit, offset int) ([]*availability.Appointment, int, error) {
	total := len(items)
	if offset >= total {
		return []*availability.Appointment{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return items[offset:end], total, nil
}
