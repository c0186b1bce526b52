package scheduling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/availability"
	"github.com/hospital/hms/internal/platform/metrics"
	"github.com/hospital/hms/internal/scheduleview"
)

const (
	defaultSearchDays = 14
	maxSearchDays     = 90
)

// Service loads snapshots from the repositories, runs the availability core
// on them and persists the accepted decisions.
type Service struct {
	hours        WorkingHoursRepository
	blocks       BlockRepository
	vacations    VacationRepository
	appointments AppointmentRepository

	loc         *time.Location
	window      availability.Window
	policy      availability.Policy
	granularity int
	cache       SnapshotCache
	events      EventPublisher
	metrics     *metrics.BookingMetrics
	logger      zerolog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithWindow(w availability.Window) Option { return func(s *Service) { s.window = w } }

func WithPolicy(p availability.Policy) Option { return func(s *Service) { s.policy = p } }

func WithGranularity(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.granularity = minutes
		}
	}
}

// WithCache enables the snapshot cache for read-only queries.
func WithCache(c SnapshotCache) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m *metrics.BookingMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(hours WorkingHoursRepository, blocks BlockRepository, vacations VacationRepository, appts AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		hours:        hours,
		blocks:       blocks,
		vacations:    vacations,
		appointments: appts,
		loc:          time.UTC,
		window:       availability.DefaultWindow,
		policy:       availability.DefaultPolicy,
		granularity:  availability.DefaultGranularity,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the clinic timezone all dates and times are read in.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// -- Snapshots --

// snapshot loads everything the core needs for [from, to]. Only read-only
// callers pass cached=true.
func (s *Service) snapshot(ctx context.Context, doctorID uuid.UUID, from, to availability.Date, cached bool) (availability.Snapshot, error) {
	useCache := cached && s.cache != nil
	var version int64
	if useCache {
		snap, ver, ok, err := s.cache.Get(ctx, doctorID, from, to)
		version = ver
		switch {
		case err != nil:
			// Without a known version the load is not cached.
			useCache = false
			s.log(ctx).Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("snapshot cache read failed")
		case ok:
			s.metrics.ObserveCache(true)
			return s.localize(snap), nil
		default:
			s.metrics.ObserveCache(false)
		}
	}

	ws, err := s.hours.Get(ctx, doctorID)
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("load working hours: %w", err)
	}
	blocks, err := s.blocks.ListForRange(ctx, doctorID, from, to)
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("load blocks: %w", err)
	}
	vacations, err := s.vacations.ListForRange(ctx, doctorID, from, to)
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("load vacations: %w", err)
	}
	appts, err := s.appointments.ListForRange(ctx, doctorID, from, to)
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("load appointments: %w", err)
	}

	snap := availability.Snapshot{
		DoctorID:     doctorID,
		Schedule:     ws,
		Blocks:       blocks,
		Vacations:    vacations,
		Appointments: appts,
	}
	if useCache {
		if err := s.cache.Set(ctx, doctorID, from, to, version, snap); err != nil {
			s.log(ctx).Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("snapshot cache write failed")
		}
	}
	return s.localize(snap), nil
}

func (s *Service) localize(snap availability.Snapshot) availability.Snapshot {
	snap.Location = s.loc
	snap.Window = s.window
	return snap
}

func (s *Service) invalidate(ctx context.Context, doctorID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, doctorID); err != nil {
		s.log(ctx).Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("snapshot cache invalidation failed")
	}
}

func (s *Service) stepMinutes(g int) (int, error) {
	switch {
	case g == 0:
		return s.granularity, nil
	case g < 0, g > availability.MinutesPerDay:
		return 0, fmt.Errorf("%w: granularity %d", ErrInvalidRequest, g)
	}
	return g, nil
}

func checkRange(from, to availability.Date) error {
	if to.Before(from) {
		return fmt.Errorf("%w: %s..%s", availability.ErrInvalidDateRange, from, to)
	}
	return nil
}

// -- Availability queries --

func (s *Service) Explain(ctx context.Context, doctorID uuid.UUID, date availability.Date, t availability.TimeOfDay) (availability.Slot, error) {
	snap, err := s.snapshot(ctx, doctorID, date, date, true)
	if err != nil {
		return availability.Slot{}, err
	}
	return snap.Explain(date, t), nil
}

func (s *Service) IsAvailable(ctx context.Context, doctorID uuid.UUID, date availability.Date, t availability.TimeOfDay) (bool, error) {
	slot, err := s.Explain(ctx, doctorID, date, t)
	if err != nil {
		return false, err
	}
	return slot.Available(), nil
}

func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, date availability.Date, granularity int) ([]availability.Slot, error) {
	g, err := s.stepMinutes(granularity)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, doctorID, date, date, true)
	if err != nil {
		return nil, err
	}
	return slices.Collect(snap.ListSlots(date, g)), nil
}

// NextAvailable finds the earliest slot within days of from that fits
// duration minutes and has not already started.
func (s *Service) NextAvailable(ctx context.Context, doctorID uuid.UUID, from availability.Date, days, duration int) (availability.Slot, bool, error) {
	switch {
	case days == 0:
		days = defaultSearchDays
	case days < 0, days > maxSearchDays:
		return availability.Slot{}, false, fmt.Errorf("%w: days %d", ErrInvalidRequest, days)
	}
	duration, err := availability.NormalizeDuration(duration)
	if err != nil {
		return availability.Slot{}, false, err
	}
	snap, err := s.snapshot(ctx, doctorID, from, from.AddDays(days-1), true)
	if err != nil {
		return availability.Slot{}, false, err
	}
	slot, ok := snap.NextAvailable(from, days, s.granularity, duration, s.now())
	return slot, ok, nil
}

func (s *Service) Calendar(ctx context.Context, doctorID uuid.UUID, view CalendarView, date availability.Date) (*Calendar, error) {
	switch view {
	case ViewDay, "":
		snap, err := s.snapshot(ctx, doctorID, date, date, true)
		if err != nil {
			return nil, err
		}
		day := scheduleview.Day(snap, date, s.granularity)
		return &Calendar{View: ViewDay, Day: &day}, nil
	case ViewWeek:
		start := scheduleview.WeekStart(date)
		snap, err := s.snapshot(ctx, doctorID, start, start.AddDays(6), true)
		if err != nil {
			return nil, err
		}
		week := scheduleview.Week(snap, date, s.granularity)
		return &Calendar{View: ViewWeek, Week: &week}, nil
	case ViewMonth:
		first := availability.Date{Year: date.Year, Month: date.Month, Day: 1}
		last := first.AddDays(31)
		last = availability.Date{Year: last.Year, Month: last.Month, Day: 1}.AddDays(-1)
		snap, err := s.snapshot(ctx, doctorID, first, last, true)
		if err != nil {
			return nil, err
		}
		month := scheduleview.Month(snap, date.Year, date.Month, s.granularity)
		return &Calendar{View: ViewMonth, Month: &month}, nil
	}
	return nil, fmt.Errorf("%w: view %q", ErrInvalidRequest, view)
}

// ExportWeek renders the week containing anyDate as an xlsx workbook.
func (s *Service) ExportWeek(ctx context.Context, doctorID uuid.UUID, anyDate availability.Date) (*bytes.Buffer, string, error) {
	cal, err := s.Calendar(ctx, doctorID, ViewWeek, anyDate)
	if err != nil {
		return nil, "", err
	}
	return WeekWorkbook(doctorID, *cal.Week)
}

// -- Booking --

func outcomeOf(err error) string {
	var conflict *availability.SlotConflictError
	switch {
	case err == nil:
		return "accepted"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.Is(err, availability.ErrSlotUnavailable):
		return "unavailable"
	case errors.Is(err, availability.ErrPastDate):
		return "past_date"
	case errors.Is(err, availability.ErrModificationWindowExceeded),
		errors.Is(err, availability.ErrAppointmentClosed):
		return "refused"
	case errors.Is(err, availability.ErrInvalidTransition), errors.Is(err, ErrStaleAppointment):
		return "stale"
	case errors.Is(err, availability.ErrInvalidDuration):
		return "invalid"
	}
	return "error"
}

func (s *Service) decided(ctx context.Context, op string, req availability.BookingRequest, err error, started time.Time) {
	outcome := outcomeOf(err)
	s.metrics.ObserveDecision(op, outcome, time.Since(started))

	l := s.log(ctx)
	var evt *zerolog.Event
	switch outcome {
	case "accepted":
		evt = l.Info()
	case "error":
		evt = l.Error().Err(err)
	default:
		evt = l.Warn().Str("reason", err.Error())
	}
	evt.Str("operation", op).
		Str("doctor_id", req.DoctorID.String()).
		Str("date", req.Date.Key()).
		Str("time", req.Time.String()).
		Str("role", string(req.Role)).
		Str("outcome", outcome).
		Msg("booking decision")
}

// Book proposes req on a fresh snapshot and, when accepted, inserts the
// appointment with an atomic conflict check.
func (s *Service) Book(ctx context.Context, req BookRequest, role availability.Role) (*availability.Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	started := s.now()
	br := req.booking(role)

	snap, err := s.snapshot(ctx, req.DoctorID, req.Date, req.Date, false)
	if err != nil {
		s.decided(ctx, "book", br, err, started)
		return nil, err
	}
	if err := snap.ProposeBooking(br, started); err != nil {
		s.decided(ctx, "book", br, err, started)
		return nil, err
	}

	a := availability.NewAppointment(br, started)
	if err := s.appointments.Insert(ctx, &a); err != nil {
		s.decided(ctx, "book", br, err, started)
		return nil, err
	}
	s.invalidate(ctx, a.DoctorID)
	s.decided(ctx, "book", br, nil, started)
	s.emit(ctx, Event{Type: EventAppointmentBooked, DoctorID: a.DoctorID, Appointment: &a})
	return &a, nil
}

// Reschedule moves an appointment. The old record becomes rescheduled and a
// new one is created; both writes happen in one store operation.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest, role availability.Role) (*RescheduleResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	old, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	started := s.now()
	br := availability.BookingRequest{
		DoctorID:        old.DoctorID,
		PatientID:       old.PatientID,
		Date:            req.Date,
		Time:            *req.Time,
		DurationMinutes: req.DurationMinutes,
		Role:            role,
		Notes:           req.Notes,
	}

	snap, err := s.snapshot(ctx, old.DoctorID, req.Date, req.Date, false)
	if err != nil {
		s.decided(ctx, "reschedule", br, err, started)
		return nil, err
	}
	plan, err := snap.PlanReschedule(s.policy, *old, br, started)
	if err != nil {
		s.decided(ctx, "reschedule", br, err, started)
		return nil, err
	}
	if err := s.appointments.Reschedule(ctx, plan, old.Status); err != nil {
		s.decided(ctx, "reschedule", br, err, started)
		return nil, err
	}

	s.invalidate(ctx, old.DoctorID)
	s.metrics.ObserveTransition(string(old.Status), string(availability.StatusRescheduled))
	s.decided(ctx, "reschedule", br, nil, started)
	s.emit(ctx, Event{Type: EventAppointmentRescheduled, DoctorID: old.DoctorID, Appointment: &plan.New, Previous: &plan.Old})
	return &RescheduleResult{Old: &plan.Old, New: &plan.New}, nil
}

// CanModify reports whether role may cancel or reschedule the appointment now.
func (s *Service) CanModify(ctx context.Context, id uuid.UUID, role availability.Role) (*ModifyResponse, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &ModifyResponse{CanModify: true, Role: role, Next: availability.NextStatuses(a.Status)}
	if err := s.policy.CheckModify(*a, role, s.loc, s.now()); err != nil {
		resp.CanModify = false
		resp.Reason = err.Error()
	}
	return resp, nil
}

// transition moves an appointment to status to. Cancellations are subject
// to the modification window; staff-only transitions are not.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to availability.AppointmentStatus, role availability.Role, reason string, windowed bool) (*availability.Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if windowed {
		if err := s.policy.CheckModify(*a, role, s.loc, now); err != nil {
			return nil, err
		}
	}
	if err := availability.Transition(a.Status, to); err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, a.ID, a.Status, to, reason, now); err != nil {
		return nil, err
	}

	s.invalidate(ctx, a.DoctorID)
	s.metrics.ObserveTransition(string(a.Status), string(to))
	s.log(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Str("from", string(a.Status)).
		Str("to", string(to)).
		Str("role", string(role)).
		Msg("appointment status changed")

	a.Status = to
	a.UpdatedAt = now
	if reason != "" {
		a.CancellationReason = reason
	}
	s.emit(ctx, Event{Type: transitionEvents[to], DoctorID: a.DoctorID, Appointment: a})
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, role availability.Role, reason string) (*availability.Appointment, error) {
	return s.transition(ctx, id, availability.StatusCancelled, role, reason, true)
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, role availability.Role) (*availability.Appointment, error) {
	return s.transition(ctx, id, availability.StatusConfirmed, role, "", false)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, role availability.Role) (*availability.Appointment, error) {
	return s.transition(ctx, id, availability.StatusCompleted, role, "", false)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, role availability.Role) (*availability.Appointment, error) {
	return s.transition(ctx, id, availability.StatusNoShow, role, "", false)
}

// cancelAll cancels open appointments regardless of the notice window. Rows
// that moved in the meantime are skipped.
func (s *Service) cancelAll(ctx context.Context, open []*availability.Appointment, reason string) (int, error) {
	now := s.now()
	cancelled := 0
	doctors := make(map[uuid.UUID]struct{})
	for _, a := range open {
		err := s.appointments.UpdateStatus(ctx, a.ID, a.Status, availability.StatusCancelled, reason, now)
		if errors.Is(err, ErrStaleAppointment) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
		doctors[a.DoctorID] = struct{}{}
		s.metrics.ObserveTransition(string(a.Status), string(availability.StatusCancelled))

		done := *a
		done.Status = availability.StatusCancelled
		done.CancellationReason = reason
		done.UpdatedAt = now
		s.emit(ctx, Event{Type: EventAppointmentCancelled, DoctorID: a.DoctorID, Appointment: &done})
	}
	for id := range doctors {
		s.invalidate(ctx, id)
	}
	return cancelled, nil
}

// CancelOpenForDoctor cancels every open appointment of a doctor who is
// leaving the practice. Nothing is deleted.
func (s *Service) CancelOpenForDoctor(ctx context.Context, doctorID uuid.UUID, reason string) (int, error) {
	open, err := s.appointments.ListOpenByDoctor(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	n, err := s.cancelAll(ctx, open, reason)
	s.log(ctx).Info().Str("doctor_id", doctorID.String()).Int("cancelled", n).Msg("open appointments cancelled for doctor")
	return n, err
}

func (s *Service) CancelOpenForPatient(ctx context.Context, patientID uuid.UUID, reason string) (int, error) {
	open, err := s.appointments.ListOpenByPatient(ctx, patientID)
	if err != nil {
		return 0, err
	}
	n, err := s.cancelAll(ctx, open, reason)
	s.log(ctx).Info().Str("patient_id", patientID.String()).Int("cancelled", n).Msg("open appointments cancelled for patient")
	return n, err
}

// -- Appointments --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*availability.Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// AppointmentFilter selects appointments by doctor or by patient.
type AppointmentFilter struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*availability.Appointment, int, error) {
	switch {
	case f.DoctorID != uuid.Nil:
		return s.appointments.ListByDoctor(ctx, f.DoctorID, limit, offset)
	case f.PatientID != uuid.Nil:
		return s.appointments.ListByPatient(ctx, f.PatientID, limit, offset)
	}
	return nil, 0, fmt.Errorf("%w: doctor_id or patient_id is required", ErrInvalidRequest)
}

// -- Schedule maintenance --

func (s *Service) GetWorkingHours(ctx context.Context, doctorID uuid.UUID) (availability.WeeklySchedule, error) {
	return s.hours.Get(ctx, doctorID)
}

// UpdateWorkingHours replaces the weekly template. Existing appointments are
// left untouched even if they now fall outside the hours.
func (s *Service) UpdateWorkingHours(ctx context.Context, doctorID uuid.UUID, ws availability.WeeklySchedule) error {
	ws = availability.NewWeeklySchedule(ws)
	if err := ws.Validate(); err != nil {
		return err
	}
	if err := s.hours.Replace(ctx, doctorID, ws); err != nil {
		return err
	}
	s.invalidate(ctx, doctorID)
	s.emitSchedule(ctx, EventWorkingHoursUpdated, doctorID, nil)
	return nil
}

func (s *Service) BlockTime(ctx context.Context, doctorID uuid.UUID, b *availability.BlockedInterval) error {
	b.ID = uuid.New()
	b.DoctorID = doctorID
	if b.Date.IsZero() {
		return fmt.Errorf("%w: date is required", availability.ErrInvalidDate)
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if err := s.blocks.Create(ctx, b); err != nil {
		return err
	}
	s.invalidate(ctx, doctorID)
	s.emitSchedule(ctx, EventBlockAdded, doctorID, &b.ID)
	return nil
}

func (s *Service) RemoveBlock(ctx context.Context, doctorID, id uuid.UUID) error {
	if err := s.blocks.Delete(ctx, doctorID, id); err != nil {
		return err
	}
	s.invalidate(ctx, doctorID)
	s.emitSchedule(ctx, EventBlockRemoved, doctorID, &id)
	return nil
}

func (s *Service) ListBlocks(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.BlockedInterval, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.blocks.ListForRange(ctx, doctorID, from, to)
}

func (s *Service) AddVacation(ctx context.Context, doctorID uuid.UUID, v *availability.Vacation) error {
	v.ID = uuid.New()
	v.DoctorID = doctorID
	if v.Type == "" {
		v.Type = availability.VacationLeave
	}
	if v.StartDate.IsZero() || v.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", availability.ErrInvalidDate)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.vacations.Create(ctx, v); err != nil {
		return err
	}
	s.invalidate(ctx, doctorID)
	s.emitSchedule(ctx, EventVacationAdded, doctorID, &v.ID)
	return nil
}

func (s *Service) RemoveVacation(ctx context.Context, doctorID, id uuid.UUID) error {
	if err := s.vacations.Delete(ctx, doctorID, id); err != nil {
		return err
	}
	s.invalidate(ctx, doctorID)
	s.emitSchedule(ctx, EventVacationRemoved, doctorID, &id)
	return nil
}

func (s *Service) ListVacations(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.Vacation, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.vacations.ListForRange(ctx, doctorID, from, to)
}
