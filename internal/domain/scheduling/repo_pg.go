package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/hms/internal/availability"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// dbtx is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type dbtx interface {
	queryable
	Begin(ctx context.Context) (pgx.Tx, error)
}

func withTx(ctx context.Context, db dbtx, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgDate maps a civil date onto the value pgx encodes as DATE.
func pgDate(d availability.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func fromPGDate(t time.Time) availability.Date {
	return availability.DateOf(t.UTC())
}

// nullMinute maps an absent bound to NULL.
func nullMinute(t *availability.TimeOfDay) *int {
	if t == nil {
		return nil
	}
	v := int(*t)
	return &v
}

// minutePtr reverses the COALESCE(..., -1) used when reading bounds.
func minutePtr(v int) *availability.TimeOfDay {
	if v < 0 {
		return nil
	}
	t := availability.TimeOfDay(v)
	return &t
}

// =========== Working Hours Repository ===========

type workingHoursRepoPG struct{ db dbtx }

func NewWorkingHoursRepoPG(pool *pgxpool.Pool) WorkingHoursRepository {
	return &workingHoursRepoPG{db: pool}
}

func (r *workingHoursRepoPG) Get(ctx context.Context, doctorID uuid.UUID) (availability.WeeklySchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT weekday, working,
			COALESCE(start_minute, -1), COALESCE(end_minute, -1),
			COALESCE(break_start_minute, -1), COALESCE(break_end_minute, -1)
		FROM working_hours WHERE doctor_id = $1 ORDER BY weekday`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query working hours: %w", err)
	}
	defer rows.Close()

	days := make(map[time.Weekday]availability.DaySchedule, 7)
	for rows.Next() {
		var (
			weekday, start, end, breakStart, breakEnd int
			working                                   bool
		)
		if err := rows.Scan(&weekday, &working, &start, &end, &breakStart, &breakEnd); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		days[time.Weekday(weekday)] = availability.DaySchedule{
			Working:    working,
			Start:      minutePtr(start),
			End:        minutePtr(end),
			BreakStart: minutePtr(breakStart),
			BreakEnd:   minutePtr(breakEnd),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate working hours: %w", err)
	}
	return availability.NewWeeklySchedule(days), nil
}

func (r *workingHoursRepoPG) Replace(ctx context.Context, doctorID uuid.UUID, ws availability.WeeklySchedule) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM working_hours WHERE doctor_id = $1`, doctorID); err != nil {
			return fmt.Errorf("clear working hours: %w", err)
		}
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			d := ws.Day(wd)
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (doctor_id, weekday, working,
					start_minute, end_minute, break_start_minute, break_end_minute)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				doctorID, int(wd), d.Working,
				nullMinute(d.Start), nullMinute(d.End), nullMinute(d.BreakStart), nullMinute(d.BreakEnd))
			if err != nil {
				return fmt.Errorf("insert working hours %s: %w", wd, err)
			}
		}
		return nil
	})
}

// =========== Block Repository ===========

type blockRepoPG struct{ db dbtx }

func NewBlockRepoPG(pool *pgxpool.Pool) BlockRepository { return &blockRepoPG{db: pool} }

func (r *blockRepoPG) Create(ctx context.Context, b *availability.BlockedInterval) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	var (
		frequency *string
		until     *time.Time
	)
	if b.Recurrence != nil {
		f := string(b.Recurrence.Frequency)
		u := pgDate(b.Recurrence.Until)
		frequency, until = &f, &u
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO blocked_intervals (id, doctor_id, block_date, start_minute, end_minute, reason, frequency, until_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.DoctorID, pgDate(b.Date), int(b.Start), int(b.End), b.Reason, frequency, until)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (r *blockRepoPG) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blocked_intervals WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *blockRepoPG) ListForRange(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.BlockedInterval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, block_date, start_minute, end_minute, reason,
			COALESCE(frequency, ''), COALESCE(until_date, block_date)
		FROM blocked_intervals
		WHERE doctor_id = $1 AND block_date <= $3 AND COALESCE(until_date, block_date) >= $2
		ORDER BY block_date, start_minute`,
		doctorID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []availability.BlockedInterval
	for rows.Next() {
		var (
			b           availability.BlockedInterval
			date, until time.Time
			start, end  int
			frequency   string
		)
		if err := rows.Scan(&b.ID, &date, &start, &end, &b.Reason, &frequency, &until); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.DoctorID = doctorID
		b.Date = fromPGDate(date)
		b.Start, b.End = availability.TimeOfDay(start), availability.TimeOfDay(end)
		if frequency != "" {
			b.Recurrence = &availability.RecurrenceRule{
				Frequency: availability.Frequency(frequency),
				Until:     fromPGDate(until),
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// =========== Vacation Repository ===========

type vacationRepoPG struct{ db dbtx }

func NewVacationRepoPG(pool *pgxpool.Pool) VacationRepository { return &vacationRepoPG{db: pool} }

func (r *vacationRepoPG) Create(ctx context.Context, v *availability.Vacation) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	leave := v.Type
	if leave == "" {
		leave = availability.VacationLeave
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO vacations (id, doctor_id, start_date, end_date, leave_type, reason)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		v.ID, v.DoctorID, pgDate(v.StartDate), pgDate(v.EndDate), string(leave), v.Reason)
	if err != nil {
		return fmt.Errorf("insert vacation: %w", err)
	}
	v.Type = leave
	return nil
}

func (r *vacationRepoPG) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vacations WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return fmt.Errorf("delete vacation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vacation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *vacationRepoPG) ListForRange(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.Vacation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, start_date, end_date, leave_type, reason
		FROM vacations
		WHERE doctor_id = $1 AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date`,
		doctorID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, fmt.Errorf("query vacations: %w", err)
	}
	defer rows.Close()

	var out []availability.Vacation
	for rows.Next() {
		var (
			v          availability.Vacation
			start, end time.Time
			leave      string
		)
		if err := rows.Scan(&v.ID, &start, &end, &leave, &v.Reason); err != nil {
			return nil, fmt.Errorf("scan vacation: %w", err)
		}
		v.DoctorID = doctorID
		v.StartDate, v.EndDate = fromPGDate(start), fromPGDate(end)
		v.Type = availability.VacationType(leave)
		out = append(out, v)
	}
	return out, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ db dbtx }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{db: pool}
}

const apptCols = `id, doctor_id, patient_id, appt_date, start_minute, duration_minutes, status,
	rescheduled_from, cancellation_reason, notes, created_at, updated_at`

const openStatuses = `('pending', 'confirmed')`

func scanAppointment(row pgx.Row) (*availability.Appointment, error) {
	var (
		a               availability.Appointment
		date            time.Time
		start, duration int
		status          string
	)
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &date, &start, &duration, &status,
		&a.RescheduledFrom, &a.CancellationReason, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = fromPGDate(date)
	a.Time = availability.TimeOfDay(start)
	a.DurationMinutes = duration
	a.Status = availability.AppointmentStatus(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*availability.Appointment, error) {
	defer rows.Close()
	var out []*availability.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// lockDoctorDay serializes bookings for one doctor and date until the
// transaction ends.
func lockDoctorDay(ctx context.Context, tx queryable, doctorID uuid.UUID, d availability.Date) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doctorID.String()+":"+d.Key()); err != nil {
		return fmt.Errorf("lock doctor day: %w", err)
	}
	return nil
}

// insertIfFree writes a unless an open appointment overlaps it.
func insertIfFree(ctx context.Context, tx queryable, a *availability.Appointment) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, appt_date, start_minute, duration_minutes,
			status, rescheduled_from, notes, created_at, updated_at)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::date, $5::smallint, $6::smallint,
			$7::text, $8::uuid, $9::text, $10::timestamptz, $10::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $2 AND appt_date = $4 AND status IN `+openStatuses+`
				AND start_minute < $5::int + $6::int
				AND start_minute + duration_minutes > $5::int)`,
		a.ID, a.DoctorID, a.PatientID, pgDate(a.Date), int(a.Time), a.Duration(),
		string(a.Status), a.RescheduledFrom, a.Notes, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &availability.SlotConflictError{}
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var conflict uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2 AND status IN `+openStatuses+`
			AND start_minute < $4 AND start_minute + duration_minutes > $3
		ORDER BY start_minute LIMIT 1`,
		a.DoctorID, pgDate(a.Date), int(a.Time), int(a.Time)+a.Duration()).Scan(&conflict)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("find conflicting appointment: %w", err)
	}
	return &availability.SlotConflictError{AppointmentID: conflict}
}

func (r *appointmentRepoPG) Insert(ctx context.Context, a *availability.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockDoctorDay(ctx, tx, a.DoctorID, a.Date); err != nil {
			return err
		}
		return insertIfFree(ctx, tx, a)
	})
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*availability.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) ListForRange(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND appt_date BETWEEN $2 AND $3
		ORDER BY appt_date, start_minute, created_at`,
		doctorID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Appointment, len(items))
	for i, a := range items {
		out[i] = *a
	}
	return out, nil
}

func (r *appointmentRepoPG) listBy(ctx context.Context, col string, id uuid.UUID, limit, offset int) ([]*availability.Appointment, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE `+col+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+apptCols+` FROM appointments WHERE `+col+` = $1
		ORDER BY appt_date, start_minute, created_at LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query appointments: %w", err)
	}
	items, err := collectAppointments(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*availability.Appointment, int, error) {
	return r.listBy(ctx, "doctor_id", doctorID, limit, offset)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*availability.Appointment, int, error) {
	return r.listBy(ctx, "patient_id", patientID, limit, offset)
}

func (r *appointmentRepoPG) listOpen(ctx context.Context, col string, id uuid.UUID) ([]*availability.Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE `+col+` = $1 AND status IN `+openStatuses+`
		ORDER BY appt_date, start_minute`, id)
	if err != nil {
		return nil, fmt.Errorf("query open appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListOpenByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*availability.Appointment, error) {
	return r.listOpen(ctx, "doctor_id", doctorID)
}

func (r *appointmentRepoPG) ListOpenByPatient(ctx context.Context, patientID uuid.UUID) ([]*availability.Appointment, error) {
	return r.listOpen(ctx, "patient_id", patientID)
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to availability.AppointmentStatus, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $3, cancellation_reason = CASE WHEN $4::text = '' THEN cancellation_reason ELSE $4::text END, updated_at = $5
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), reason, at)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", id, ErrStaleAppointment)
	}
	return nil
}

func (r *appointmentRepoPG) Reschedule(ctx context.Context, plan availability.Reschedule, prev availability.AppointmentStatus) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockDoctorDay(ctx, tx, plan.New.DoctorID, plan.New.Date); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE appointments SET status = $3, updated_at = $4
			WHERE id = $1 AND status = $2`,
			plan.Old.ID, string(prev), string(plan.Old.Status), plan.Old.UpdatedAt)
		if err != nil {
			return fmt.Errorf("retire appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("appointment %s: %w", plan.Old.ID, ErrStaleAppointment)
		}
		next := plan.New
		return insertIfFree(ctx, tx, &next)
	})
}
