package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

const uniqueViolation = "23505"

const appointmentColumns = `id, doctor_id, patient_id, slot_date, slot_time, status, cancellation_reason,
	consultation_summary, seen, completed_at, cancelled_at, created_at, updated_at`

type PgRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPgRepository(pool *pgxpool.Pool, timeout time.Duration) *PgRepository {
	return &PgRepository{pool: pool, timeout: timeout}
}

func (r *PgRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, summary *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SlotDate,
		&a.SlotTime,
		&a.Status,
		&reason,
		&summary,
		&a.Seen,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.CancellationReason = reason
	a.ConsultationSummary = summary
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, apperr.Store("get appointment", err)
	}
	return a, nil
}

func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("list appointments", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, apperr.Store("list appointments", err)
	}
	return result, nil
}

func (r *PgRepository) FindScheduledForSlot(ctx context.Context, doctorID uuid.UUID, slot Slot) (*Appointment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND slot_time = $3
		  AND status = 'scheduled'
		LIMIT 1
	`, doctorID, slot.Date, slot.Time)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, apperr.Store("find scheduled appointment", err)
	}
	return a, nil
}

func (r *PgRepository) CreateScheduledAppointment(ctx context.Context, doctorID, patientID uuid.UUID, slot Slot) (*Appointment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, slot_date, slot_time, status, seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', false, now(), now())
		RETURNING `+appointmentColumns,
		id, doctorID, patientID, slot.Date, slot.Time)

	a, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, apperr.Store("create appointment", err)
	}
	return a, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, t Transition) (*Appointment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancellation_reason END,
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $5 ELSE cancelled_at END,
		    completed_at = CASE WHEN $2 = 'completed' THEN $5 ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(t.To), string(t.From), t.CancellationReason, t.At)

	return r.conditional(ctx, id, row, "update appointment status")
}

func (r *PgRepository) SetConsultationSummary(ctx context.Context, id uuid.UUID, summary string) (*Appointment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET consultation_summary = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		RETURNING `+appointmentColumns,
		id, summary)

	return r.conditional(ctx, id, row, "set consultation summary")
}

func (r *PgRepository) MarkSeen(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		tag pgconn.CommandTag
		err error
	)
	if len(ids) == 0 {
		tag, err = r.pool.Exec(ctx, `
			UPDATE appointments
			SET seen = true, updated_at = now()
			WHERE doctor_id = $1 AND seen = false
		`, doctorID)
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE appointments
			SET seen = true, updated_at = now()
			WHERE doctor_id = $1 AND id = ANY($2) AND seen = false
		`, doctorID, ids)
	}
	if err != nil {
		return 0, apperr.Store("mark appointments seen", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) Counts(ctx context.Context, doctorID *uuid.UUID) (Counts, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'scheduled'),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'cancelled'),
		       count(DISTINCT patient_id),
		       count(*) FILTER (WHERE NOT seen)
		FROM appointments
		WHERE $1::uuid IS NULL OR doctor_id = $1
	`, doctorID).Scan(&c.Appointments, &c.Scheduled, &c.Completed, &c.Cancelled, &c.Patients, &c.Unseen)
	if err != nil {
		return Counts{}, apperr.Store("count appointments", err)
	}
	return c, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return apperr.Store("insert event log", err)
	}

	return nil
}

// conditional tells a missing appointment apart from one in the wrong status.
func (r *PgRepository) conditional(ctx context.Context, id uuid.UUID, row pgx.Row, op string) (*Appointment, error) {
	a, err := scanAppointment(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Store(op, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, apperr.Store(op, err)
	}
	if !exists {
		return nil, ErrAppointmentNotFound
	}
	return nil, ErrStatusChanged
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
