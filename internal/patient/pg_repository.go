package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

const patientColumns = `id, first_name, middle_name, last_name, email, archived, archived_at, created_at, updated_at`

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

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.MiddleName,
		&p.LastName,
		&email,
		&p.Archived,
		&p.ArchivedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func (r *PgRepository) Create(ctx context.Context, p *Patient) (*Patient, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, first_name, middle_name, last_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+patientColumns,
		id, p.FirstName, p.MiddleName, p.LastName, p.Email)

	created, err := scanPatient(row)
	if err != nil {
		return nil, apperr.Store("create patient", err)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, apperr.Store("get patient", err)
	}
	return p, nil
}

func (r *PgRepository) List(ctx context.Context, archived bool) ([]Patient, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE archived = $1
		ORDER BY last_name, first_name, id
	`, archived)
	if err != nil {
		return nil, apperr.Store("list patients", err)
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, apperr.Store("scan patient", err)
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list patients", err)
	}

	return result, nil
}

func (r *PgRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool, at *time.Time) (*Patient, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET archived = $2,
		    archived_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND archived = NOT $2
		RETURNING `+patientColumns,
		id, archived, at)

	p, err := scanPatient(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Store("set patient archived", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, apperr.Store("set patient archived", err)
	}
	if !exists {
		return nil, ErrPatientNotFound
	}
	return nil, ErrArchiveStateChanged
}
