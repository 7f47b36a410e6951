package doctor

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

const doctorColumns = `id, name, email, speciality, day_off, available, last_toggle, last_toggle_at,
	archived, archived_at, version, created_at, updated_at`

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

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var dayOff, toggle string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Speciality,
		&dayOff,
		&d.Available,
		&toggle,
		&d.LastToggleAt,
		&d.Archived,
		&d.ArchivedAt,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.DayOff = DayOff(dayOff)
	d.LastToggle = ToggleSource(toggle)
	return &d, nil
}

func (r *PgRepository) Create(ctx context.Context, d *Doctor) (*Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id := d.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	dayOff := d.DayOff
	if dayOff == "" {
		dayOff = DayOffNone
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, email, speciality, day_off, available, last_toggle, last_toggle_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, now(), now())
		RETURNING `+doctorColumns,
		id, d.Name, d.Email, d.Speciality, string(dayOff), d.Available, string(d.LastToggle), d.LastToggleAt)

	created, err := scanDoctor(row)
	if err != nil {
		return nil, apperr.Store("create doctor", err)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	d, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, apperr.Store("get doctor", err)
	}
	return d, nil
}

func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE archived = $1
		ORDER BY name, id
	`, filter.Archived)
	if err != nil {
		return nil, apperr.Store("list doctors", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, apperr.Store("scan doctor", err)
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list doctors", err)
	}

	return result, nil
}

func (r *PgRepository) UpdateProfile(ctx context.Context, id uuid.UUID, version int64, p Profile) (*Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET name = $3,
		    speciality = $4,
		    day_off = $5,
		    available = $6,
		    last_toggle = $7,
		    last_toggle_at = $8,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+doctorColumns,
		id, version, p.Name, p.Speciality, string(p.DayOff), p.Available, string(p.LastToggle), p.LastToggleAt)

	return r.conditional(ctx, id, row, "update doctor profile")
}

func (r *PgRepository) SetAvailability(ctx context.Context, id uuid.UUID, version int64, change AvailabilityChange) (*Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET available = $3,
		    last_toggle = $4,
		    last_toggle_at = $5,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+doctorColumns,
		id, version, change.Available, string(change.Toggle), change.At)

	return r.conditional(ctx, id, row, "set doctor availability")
}

// ApplyFlips runs the version-checked updates in one transaction. Rows are
// updated in id order so two concurrent units cannot deadlock.
func (r *PgRepository) ApplyFlips(ctx context.Context, flips []Flip) ([]Doctor, error) {
	if len(flips) == 0 {
		return []Doctor{}, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	order := make([]int, len(flips))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return flips[order[a]].ID.String() < flips[order[b]].ID.String()
	})

	out := make([]Doctor, len(flips))
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, i := range order {
			f := flips[i]
			row := tx.QueryRow(ctx, `
				UPDATE doctors
				SET available = $3,
				    last_toggle = $4,
				    last_toggle_at = $5,
				    version = version + 1,
				    updated_at = now()
				WHERE id = $1
				  AND version = $2
				RETURNING `+doctorColumns,
				f.ID, f.Version, f.Change.Available, string(f.Change.Toggle), f.Change.At)

			d, err := scanDoctor(row)
			if err == nil {
				out[i] = *d
				continue
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return apperr.Store("apply availability flips", err)
			}

			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, f.ID).Scan(&exists); err != nil {
				return apperr.Store("apply availability flips", err)
			}
			if !exists {
				return ErrDoctorNotFound
			}
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		// begin and commit failures arrive unclassified
		return nil, apperr.Store("apply availability flips", err)
	}
	return out, nil
}

func (r *PgRepository) SetArchived(ctx context.Context, id uuid.UUID, version int64, archived bool, at *time.Time) (*Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET archived = $3,
		    archived_at = $4,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+doctorColumns,
		id, version, archived, at)

	return r.conditional(ctx, id, row, "set doctor archived")
}

// conditional scans the result of a version-guarded update and tells a
// missing doctor apart from a lost race.
func (r *PgRepository) conditional(ctx context.Context, id uuid.UUID, row pgx.Row, op string) (*Doctor, error) {
	d, err := scanDoctor(row)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Store(op, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, apperr.Store(op, err)
	}
	if !exists {
		return nil, ErrDoctorNotFound
	}
	return nil, ErrVersionConflict
}
