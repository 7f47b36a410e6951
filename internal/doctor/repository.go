package doctor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

var (
	ErrDoctorNotFound = apperr.NotFound("doctor not found")
	ErrInvalidDayOff  = apperr.Validation("day_off must be None or a weekday name")
	ErrEmptyName      = apperr.Validation("name must not be empty")

	// ErrVersionConflict is returned by conditional writes when the record
	// changed since it was read. Callers re-read and retry.
	ErrVersionConflict = apperr.InvalidState("doctor was modified concurrently")
)

// Repository holds doctor records. Every write is conditional on the
// version the caller read, so writers to one doctor serialize without a
// lock spanning other doctors.
type Repository interface {
	Create(ctx context.Context, d *Doctor) (*Doctor, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, filter ListFilter) ([]Doctor, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, version int64, p Profile) (*Doctor, error)
	SetAvailability(ctx context.Context, id uuid.UUID, version int64, change AvailabilityChange) (*Doctor, error)

	// ApplyFlips commits every flip or none of them. A version mismatch on
	// any flip returns ErrVersionConflict and leaves all doctors unchanged.
	// Results are in the order of flips.
	ApplyFlips(ctx context.Context, flips []Flip) ([]Doctor, error)

	// Archive state, owned by the archive package
	SetArchived(ctx context.Context, id uuid.UUID, version int64, archived bool, at *time.Time) (*Doctor, error)
}
