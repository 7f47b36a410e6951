package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) (*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, archived bool) ([]Patient, error)

	// SetArchived flips the flag only when it currently equals !archived.
	SetArchived(ctx context.Context, id uuid.UUID, archived bool, at *time.Time) (*Patient, error)
}
