package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

var (
	ErrPatientNotFound = apperr.NotFound("patient not found")

	// ErrArchiveStateChanged is returned when the archived flag is not the
	// one the caller expected.
	ErrArchiveStateChanged = apperr.InvalidState("patient archive state changed")
)

type Patient struct {
	ID         uuid.UUID
	FirstName  string
	MiddleName string
	LastName   string
	Email      *string
	Archived   bool
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FullName joins the non-empty name parts.
func (p Patient) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.MiddleName, p.LastName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
