package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")

	// ErrStatusChanged is returned by conditional writes when the row is no
	// longer in the expected status.
	ErrStatusChanged = apperr.InvalidState("appointment status changed")
)

// Repository contains all DB interactions needed by the ledger.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]Appointment, error)

	// For double-booking checks
	FindScheduledForSlot(ctx context.Context, doctorID uuid.UUID, slot Slot) (*Appointment, error)

	// Creation and updates
	CreateScheduledAppointment(ctx context.Context, doctorID, patientID uuid.UUID, slot Slot) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, t Transition) (*Appointment, error)
	SetConsultationSummary(ctx context.Context, id uuid.UUID, summary string) (*Appointment, error)
	MarkSeen(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (int64, error)

	// Dashboards
	Counts(ctx context.Context, doctorID *uuid.UUID) (Counts, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
