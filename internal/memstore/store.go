// Package memstore keeps doctors, patients and appointments in process
// memory. It backs STORE_DRIVER=memory and the service tests, with the same
// conditional-write semantics as the postgres repositories: each record has
// its own mutex, so a write to one doctor never waits on another.
package memstore

import (
	"context"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

// Store bundles the three repositories.
type Store struct {
	Doctors      *DoctorStore
	Patients     *PatientStore
	Appointments *AppointmentStore
}

func New() *Store {
	return &Store{
		Doctors:      NewDoctorStore(),
		Patients:     NewPatientStore(),
		Appointments: NewAppointmentStore(),
	}
}

// checkCtx reports a cancelled or expired context the way a database
// driver would.
func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Store(op, err)
	}
	return nil
}
