// Package archive soft-deletes doctors and patients. Archiving only flips the
// archived flag; appointment history is never touched.
package archive

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/apperr"
	"github.com/hackgods/doctor-availability/internal/appointment"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/patient"
)

const maxWriteAttempts = 3

type Kind string

const (
	KindDoctor  Kind = "doctor"
	KindPatient Kind = "patient"
)

var (
	ErrUnknownKind     = apperr.Validation("kind must be doctor or patient")
	ErrAlreadyArchived = apperr.InvalidState("already archived")
	ErrNotArchived     = apperr.InvalidState("not archived")
)

// ParseKind accepts singular and plural names. "user" is the patient kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "doctor", "doctors":
		return KindDoctor, nil
	case "patient", "patients", "user", "users":
		return KindPatient, nil
	}
	return "", ErrUnknownKind
}

// Result is the outcome of an archive or restore.
type Result struct {
	Kind       Kind       `json:"kind"`
	ID         uuid.UUID  `json:"id"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	// PendingAppointments counts scheduled appointments left in place when a
	// doctor is archived.
	PendingAppointments int `json:"pending_appointments,omitempty"`
}

// Record is one row of an archived listing.
type Record struct {
	Kind       Kind       `json:"kind"`
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

type AppointmentCounter interface {
	Counts(ctx context.Context, doctorID *uuid.UUID) (appointment.Counts, error)
}

type Service struct {
	doctors      doctor.Repository
	patients     patient.Repository
	appointments AppointmentCounter
	logger       zerolog.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(doctors doctor.Repository, patients patient.Repository, appointments AppointmentCounter, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		doctors:      doctors,
		patients:     patients,
		appointments: appointments,
		logger:       logger.With().Str("component", "archive").Logger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Archive(ctx context.Context, kind Kind, id uuid.UUID) (Result, error) {
	switch kind {
	case KindDoctor:
		return s.setDoctorArchived(ctx, id, true)
	case KindPatient:
		return s.setPatientArchived(ctx, id, true)
	}
	return Result{}, ErrUnknownKind
}

// Restore brings the record back to the active listings. A restored doctor
// keeps its stored availability until the next reconciliation pass.
func (s *Service) Restore(ctx context.Context, kind Kind, id uuid.UUID) (Result, error) {
	switch kind {
	case KindDoctor:
		return s.setDoctorArchived(ctx, id, false)
	case KindPatient:
		return s.setPatientArchived(ctx, id, false)
	}
	return Result{}, ErrUnknownKind
}

func (s *Service) ListArchived(ctx context.Context, kind Kind) ([]Record, error) {
	switch kind {
	case KindDoctor:
		doctors, err := s.doctors.List(ctx, doctor.ListFilter{Archived: true})
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0, len(doctors))
		for _, d := range doctors {
			records = append(records, Record{Kind: KindDoctor, ID: d.ID, Name: d.Name, Email: d.Email, ArchivedAt: d.ArchivedAt})
		}
		return records, nil

	case KindPatient:
		patients, err := s.patients.List(ctx, true)
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0, len(patients))
		for _, p := range patients {
			r := Record{Kind: KindPatient, ID: p.ID, Name: p.FullName(), ArchivedAt: p.ArchivedAt}
			if p.Email != nil {
				r.Email = *p.Email
			}
			records = append(records, r)
		}
		return records, nil
	}
	return nil, ErrUnknownKind
}

// setDoctorArchived goes through the doctor's version check so it never
// interleaves with an availability write on the same doctor.
func (s *Service) setDoctorArchived(ctx context.Context, id uuid.UUID, archived bool) (Result, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		current, err := s.doctors.GetByID(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if current.Archived == archived {
			return Result{}, stateError(archived)
		}

		var at *time.Time
		if archived {
			now := s.now()
			at = &now
		}

		updated, err := s.doctors.SetArchived(ctx, id, current.Version, archived, at)
		if errors.Is(err, doctor.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Result{}, err
		}

		res := Result{Kind: KindDoctor, ID: id, Archived: updated.Archived, ArchivedAt: updated.ArchivedAt}
		if archived {
			res.PendingAppointments = s.pendingAppointments(ctx, id)
		}
		s.logger.Info().Str("doctor_id", id.String()).Bool("archived", archived).Msg("doctor archive state changed")
		return res, nil
	}
	return Result{}, doctor.ErrTooManyConflicts
}

// pendingAppointments reports scheduled appointments that archiving leaves
// in place. They are not cancelled.
func (s *Service) pendingAppointments(ctx context.Context, doctorID uuid.UUID) int {
	if s.appointments == nil {
		return 0
	}
	counts, err := s.appointments.Counts(ctx, &doctorID)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("could not count pending appointments of archived doctor")
		return 0
	}
	if counts.Scheduled > 0 {
		s.logger.Warn().
			Str("doctor_id", doctorID.String()).
			Int("scheduled", counts.Scheduled).
			Msg("archived doctor still has scheduled appointments")
	}
	return counts.Scheduled
}

func (s *Service) setPatientArchived(ctx context.Context, id uuid.UUID, archived bool) (Result, error) {
	current, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if current.Archived == archived {
		return Result{}, stateError(archived)
	}

	var at *time.Time
	if archived {
		now := s.now()
		at = &now
	}

	updated, err := s.patients.SetArchived(ctx, id, archived, at)
	if err != nil {
		if errors.Is(err, patient.ErrArchiveStateChanged) {
			return Result{}, stateError(archived)
		}
		return Result{}, err
	}

	s.logger.Info().Str("patient_id", id.String()).Bool("archived", archived).Msg("patient archive state changed")
	return Result{Kind: KindPatient, ID: id, Archived: updated.Archived, ArchivedAt: updated.ArchivedAt}, nil
}

func stateError(archived bool) error {
	if archived {
		return ErrAlreadyArchived
	}
	return ErrNotArchived
}
