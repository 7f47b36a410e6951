package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/apperr"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/patient"
	redisclient "github.com/hackgods/doctor-availability/internal/redis"
)

const (
	EventAppointmentScheduled       = "APPOINTMENT_SCHEDULED"
	EventAppointmentCancelled       = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted       = "APPOINTMENT_COMPLETED"
	EventAppointmentSummaryAttached = "APPOINTMENT_SUMMARY_ATTACHED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	dashboardLatest  = 5
)

var (
	ErrSlotAlreadyBooked       = apperr.InvalidState("slot already has a scheduled appointment")
	ErrSlotBeingBooked         = apperr.InvalidState("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = apperr.InvalidState("invalid status transition")
	ErrNotCompleted            = apperr.InvalidState("consultation summary needs a completed appointment")
	ErrDoctorUnavailable       = apperr.InvalidState("doctor is not available")
	ErrDoctorArchived          = apperr.InvalidState("doctor is archived")
	ErrPatientArchived         = apperr.InvalidState("patient is archived")
	ErrReasonRequired          = apperr.Validation("cancellation reason is required")
	ErrSummaryRequired         = apperr.Validation("consultation summary is required")
	ErrInvalidSlot             = apperr.Validation("slot must be a YYYY-MM-DD date and an HH:MM time")
)

// DoctorDirectory is the slice of the doctor registry the ledger reads.
type DoctorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
	List(ctx context.Context, filter doctor.ListFilter) ([]doctor.Doctor, error)
}

type PatientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Service is the appointment ledger. It owns status and the terminal fields.
type Service struct {
	repo     Repository
	doctors  DoctorDirectory
	patients PatientDirectory
	locker   redisclient.Locker
	logger   zerolog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, doctors DoctorDirectory, patients PatientDirectory, locker redisclient.Locker, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		doctors:  doctors,
		patients: patients,
		locker:   locker,
		logger:   logger.With().Str("component", "appointment_ledger").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseSlot validates and normalises a slot.
func ParseSlot(date, clock string) (Slot, error) {
	d, err := time.Parse(SlotDateLayout, strings.TrimSpace(date))
	if err != nil {
		return Slot{}, ErrInvalidSlot
	}
	t, err := time.Parse(SlotTimeLayout, strings.TrimSpace(clock))
	if err != nil {
		return Slot{}, ErrInvalidSlot
	}
	return Slot{Date: d.Format(SlotDateLayout), Time: t.Format(SlotTimeLayout)}, nil
}

func slotLockKey(doctorID uuid.UUID, slot Slot) string {
	return fmt.Sprintf("slot:%s:%s:%s", doctorID, slot.Date, slot.Time)
}

// Schedule books a slot for a patient. A per-slot lock with a re-check inside
// it keeps two concurrent requests from both creating an appointment.
func (s *Service) Schedule(ctx context.Context, doctorID, patientID uuid.UUID, slot Slot) (*Appointment, error) {
	slot, err := ParseSlot(slot.Date, slot.Time)
	if err != nil {
		return nil, err
	}

	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if d.Archived {
		return nil, ErrDoctorArchived
	}
	if !d.Available {
		return nil, ErrDoctorUnavailable
	}

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if p.Archived {
		return nil, ErrPatientArchived
	}

	var created *Appointment

	err = s.locker.WithLock(ctx, slotLockKey(doctorID, slot), func(lockCtx context.Context) error {
		existing, err := s.repo.FindScheduledForSlot(lockCtx, doctorID, slot)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check scheduled appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotAlreadyBooked
		}

		appt, err := s.repo.CreateScheduledAppointment(lockCtx, doctorID, patientID, slot)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentScheduled, map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patientID.String(),
			"slot_date":  slot.Date,
			"slot_time":  slot.Time,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// Cancel moves a scheduled appointment to cancelled with a mandatory reason.
// A terminal appointment reports the state error even when the reason is
// also missing.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)

	updated, err := s.transition(ctx, id, StatusCancelled, &reason)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{"reason": reason})
	return updated, nil
}

// Complete moves a scheduled appointment to completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, id, StatusCompleted, nil)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, reason *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, appt.Status, to)
	}
	if to == StatusCancelled && (reason == nil || *reason == "") {
		return nil, ErrReasonRequired
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, Transition{
		From:               StatusScheduled,
		To:                 to,
		CancellationReason: reason,
		At:                 s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			// someone else moved it between the read and the write
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, StatusScheduled, to)
		}
		return nil, err
	}
	return updated, nil
}

// AttachSummary stores the consultation summary of a completed appointment,
// replacing any previous one.
func (s *Service) AttachSummary(ctx context.Context, id uuid.UUID, summary string) (*Appointment, error) {
	summary = strings.TrimSpace(summary)

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}
	if summary == "" {
		return nil, ErrSummaryRequired
	}

	updated, err := s.repo.SetConsultationSummary(ctx, id, summary)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, ErrNotCompleted
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentSummaryAttached, map[string]any{
		"length": len(summary),
	})
	return updated, nil
}

// MarkSeen flags appointments as seen by the doctor. An empty ids slice marks
// all of them. Failures are only logged.
func (s *Service) MarkSeen(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) {
	n, err := s.repo.MarkSeen(ctx, doctorID, ids)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("mark appointments seen failed")
		return
	}
	s.logger.Debug().Str("doctor_id", doctorID.String()).Int64("marked", n).Msg("appointments marked seen")
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// List returns appointments newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.List(ctx, ListFilter{Limit: limit, Offset: offset})
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.List(ctx, ListFilter{DoctorID: &doctorID, Limit: limit, Offset: offset})
}

// History returns the doctor's completed and cancelled appointments. Archived
// doctors keep their history.
func (s *Service) History(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, ListFilter{
		DoctorID: &doctorID,
		Statuses: []AppointmentStatus{StatusCompleted, StatusCancelled},
	})
}

// Dashboard aggregates counts for the admin view, or for one doctor when
// doctorID is set.
func (s *Service) Dashboard(ctx context.Context, doctorID *uuid.UUID) (*Dashboard, error) {
	if doctorID != nil {
		if _, err := s.doctors.GetByID(ctx, *doctorID); err != nil {
			return nil, err
		}
	}

	counts, err := s.repo.Counts(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.List(ctx, ListFilter{DoctorID: doctorID, Limit: dashboardLatest})
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{Counts: counts, LatestAppointments: latest}
	if doctorID == nil {
		doctors, err := s.doctors.List(ctx, doctor.ListFilter{})
		if err != nil {
			return nil, err
		}
		dash.Doctors = len(doctors)
	}
	return dash, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
