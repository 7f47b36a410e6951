package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

// maxWriteAttempts bounds re-read/retry loops on version conflicts.
const maxWriteAttempts = 3

var (
	ErrDoctorArchived   = apperr.InvalidState("doctor is archived")
	ErrTooManyConflicts = &apperr.Error{Kind: apperr.KindStore, Message: "doctor kept changing during the write, giving up"}
)

// AvailabilitySync re-derives one doctor's availability right after a
// write, so the writer reads its own change without waiting a full interval.
type AvailabilitySync interface {
	SyncDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

// Service is the doctor registry used by the HTTP layer and the CLI.
type Service struct {
	repo   Repository
	sync   AvailabilitySync
	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, sync AvailabilitySync, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		sync:   sync,
		logger: logger.With().Str("component", "doctor_registry").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Onboard creates an available doctor.
func (s *Service) Onboard(ctx context.Context, in NewDoctor) (*Doctor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	dayOff, err := ParseDayOff(string(in.DayOff))
	if err != nil {
		return nil, ErrInvalidDayOff
	}

	d, err := s.repo.Create(ctx, &Doctor{
		Name:       name,
		Email:      strings.TrimSpace(in.Email),
		Speciality: strings.TrimSpace(in.Speciality),
		DayOff:     dayOff,
		Available:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}

	s.logger.Info().Str("doctor_id", d.ID.String()).Str("day_off", string(d.DayOff)).Msg("doctor onboarded")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

// ListActive returns every doctor that is not archived.
func (s *Service) ListActive(ctx context.Context) ([]Doctor, error) {
	return s.repo.List(ctx, ListFilter{Archived: false})
}

// UpdateProfile applies the changed fields in one conditional write and then
// re-derives availability for the doctor. A changed Available flag counts as
// a manual override.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*Doctor, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, ErrEmptyName
	}
	if upd.DayOff != nil {
		parsed, err := ParseDayOff(string(*upd.DayOff))
		if err != nil {
			return nil, ErrInvalidDayOff
		}
		upd.DayOff = &parsed
	}

	var updated *Doctor
	err := s.retryOnConflict(ctx, id, func(current *Doctor) error {
		if current.Archived {
			return ErrDoctorArchived
		}

		p := Profile{
			Name:         current.Name,
			Speciality:   current.Speciality,
			DayOff:       current.DayOff,
			Available:    current.Available,
			LastToggle:   current.LastToggle,
			LastToggleAt: current.LastToggleAt,
		}
		if upd.Name != nil {
			p.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Speciality != nil {
			p.Speciality = strings.TrimSpace(*upd.Speciality)
		}
		if upd.DayOff != nil {
			p.DayOff = *upd.DayOff
		}
		if upd.Available != nil && *upd.Available != current.Available {
			at := s.now()
			p.Available = *upd.Available
			p.LastToggle = ToggleManual
			p.LastToggleAt = &at
		}

		d, err := s.repo.UpdateProfile(ctx, id, current.Version, p)
		if err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("doctor_id", id.String()).
		Str("day_off", string(updated.DayOff)).
		Bool("available", updated.Available).
		Msg("doctor profile updated")

	return s.syncAfterWrite(ctx, updated), nil
}

// ToggleAvailability flips the availability flag as a manual override.
func (s *Service) ToggleAvailability(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var updated *Doctor
	err := s.retryOnConflict(ctx, id, func(current *Doctor) error {
		if current.Archived {
			return ErrDoctorArchived
		}
		d, err := s.repo.SetAvailability(ctx, id, current.Version, AvailabilityChange{
			Available: !current.Available,
			Toggle:    ToggleManual,
			At:        s.now(),
		})
		if err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("doctor_id", id.String()).
		Bool("available", updated.Available).
		Msg("doctor availability toggled manually")

	return updated, nil
}

func (s *Service) syncAfterWrite(ctx context.Context, d *Doctor) *Doctor {
	if s.sync == nil {
		return d
	}
	synced, err := s.sync.SyncDoctor(ctx, d.ID)
	if err != nil {
		// the next scheduled pass picks the change up
		s.logger.Warn().Err(err).Str("doctor_id", d.ID.String()).Msg("availability sync after profile update failed")
		return d
	}
	return synced
}

// retryOnConflict loads the doctor and runs fn, re-reading on version conflicts.
func (s *Service) retryOnConflict(ctx context.Context, id uuid.UUID, fn func(current *Doctor) error) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		lastErr = fn(current)
		if !errors.Is(lastErr, ErrVersionConflict) {
			return lastErr
		}
	}
	return ErrTooManyConflicts
}
