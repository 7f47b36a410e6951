package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/doctor"
)

// maxFlipAttempts bounds the re-read/re-decide loop when a doctor changes
// between the read and the flip, for a single doctor or a whole pass.
const maxFlipAttempts = 3

// Registry is the part of the doctor repository the reconciler needs.
type Registry interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
	List(ctx context.Context, filter doctor.ListFilter) ([]doctor.Doctor, error)
	SetAvailability(ctx context.Context, id uuid.UUID, version int64, change doctor.AvailabilityChange) (*doctor.Doctor, error)
	ApplyFlips(ctx context.Context, flips []doctor.Flip) ([]doctor.Doctor, error)
}

// Reconciler derives each doctor's availability from their day off and the
// current weekday.
type Reconciler struct {
	registry Registry
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

type ReconcilerOption func(*Reconciler)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(registry Registry, loc *time.Location, logger zerolog.Logger, opts ...ReconcilerOption) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	r := &Reconciler{
		registry: registry,
		loc:      loc,
		logger:   logger.With().Str("component", "availability_reconciler").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReconcileNow runs a pass at the reconciler's current time.
func (r *Reconciler) ReconcileNow(ctx context.Context) (Report, error) {
	return r.Reconcile(ctx, r.now())
}

// Reconcile runs one pass over every active doctor. The pass plans all flips
// from one listing and commits them as a unit, so a failed pass leaves every
// doctor as it was. A doctor that changed after the listing aborts the unit
// and the pass re-plans from a fresh listing. Counts are taken after the flips.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) (Report, error) {
	now = now.In(r.loc)

	for attempt := 0; attempt < maxFlipAttempts; attempt++ {
		report, err := r.pass(ctx, now)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, doctor.ErrVersionConflict) {
			return Report{}, err
		}
		r.logger.Debug().Int("attempt", attempt+1).Msg("doctors changed during pass, re-planning")
	}
	return Report{}, doctor.ErrTooManyConflicts
}

func (r *Reconciler) pass(ctx context.Context, now time.Time) (Report, error) {
	report := Report{
		CurrentDay: doctor.DayOffFor(now.Weekday()),
		RanAt:      now,
		Changes:    []Change{},
	}

	doctors, err := r.registry.List(ctx, doctor.ListFilter{Archived: false})
	if err != nil {
		return Report{}, fmt.Errorf("list doctors: %w", err)
	}

	var flips []doctor.Flip
	planned := make(map[uuid.UUID]int)
	for i := range doctors {
		change, ok := decide(&doctors[i], now)
		if !ok {
			continue
		}
		planned[doctors[i].ID] = i
		flips = append(flips, doctor.Flip{ID: doctors[i].ID, Version: doctors[i].Version, Change: change})
	}

	if len(flips) > 0 {
		updated, err := r.registry.ApplyFlips(ctx, flips)
		if err != nil {
			return Report{}, fmt.Errorf("apply %d availability flips: %w", len(flips), err)
		}
		for j := range updated {
			d := updated[j]
			doctors[planned[d.ID]] = d
			report.Changes = append(report.Changes, Change{
				DoctorID:  d.ID,
				Name:      d.Name,
				Available: d.Available,
				Toggle:    flips[j].Change.Toggle,
			})
			if d.Available {
				report.Stats.TurnedOn++
			} else {
				report.Stats.TurnedOff++
			}
		}
	}

	for i := range doctors {
		d := &doctors[i]
		if d.Archived {
			continue
		}
		report.Stats.Total++
		if d.Available {
			report.Stats.Available++
		} else {
			report.Stats.Unavailable++
		}
		if d.DayOff.Matches(now) {
			report.Stats.OnDayOff++
		}
	}

	return report, nil
}

// SyncDoctor applies the reconciliation rules to a single doctor.
func (r *Reconciler) SyncDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	d, err := r.registry.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	final, change, err := r.apply(ctx, d, r.now().In(r.loc))
	if err != nil {
		return nil, err
	}
	if change != nil {
		r.logger.Info().
			Str("doctor_id", id.String()).
			Bool("available", change.Available).
			Str("toggle", string(change.Toggle)).
			Msg("doctor availability synced")
	}
	return final, nil
}

// apply decides and writes the flip for d, re-reading on version conflicts.
// The returned change is nil when nothing was written.
func (r *Reconciler) apply(ctx context.Context, d *doctor.Doctor, now time.Time) (*doctor.Doctor, *Change, error) {
	current := d
	for attempt := 0; attempt < maxFlipAttempts; attempt++ {
		flip, ok := decide(current, now)
		if !ok {
			return current, nil, nil
		}

		updated, err := r.registry.SetAvailability(ctx, current.ID, current.Version, flip)
		if err == nil {
			return updated, &Change{
				DoctorID:  updated.ID,
				Name:      updated.Name,
				Available: updated.Available,
				Toggle:    flip.Toggle,
			}, nil
		}
		if !errors.Is(err, doctor.ErrVersionConflict) {
			return nil, nil, err
		}

		r.logger.Debug().Str("doctor_id", current.ID.String()).Int("attempt", attempt+1).Msg("doctor changed during pass, re-reading")
		current, err = r.registry.GetByID(ctx, current.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, doctor.ErrTooManyConflicts
}

// decide returns the availability write the rules call for, if any.
//
//   - on the day off and available: turn off, unless the doctor was manually
//     made available earlier the same day
//   - off the day off, unavailable because of a day-off flip: turn back on
//
// A manual suspension is never lifted.
func decide(d *doctor.Doctor, now time.Time) (doctor.AvailabilityChange, bool) {
	if d.Archived {
		return doctor.AvailabilityChange{}, false
	}

	onDayOff := d.DayOff.Matches(now)
	switch {
	case onDayOff && d.Available:
		if d.LastToggle == doctor.ToggleManual && d.LastToggleAt != nil && sameDay(d.LastToggleAt.In(now.Location()), now) {
			return doctor.AvailabilityChange{}, false
		}
		return doctor.AvailabilityChange{Available: false, Toggle: doctor.ToggleDayOffStart, At: now}, true

	case !onDayOff && !d.Available && d.LastToggle == doctor.ToggleDayOffStart:
		return doctor.AvailabilityChange{Available: true, Toggle: doctor.ToggleDayOffEnd, At: now}, true
	}
	return doctor.AvailabilityChange{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
