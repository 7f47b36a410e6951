package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-availability/internal/apperr"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/memstore"
)

// 2024-01-01 is a Monday.
var (
	monday    = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	tuesday   = monday.AddDate(0, 0, 1)
	wednesday = monday.AddDate(0, 0, 2)
	thursday  = monday.AddDate(0, 0, 3)
)

func newReconciler(reg Registry) *Reconciler {
	return NewReconciler(reg, time.UTC, zerolog.Nop())
}

func addDoctor(t *testing.T, store *memstore.DoctorStore, name string, dayOff doctor.DayOff, available bool) *doctor.Doctor {
	t.Helper()
	d, err := store.Create(context.Background(), &doctor.Doctor{
		Name:      name,
		DayOff:    dayOff,
		Available: available,
	})
	require.NoError(t, err)
	return d
}

func setManual(t *testing.T, store *memstore.DoctorStore, id uuid.UUID, available bool, at time.Time) {
	t.Helper()
	ctx := context.Background()
	d, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	_, err = store.SetAvailability(ctx, id, d.Version, doctor.AvailabilityChange{
		Available: available,
		Toggle:    doctor.ToggleManual,
		At:        at,
	})
	require.NoError(t, err)
}

func getDoctor(t *testing.T, store *memstore.DoctorStore, id uuid.UUID) *doctor.Doctor {
	t.Helper()
	d, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func TestReconcile_TenDoctorsOnMonday(t *testing.T) {
	store := memstore.NewDoctorStore()
	for i := 0; i < 3; i++ {
		addDoctor(t, store, "monday-"+string(rune('a'+i)), doctor.Monday, true)
	}
	others := []doctor.DayOff{doctor.DayOffNone, doctor.Tuesday, doctor.Wednesday, doctor.Thursday, doctor.Friday, doctor.Saturday, doctor.Sunday}
	for i, off := range others {
		addDoctor(t, store, "other-"+string(rune('a'+i)), off, true)
	}

	report, err := newReconciler(store).Reconcile(context.Background(), monday)
	require.NoError(t, err)

	assert.Equal(t, Stats{
		Total:       10,
		Available:   7,
		Unavailable: 3,
		OnDayOff:    3,
		TurnedOn:    0,
		TurnedOff:   3,
	}, report.Stats)
	assert.Equal(t, doctor.Monday, report.CurrentDay)
	assert.Len(t, report.Changes, 3)
	for _, c := range report.Changes {
		assert.False(t, c.Available)
		assert.Equal(t, doctor.ToggleDayOffStart, c.Toggle)
	}
}

func TestReconcile_IsIdempotentWithinADay(t *testing.T) {
	store := memstore.NewDoctorStore()
	addDoctor(t, store, "a", doctor.Monday, true)
	addDoctor(t, store, "b", doctor.Tuesday, true)
	addDoctor(t, store, "c", doctor.DayOffNone, false)

	r := newReconciler(store)

	first, err := r.Reconcile(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.TurnedOff)

	second, err := r.Reconcile(context.Background(), monday.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, second.Stats.TurnedOn)
	assert.Zero(t, second.Stats.TurnedOff)
	assert.Empty(t, second.Changes)
	assert.Equal(t, first.Stats.Available, second.Stats.Available)
	assert.Equal(t, first.Stats.Unavailable, second.Stats.Unavailable)
}

func TestReconcile_WednesdayOffThenBackOnThursday(t *testing.T) {
	store := memstore.NewDoctorStore()
	d := addDoctor(t, store, "wed", doctor.Wednesday, true)
	r := newReconciler(store)

	wed, err := r.Reconcile(context.Background(), wednesday)
	require.NoError(t, err)
	assert.Equal(t, 1, wed.Stats.TurnedOff)
	assert.Equal(t, 0, wed.Stats.TurnedOn)

	got := getDoctor(t, store, d.ID)
	assert.False(t, got.Available)
	assert.Equal(t, doctor.ToggleDayOffStart, got.LastToggle)

	thu, err := r.Reconcile(context.Background(), thursday)
	require.NoError(t, err)
	assert.Equal(t, 1, thu.Stats.TurnedOn)
	assert.Equal(t, 0, thu.Stats.TurnedOff)

	got = getDoctor(t, store, d.ID)
	assert.True(t, got.Available)
	assert.Equal(t, doctor.ToggleDayOffEnd, got.LastToggle)
}

func TestReconcile_ManualSuspensionIsKept(t *testing.T) {
	tests := []struct {
		name   string
		dayOff doctor.DayOff
		setAt  time.Time
		runAt  time.Time
	}{
		{name: "no day off", dayOff: doctor.DayOffNone, setAt: monday, runAt: tuesday},
		{name: "other weekday", dayOff: doctor.Friday, setAt: monday, runAt: tuesday},
		{name: "suspended on the day off", dayOff: doctor.Wednesday, setAt: wednesday, runAt: thursday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.NewDoctorStore()
			d := addDoctor(t, store, "manual", tt.dayOff, true)
			setManual(t, store, d.ID, false, tt.setAt)

			report, err := newReconciler(store).Reconcile(context.Background(), tt.runAt)
			require.NoError(t, err)
			assert.Zero(t, report.Stats.TurnedOn)

			got := getDoctor(t, store, d.ID)
			assert.False(t, got.Available)
			assert.Equal(t, doctor.ToggleManual, got.LastToggle)
		})
	}
}

func TestReconcile_NoneNeverTurnsOff(t *testing.T) {
	store := memstore.NewDoctorStore()
	d := addDoctor(t, store, "always", doctor.DayOffNone, true)
	r := newReconciler(store)

	for day := 0; day < 7; day++ {
		report, err := r.Reconcile(context.Background(), monday.AddDate(0, 0, day))
		require.NoError(t, err)
		assert.Zero(t, report.Stats.TurnedOff)
		assert.Zero(t, report.Stats.OnDayOff)
	}
	assert.True(t, getDoctor(t, store, d.ID).Available)
}

func TestReconcile_ManualAvailableOnDayOffHonoredThatDay(t *testing.T) {
	store := memstore.NewDoctorStore()
	d := addDoctor(t, store, "keen", doctor.Monday, true)
	r := newReconciler(store)

	_, err := r.Reconcile(context.Background(), monday)
	require.NoError(t, err)
	require.False(t, getDoctor(t, store, d.ID).Available)

	// doctor decides to work on their day off
	setManual(t, store, d.ID, true, monday.Add(time.Hour))

	report, err := r.Reconcile(context.Background(), monday.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, report.Stats.TurnedOff)
	assert.True(t, getDoctor(t, store, d.ID).Available)

	nextMonday := monday.AddDate(0, 0, 7)
	report, err = r.Reconcile(context.Background(), nextMonday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.TurnedOff)
	assert.False(t, getDoctor(t, store, d.ID).Available)
}

func TestReconcile_SkipsArchivedDoctors(t *testing.T) {
	store := memstore.NewDoctorStore()
	addDoctor(t, store, "active", doctor.Monday, true)
	archived := addDoctor(t, store, "archived", doctor.Monday, true)

	at := monday
	_, err := store.SetArchived(context.Background(), archived.ID, archived.Version, true, &at)
	require.NoError(t, err)

	report, err := newReconciler(store).Reconcile(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Total)
	assert.Equal(t, 1, report.Stats.TurnedOff)
	assert.True(t, getDoctor(t, store, archived.ID).Available)
}

// archivingRegistry archives one doctor right after the pass has listed it.
type archivingRegistry struct {
	*memstore.DoctorStore
	target uuid.UUID
}

func (r *archivingRegistry) List(ctx context.Context, filter doctor.ListFilter) ([]doctor.Doctor, error) {
	list, err := r.DoctorStore.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	d, err := r.DoctorStore.GetByID(ctx, r.target)
	if err != nil {
		return nil, err
	}
	at := time.Now()
	if _, err := r.DoctorStore.SetArchived(ctx, d.ID, d.Version, true, &at); err != nil {
		return nil, err
	}
	return list, nil
}

func TestReconcile_DoctorArchivedMidPassDropsOut(t *testing.T) {
	store := memstore.NewDoctorStore()
	addDoctor(t, store, "stays", doctor.Monday, true)
	leaving := addDoctor(t, store, "leaves", doctor.Monday, true)

	reg := &archivingRegistry{DoctorStore: store, target: leaving.ID}
	report, err := newReconciler(reg).Reconcile(context.Background(), monday)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stats.Total)
	assert.Equal(t, 1, report.Stats.TurnedOff)

	got := getDoctor(t, store, leaving.ID)
	assert.True(t, got.Archived)
	assert.True(t, got.Available)
}

// racingRegistry edits the first doctor's profile before the first write lands.
type racingRegistry struct {
	*memstore.DoctorStore
	once sync.Once
}

func (r *racingRegistry) race(ctx context.Context, id uuid.UUID) {
	r.once.Do(func() {
		d, _ := r.DoctorStore.GetByID(ctx, id)
		_, _ = r.DoctorStore.UpdateProfile(ctx, id, d.Version, doctor.Profile{
			Name:       d.Name,
			Speciality: "cardiology",
			DayOff:     d.DayOff,
			Available:  d.Available,
			LastToggle: d.LastToggle,
		})
	})
}

func (r *racingRegistry) SetAvailability(ctx context.Context, id uuid.UUID, version int64, change doctor.AvailabilityChange) (*doctor.Doctor, error) {
	r.race(ctx, id)
	return r.DoctorStore.SetAvailability(ctx, id, version, change)
}

func (r *racingRegistry) ApplyFlips(ctx context.Context, flips []doctor.Flip) ([]doctor.Doctor, error) {
	if len(flips) > 0 {
		r.race(ctx, flips[0].ID)
	}
	return r.DoctorStore.ApplyFlips(ctx, flips)
}

func TestReconcile_RetriesAfterVersionConflict(t *testing.T) {
	store := memstore.NewDoctorStore()
	d := addDoctor(t, store, "busy", doctor.Monday, true)
	other := addDoctor(t, store, "quiet", doctor.Monday, true)

	report, err := newReconciler(&racingRegistry{DoctorStore: store}).Reconcile(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.TurnedOff)
	assert.Len(t, report.Changes, 2)

	got := getDoctor(t, store, d.ID)
	assert.False(t, got.Available)
	assert.Equal(t, "cardiology", got.Speciality)
	assert.False(t, getDoctor(t, store, other.ID).Available)
}

func TestSyncDoctor_RetriesAfterVersionConflict(t *testing.T) {
	store := memstore.NewDoctorStore()
	d := addDoctor(t, store, "busy", doctor.Monday, true)

	r := NewReconciler(&racingRegistry{DoctorStore: store}, time.UTC, zerolog.Nop(), WithClock(func() time.Time { return monday }))
	synced, err := r.SyncDoctor(context.Background(), d.ID)
	require.NoError(t, err)
	assert.False(t, synced.Available)
	assert.Equal(t, "cardiology", synced.Speciality)
}

// flakyRegistry fails the first commit of a pass with a store error.
type flakyRegistry struct {
	*memstore.DoctorStore
	failures int
}

func (r *flakyRegistry) ApplyFlips(ctx context.Context, flips []doctor.Flip) ([]doctor.Doctor, error) {
	if r.failures > 0 {
		r.failures--
		return nil, apperr.Store("apply availability flips", errors.New("connection reset"))
	}
	return r.DoctorStore.ApplyFlips(ctx, flips)
}

func TestReconcile_FailedPassFlipsNobody(t *testing.T) {
	store := memstore.NewDoctorStore()
	a := addDoctor(t, store, "a", doctor.Monday, true)
	b := addDoctor(t, store, "b", doctor.Monday, true)
	r := newReconciler(&flakyRegistry{DoctorStore: store, failures: 1})

	_, err := r.Reconcile(context.Background(), monday)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStore)
	assert.True(t, getDoctor(t, store, a.ID).Available)
	assert.True(t, getDoctor(t, store, b.ID).Available)

	report, err := r.Reconcile(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.TurnedOff)
	assert.Len(t, report.Changes, 2)
}

// stalingRegistry bumps the last planned doctor's version before the commit,
// so the unit fails on its final flip after the earlier ones checked out.
type stalingRegistry struct {
	*memstore.DoctorStore
	calls int
}

func (r *stalingRegistry) ApplyFlips(ctx context.Context, flips []doctor.Flip) ([]doctor.Doctor, error) {
	r.calls++
	last := flips[len(flips)-1]
	d, err := r.DoctorStore.GetByID(ctx, last.ID)
	if err != nil {
		return nil, err
	}
	if _, err := r.DoctorStore.UpdateProfile(ctx, d.ID, d.Version, doctor.Profile{
		Name:       d.Name,
		DayOff:     d.DayOff,
		Available:  d.Available,
		LastToggle: d.LastToggle,
	}); err != nil {
		return nil, err
	}
	return r.DoctorStore.ApplyFlips(ctx, flips)
}

func TestReconcile_GivesUpWithoutPartialFlips(t *testing.T) {
	store := memstore.NewDoctorStore()
	a := addDoctor(t, store, "a", doctor.Monday, true)
	b := addDoctor(t, store, "b", doctor.Monday, true)
	reg := &stalingRegistry{DoctorStore: store}

	_, err := newReconciler(reg).Reconcile(context.Background(), monday)
	require.Error(t, err)
	assert.ErrorIs(t, err, doctor.ErrTooManyConflicts)
	assert.Equal(t, maxFlipAttempts, reg.calls)
	assert.True(t, getDoctor(t, store, a.ID).Available)
	assert.True(t, getDoctor(t, store, b.ID).Available)
}

type failingRegistry struct {
	*memstore.DoctorStore
}

func (failingRegistry) List(context.Context, doctor.ListFilter) ([]doctor.Doctor, error) {
	return nil, apperr.Store("list doctors", errors.New("connection refused"))
}

func TestReconcile_SurfacesStoreErrors(t *testing.T) {
	_, err := newReconciler(failingRegistry{memstore.NewDoctorStore()}).Reconcile(context.Background(), monday)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStore)
}

func TestReconcile_CancelledContextIsStoreError(t *testing.T) {
	store := memstore.NewDoctorStore()
	addDoctor(t, store, "a", doctor.Monday, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newReconciler(store).Reconcile(ctx, monday)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStore)
}

func TestSyncDoctor_AppliesDayOffChange(t *testing.T) {
	store := memstore.NewDoctorStore()
	d := addDoctor(t, store, "mover", doctor.Monday, true)

	r := NewReconciler(store, time.UTC, zerolog.Nop(), WithClock(func() time.Time { return monday }))
	_, err := r.ReconcileNow(context.Background())
	require.NoError(t, err)

	current := getDoctor(t, store, d.ID)
	require.False(t, current.Available)

	_, err = store.UpdateProfile(context.Background(), d.ID, current.Version, doctor.Profile{
		Name:       current.Name,
		DayOff:     doctor.Friday,
		Available:  current.Available,
		LastToggle: current.LastToggle,
	})
	require.NoError(t, err)

	synced, err := r.SyncDoctor(context.Background(), d.ID)
	require.NoError(t, err)
	assert.True(t, synced.Available)
	assert.Equal(t, doctor.ToggleDayOffEnd, synced.LastToggle)
}

func TestSyncDoctor_UnknownDoctor(t *testing.T) {
	_, err := newReconciler(memstore.NewDoctorStore()).SyncDoctor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDecide(t *testing.T) {
	sameDayManual := monday.Add(-time.Hour)
	lastWeek := monday.AddDate(0, 0, -7)

	tests := []struct {
		name      string
		d         doctor.Doctor
		want      bool
		wantAvail bool
	}{
		{name: "day off, available", d: doctor.Doctor{DayOff: doctor.Monday, Available: true}, want: true, wantAvail: false},
		{name: "day off, already off", d: doctor.Doctor{DayOff: doctor.Monday, LastToggle: doctor.ToggleDayOffStart}},
		{name: "day off, manual on today", d: doctor.Doctor{DayOff: doctor.Monday, Available: true, LastToggle: doctor.ToggleManual, LastToggleAt: &sameDayManual}},
		{name: "day off, manual on last week", d: doctor.Doctor{DayOff: doctor.Monday, Available: true, LastToggle: doctor.ToggleManual, LastToggleAt: &lastWeek}, want: true, wantAvail: false},
		{name: "day off ended", d: doctor.Doctor{DayOff: doctor.Sunday, LastToggle: doctor.ToggleDayOffStart}, want: true, wantAvail: true},
		{name: "manual suspension", d: doctor.Doctor{DayOff: doctor.Sunday, LastToggle: doctor.ToggleManual}},
		{name: "never toggled, unavailable", d: doctor.Doctor{DayOff: doctor.DayOffNone}},
		{name: "archived", d: doctor.Doctor{DayOff: doctor.Monday, Available: true, Archived: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, ok := decide(&tt.d, monday)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.wantAvail, change.Available)
			}
		})
	}
}
