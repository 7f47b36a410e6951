package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-availability/internal/apperr"
	"github.com/hackgods/doctor-availability/internal/doctor"
)

func TestApplyFlips_CommitsAll(t *testing.T) {
	ctx := context.Background()
	store := NewDoctorStore()
	a, err := store.Create(ctx, &doctor.Doctor{Name: "a", DayOff: doctor.Monday, Available: true})
	require.NoError(t, err)
	b, err := store.Create(ctx, &doctor.Doctor{Name: "b", DayOff: doctor.Monday, Available: true})
	require.NoError(t, err)

	at := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	off := doctor.AvailabilityChange{Available: false, Toggle: doctor.ToggleDayOffStart, At: at}

	out, err := store.ApplyFlips(ctx, []doctor.Flip{
		{ID: b.ID, Version: b.Version, Change: off},
		{ID: a.ID, Version: a.Version, Change: off},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, b.ID, out[0].ID)
	assert.Equal(t, a.ID, out[1].ID)

	for _, d := range out {
		assert.False(t, d.Available)
		assert.Equal(t, doctor.ToggleDayOffStart, d.LastToggle)
		assert.Equal(t, int64(2), d.Version)
	}
}

func TestApplyFlips_StaleVersionWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewDoctorStore()
	a, err := store.Create(ctx, &doctor.Doctor{Name: "a", Available: true})
	require.NoError(t, err)
	b, err := store.Create(ctx, &doctor.Doctor{Name: "b", Available: true})
	require.NoError(t, err)

	off := doctor.AvailabilityChange{Available: false, Toggle: doctor.ToggleManual, At: time.Now()}
	_, err = store.ApplyFlips(ctx, []doctor.Flip{
		{ID: a.ID, Version: a.Version, Change: off},
		{ID: b.ID, Version: b.Version + 1, Change: off},
	})
	assert.ErrorIs(t, err, doctor.ErrVersionConflict)

	got, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Equal(t, a.Version, got.Version)
}

func TestApplyFlips_UnknownDoctor(t *testing.T) {
	ctx := context.Background()
	store := NewDoctorStore()
	a, err := store.Create(ctx, &doctor.Doctor{Name: "a", Available: true})
	require.NoError(t, err)

	_, err = store.ApplyFlips(ctx, []doctor.Flip{
		{ID: a.ID, Version: a.Version},
		{ID: uuid.New(), Version: 1},
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func TestApplyFlips_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDoctorStore().ApplyFlips(ctx, nil)
	assert.ErrorIs(t, err, apperr.ErrStore)
}
