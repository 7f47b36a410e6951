package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-availability/internal/apperr"
	"github.com/hackgods/doctor-availability/internal/appointment"
	"github.com/hackgods/doctor-availability/internal/archive"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/memstore"
	"github.com/hackgods/doctor-availability/internal/patient"
)

var fixedNow = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

func newService(store *memstore.Store) *archive.Service {
	return archive.NewService(store.Doctors, store.Patients, store.Appointments, zerolog.Nop(),
		archive.WithClock(func() time.Time { return fixedNow }))
}

func seed(t *testing.T, store *memstore.Store) (*doctor.Doctor, *patient.Patient) {
	t.Helper()
	ctx := context.Background()

	d, err := store.Doctors.Create(ctx, &doctor.Doctor{Name: "Dr. Ada Grey", Email: "ada@clinic.test", DayOff: doctor.Friday, Available: true})
	require.NoError(t, err)
	p, err := store.Patients.Create(ctx, &patient.Patient{FirstName: "Sam", LastName: "Hill"})
	require.NoError(t, err)
	return d, p
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    archive.Kind
		wantErr bool
	}{
		{in: "doctor", want: archive.KindDoctor},
		{in: "Doctors", want: archive.KindDoctor},
		{in: "patient", want: archive.KindPatient},
		{in: "user", want: archive.KindPatient},
		{in: "users", want: archive.KindPatient},
		{in: "nurse", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := archive.ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArchiveRestoreDoctor_RoundTripKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)
	d, p := seed(t, store)

	done, err := store.Appointments.CreateScheduledAppointment(ctx, d.ID, p.ID, appointment.Slot{Date: "2024-03-01", Time: "09:00"})
	require.NoError(t, err)
	_, err = store.Appointments.UpdateAppointmentStatus(ctx, done.ID, appointment.Transition{From: appointment.StatusScheduled, To: appointment.StatusCompleted, At: fixedNow})
	require.NoError(t, err)
	_, err = store.Appointments.CreateScheduledAppointment(ctx, d.ID, p.ID, appointment.Slot{Date: "2024-03-08", Time: "09:00"})
	require.NoError(t, err)

	before, err := store.Doctors.GetByID(ctx, d.ID)
	require.NoError(t, err)
	historyBefore, err := store.Appointments.List(ctx, appointment.ListFilter{DoctorID: &d.ID})
	require.NoError(t, err)

	res, err := svc.Archive(ctx, archive.KindDoctor, d.ID)
	require.NoError(t, err)
	assert.True(t, res.Archived)
	require.NotNil(t, res.ArchivedAt)
	assert.Equal(t, fixedNow, *res.ArchivedAt)
	assert.Equal(t, 1, res.PendingAppointments)

	active, err := store.Doctors.List(ctx, doctor.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)

	archived, err := svc.ListArchived(ctx, archive.KindDoctor)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, d.ID, archived[0].ID)
	assert.Equal(t, "Dr. Ada Grey", archived[0].Name)

	historyArchived, err := store.Appointments.List(ctx, appointment.ListFilter{DoctorID: &d.ID})
	require.NoError(t, err)
	assert.Equal(t, historyBefore, historyArchived)

	res, err = svc.Restore(ctx, archive.KindDoctor, d.ID)
	require.NoError(t, err)
	assert.False(t, res.Archived)
	assert.Nil(t, res.ArchivedAt)

	after, err := store.Doctors.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, before.DayOff, after.DayOff)
	assert.Equal(t, before.Available, after.Available)
	assert.Equal(t, before.LastToggle, after.LastToggle)
	assert.False(t, after.Archived)
	assert.Nil(t, after.ArchivedAt)

	active, err = store.Doctors.List(ctx, doctor.ListFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)

	historyAfter, err := store.Appointments.List(ctx, appointment.ListFilter{DoctorID: &d.ID})
	require.NoError(t, err)
	assert.Equal(t, historyBefore, historyAfter)
}

func TestArchiveDoctor_DoesNotCancelScheduledAppointments(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, p := seed(t, store)

	appt, err := store.Appointments.CreateScheduledAppointment(ctx, d.ID, p.ID, appointment.Slot{Date: "2024-03-08", Time: "10:30"})
	require.NoError(t, err)

	_, err = newService(store).Archive(ctx, archive.KindDoctor, d.ID)
	require.NoError(t, err)

	got, err := store.Appointments.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, got.Status)
}

func TestRestoreDoctor_LeavesAvailabilityForNextPass(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	d, err := store.Doctors.Create(ctx, &doctor.Doctor{
		Name:       "Dr. Off",
		DayOff:     doctor.Monday,
		Available:  false,
		LastToggle: doctor.ToggleDayOffStart,
	})
	require.NoError(t, err)

	_, err = svc.Archive(ctx, archive.KindDoctor, d.ID)
	require.NoError(t, err)
	_, err = svc.Restore(ctx, archive.KindDoctor, d.ID)
	require.NoError(t, err)

	got, err := store.Doctors.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, doctor.ToggleDayOffStart, got.LastToggle)
}

func TestArchive_StateErrors(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)
	d, p := seed(t, store)

	_, err := svc.Restore(ctx, archive.KindDoctor, d.ID)
	assert.ErrorIs(t, err, archive.ErrNotArchived)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = svc.Archive(ctx, archive.KindDoctor, d.ID)
	require.NoError(t, err)
	_, err = svc.Archive(ctx, archive.KindDoctor, d.ID)
	assert.ErrorIs(t, err, archive.ErrAlreadyArchived)

	_, err = svc.Restore(ctx, archive.KindPatient, p.ID)
	assert.ErrorIs(t, err, archive.ErrNotArchived)

	_, err = svc.Archive(ctx, archive.KindDoctor, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Archive(ctx, archive.KindPatient, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Archive(ctx, archive.Kind("nurse"), d.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestArchiveRestorePatient(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)
	_, p := seed(t, store)

	res, err := svc.Archive(ctx, archive.KindPatient, p.ID)
	require.NoError(t, err)
	assert.Equal(t, archive.KindPatient, res.Kind)
	assert.True(t, res.Archived)

	active, err := store.Patients.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	records, err := svc.ListArchived(ctx, archive.KindPatient)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Sam Hill", records[0].Name)

	_, err = svc.Restore(ctx, archive.KindPatient, p.ID)
	require.NoError(t, err)

	active, err = store.Patients.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Nil(t, active[0].ArchivedAt)
}
