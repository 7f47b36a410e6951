package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-availability/internal/apperr"
	"github.com/hackgods/doctor-availability/internal/appointment"
	"github.com/hackgods/doctor-availability/internal/archive"
	"github.com/hackgods/doctor-availability/internal/availability"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/memstore"
	"github.com/hackgods/doctor-availability/internal/patient"
	redisclient "github.com/hackgods/doctor-availability/internal/redis"
)

// Wednesday
var testNow = time.Date(2024, time.March, 6, 10, 0, 0, 0, time.UTC)

type testServer struct {
	store   *memstore.Store
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	clock := func() time.Time { return testNow }
	store := memstore.New()
	locker := redisclient.NewLocalLocker()

	reconciler := availability.NewReconciler(store.Doctors, time.UTC, logger, availability.WithClock(clock))
	scheduler := availability.NewScheduler(reconciler, locker, nil, availability.SchedulerConfig{
		Interval:  time.Minute,
		Timeout:   5 * time.Second,
		LockRetry: 10 * time.Millisecond,
	}, logger)
	t.Cleanup(func() { _ = scheduler.Stop(context.Background()) })

	handler := NewRouter(RouterConfig{
		Doctors:      doctor.NewService(store.Doctors, reconciler, logger, doctor.WithClock(clock)),
		Patients:     patient.NewService(store.Patients),
		Appointments: appointment.NewService(store.Appointments, store.Doctors, store.Patients, locker, logger, appointment.WithClock(clock)),
		Archive:      archive.NewService(store.Doctors, store.Patients, store.Appointments, logger, archive.WithClock(clock)),
		Availability: scheduler,
		Logger:       logger,
		Env:          "test",
		Version:      "test",
	})

	return &testServer{store: store, handler: handler}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doctor(t *testing.T, name string, dayOff doctor.DayOff) *doctor.Doctor {
	t.Helper()
	d, err := s.store.Doctors.Create(context.Background(), &doctor.Doctor{Name: name, DayOff: dayOff, Available: true})
	require.NoError(t, err)
	return d
}

func (s *testServer) patient(t *testing.T) *patient.Patient {
	t.Helper()
	p, err := s.store.Patients.Create(context.Background(), &patient.Patient{FirstName: "Ana", LastName: "Ruiz"})
	require.NoError(t, err)
	return p
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		details string
	}{
		{"validation", apperr.Validation("bad input"), http.StatusBadRequest, "validation", "bad input"},
		{"not found", fmt.Errorf("load: %w", apperr.NotFound("missing")), http.StatusNotFound, "not_found", "load: missing"},
		{"invalid state", appointment.ErrInvalidStatusTransition, http.StatusConflict, "invalid_state", appointment.ErrInvalidStatusTransition.Error()},
		{"store", apperr.Store("list doctors", errors.New("dial tcp db.internal:5432: connection reset")), http.StatusServiceUnavailable, "store", storeUnavailableMessage},
		{"unclassified", errors.New("relation doctors does not exist"), http.StatusInternalServerError, "internal_error", internalErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := zerolog.New(&logs)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(logger.WithContext(req.Context()))

			rec := httptest.NewRecorder()
			writeServiceError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, body.Error)
			assert.Equal(t, tt.details, body.Details)

			if tt.status >= http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "doctors")
				assert.NotContains(t, rec.Body.String(), "5432")
				assert.Contains(t, logs.String(), tt.err.Error())
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/health/live", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadiness_DisabledDependencies(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "disabled", body.Dependencies["postgres"])
	assert.Equal(t, "disabled", body.Dependencies["redis"])
}

func TestAvailabilityCheck(t *testing.T) {
	s := newTestServer(t)
	off := s.doctor(t, "Dr. Wednesday", doctor.Wednesday)
	s.doctor(t, "Dr. Friday", doctor.Friday)

	rec := s.do(t, http.MethodGet, "/availability/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/availability/check", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[availability.Report](t, rec)
	assert.Equal(t, availability.Stats{Total: 2, Available: 1, Unavailable: 1, OnDayOff: 1, TurnedOff: 1}, report.Stats)
	assert.Equal(t, doctor.Wednesday, report.CurrentDay)
	assert.Equal(t, availability.TriggerManual, report.Trigger)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, off.ID, report.Changes[0].DoctorID)

	assert.Contains(t, rec.Body.String(), `"onDayOff":1`)
	assert.Contains(t, rec.Body.String(), `"turnedOff":1`)

	rec = s.do(t, http.MethodGet, "/availability/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.Stats, decode[availability.Report](t, rec).Stats)

	rec = s.do(t, http.MethodGet, "/doctors/"+off.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[DoctorResponse](t, rec)
	assert.False(t, got.Available)
	assert.Equal(t, string(doctor.ToggleDayOffStart), got.LastToggle)
}

func TestDoctorRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/doctors", CreateDoctorRequest{Name: "Dr. Okafor", Speciality: "cardiology", DayOff: "friday"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[DoctorResponse](t, rec)
	assert.Equal(t, "Friday", created.DayOff)
	assert.True(t, created.Available)

	rec = s.do(t, http.MethodPost, "/doctors", CreateDoctorRequest{Name: "Dr. Nobody", DayOff: "someday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// moving the day off to today takes effect right away
	dayOff := "wednesday"
	rec = s.do(t, http.MethodPut, "/doctors/"+created.ID.String()+"/profile", UpdateProfileRequest{DayOff: &dayOff})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[DoctorResponse](t, rec)
	assert.Equal(t, "Wednesday", updated.DayOff)
	assert.False(t, updated.Available)

	rec = s.do(t, http.MethodPost, "/doctors/"+created.ID.String()+"/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	toggled := decode[DoctorResponse](t, rec)
	assert.True(t, toggled.Available)
	assert.Equal(t, string(doctor.ToggleManual), toggled.LastToggle)

	rec = s.do(t, http.MethodGet, "/doctors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]DoctorResponse](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/doctors/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/doctors/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppointmentLifecycle(t *testing.T) {
	s := newTestServer(t)
	d := s.doctor(t, "Dr. Lee", doctor.Sunday)
	p := s.patient(t)

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		DoctorID:  d.ID.String(),
		PatientID: p.ID.String(),
		SlotDate:  "2024-03-07",
		SlotTime:  "09:30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "scheduled", appt.Status)
	path := "/appointments/" + appt.ID.String()

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		DoctorID:  d.ID.String(),
		PatientID: p.ID.String(),
		SlotDate:  "2024-03-07",
		SlotTime:  "09:30",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{DoctorID: "x", PatientID: p.ID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path+"/summary", SummaryRequest{Summary: "too early"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, path+"/cancel", CancelAppointmentRequest{Reason: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, path+"/cancel", CancelAppointmentRequest{Reason: "patient travelling"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "patient travelling", *cancelled.CancellationReason)

	rec = s.do(t, http.MethodPost, path+"/cancel", CancelAppointmentRequest{Reason: ""})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, path+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/complete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/doctors/"+d.ID.String()+"/appointments/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AppointmentResponse](t, rec), 1)
}

func TestCompleteAndSummarize(t *testing.T) {
	s := newTestServer(t)
	d := s.doctor(t, "Dr. Lee", doctor.Sunday)
	p := s.patient(t)

	rec := s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		DoctorID: d.ID.String(), PatientID: p.ID.String(), SlotDate: "2024-03-08", SlotTime: "14:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	path := "/appointments/" + decode[AppointmentResponse](t, rec).ID.String()

	rec = s.do(t, http.MethodPost, path+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPut, path+"/summary", SummaryRequest{Summary: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path+"/summary", SummaryRequest{Summary: "rest and fluids"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[AppointmentResponse](t, rec)
	require.NotNil(t, got.ConsultationSummary)
	assert.Equal(t, "rest and fluids", *got.ConsultationSummary)

	rec = s.do(t, http.MethodPost, "/appointments/seen", MarkSeenRequest{DoctorID: d.ID.String()})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/dashboard?doctor_id="+d.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[DashboardResponse](t, rec)
	assert.Equal(t, 1, dash.Completed)
	assert.Equal(t, 0, dash.Unseen)
	assert.Len(t, dash.LatestAppointments, 1)

	rec = s.do(t, http.MethodGet, "/dashboard?doctor_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/appointments?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/appointments?doctor_id="+d.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AppointmentResponse](t, rec), 1)
}

func TestArchiveRoutes(t *testing.T) {
	s := newTestServer(t)
	d := s.doctor(t, "Dr. Lee", doctor.Sunday)
	p := s.patient(t)

	rec := s.do(t, http.MethodPost, "/doctors/"+d.ID.String()+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[archive.Result](t, rec)
	assert.True(t, res.Archived)
	require.NotNil(t, res.ArchivedAt)

	rec = s.do(t, http.MethodPost, "/doctors/"+d.ID.String()+"/archive", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/doctors", nil)
	assert.Empty(t, decode[[]DoctorResponse](t, rec))

	rec = s.do(t, http.MethodGet, "/archive/doctors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]archive.Record](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, d.ID, records[0].ID)

	rec = s.do(t, http.MethodPost, "/doctors/"+d.ID.String()+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[archive.Result](t, rec).Archived)

	rec = s.do(t, http.MethodPost, "/patients/"+p.ID.String()+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/archive/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]archive.Record](t, rec), 1)

	rec = s.do(t, http.MethodPost, "/patients/"+p.ID.String()+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/patients/"+p.ID.String()+"/restore", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/archive/widgets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/patients/"+uuid.NewString()+"/archive", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatientRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/patients", CreatePatientRequest{FirstName: "Sam", LastName: "Ito"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[PatientResponse](t, rec)
	assert.Equal(t, "Sam Ito", created.FullName)

	rec = s.do(t, http.MethodPost, "/patients", CreatePatientRequest{FirstName: "Sam"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/patients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PatientResponse](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/patients/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
