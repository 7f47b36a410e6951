package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/appointment"
)

type appointmentRecord struct {
	mu  sync.Mutex
	seq int64
	a   appointment.Appointment
}

// AppointmentStore implements appointment.Repository.
type AppointmentStore struct {
	mu     sync.RWMutex
	seq    int64
	rows   map[uuid.UUID]*appointmentRecord
	events []appointment.EventLog
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{rows: make(map[uuid.UUID]*appointmentRecord)}
}

var _ appointment.Repository = (*AppointmentStore)(nil)

func (s *AppointmentStore) record(id uuid.UUID) (*appointmentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[id]
	return rec, ok
}

// snapshot copies every record, newest first.
func (s *AppointmentStore) snapshot() []appointment.Appointment {
	s.mu.RLock()
	recs := make([]*appointmentRecord, 0, len(s.rows))
	for _, rec := range s.rows {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	out := make([]appointment.Appointment, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, copyAppointment(rec.a))
		rec.mu.Unlock()
	}
	return out
}

func (s *AppointmentStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if err := checkCtx(ctx, "get appointment"); err != nil {
		return nil, err
	}

	rec, ok := s.record(id)
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := copyAppointment(rec.a)
	return &out, nil
}

func (s *AppointmentStore) List(ctx context.Context, filter appointment.ListFilter) ([]appointment.Appointment, error) {
	if err := checkCtx(ctx, "list appointments"); err != nil {
		return nil, err
	}

	var result []appointment.Appointment
	for _, a := range s.snapshot() {
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, a.Status) {
			continue
		}
		result = append(result, a)
	}

	if filter.Limit > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
		if len(result) > filter.Limit {
			result = result[:filter.Limit]
		}
	}
	return result, nil
}

func (s *AppointmentStore) FindScheduledForSlot(ctx context.Context, doctorID uuid.UUID, slot appointment.Slot) (*appointment.Appointment, error) {
	if err := checkCtx(ctx, "find scheduled appointment"); err != nil {
		return nil, err
	}

	for _, a := range s.snapshot() {
		if a.DoctorID == doctorID && a.SlotDate == slot.Date && a.SlotTime == slot.Time && a.Status == appointment.StatusScheduled {
			return &a, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (s *AppointmentStore) CreateScheduledAppointment(ctx context.Context, doctorID, patientID uuid.UUID, slot appointment.Slot) (*appointment.Appointment, error) {
	if err := checkCtx(ctx, "create appointment"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// same guarantee as the partial unique index in postgres
	for _, rec := range s.rows {
		rec.mu.Lock()
		taken := rec.a.DoctorID == doctorID && rec.a.SlotDate == slot.Date &&
			rec.a.SlotTime == slot.Time && rec.a.Status == appointment.StatusScheduled
		rec.mu.Unlock()
		if taken {
			return nil, appointment.ErrSlotAlreadyBooked
		}
	}

	now := time.Now().UTC()
	s.seq++
	a := appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		SlotDate:  slot.Date,
		SlotTime:  slot.Time,
		Status:    appointment.StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.rows[a.ID] = &appointmentRecord{seq: s.seq, a: a}

	return &a, nil
}

func (s *AppointmentStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, t appointment.Transition) (*appointment.Appointment, error) {
	return s.conditional(ctx, id, t.From, "update appointment status", func(a *appointment.Appointment) {
		at := t.At
		a.Status = t.To
		switch t.To {
		case appointment.StatusCancelled:
			if t.CancellationReason != nil {
				reason := *t.CancellationReason
				a.CancellationReason = &reason
			}
			a.CancelledAt = &at
		case appointment.StatusCompleted:
			a.CompletedAt = &at
		}
	})
}

func (s *AppointmentStore) SetConsultationSummary(ctx context.Context, id uuid.UUID, summary string) (*appointment.Appointment, error) {
	return s.conditional(ctx, id, appointment.StatusCompleted, "set consultation summary", func(a *appointment.Appointment) {
		a.ConsultationSummary = &summary
	})
}

func (s *AppointmentStore) conditional(ctx context.Context, id uuid.UUID, from appointment.AppointmentStatus, op string, fn func(a *appointment.Appointment)) (*appointment.Appointment, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rec, ok := s.record(id)
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.a.Status != from {
		return nil, appointment.ErrStatusChanged
	}
	fn(&rec.a)
	rec.a.UpdatedAt = time.Now().UTC()

	out := copyAppointment(rec.a)
	return &out, nil
}

func (s *AppointmentStore) MarkSeen(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if err := checkCtx(ctx, "mark appointments seen"); err != nil {
		return 0, err
	}

	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for id, rec := range s.rows {
		if len(ids) > 0 && !wanted[id] {
			continue
		}
		rec.mu.Lock()
		if rec.a.DoctorID == doctorID && !rec.a.Seen {
			rec.a.Seen = true
			rec.a.UpdatedAt = time.Now().UTC()
			n++
		}
		rec.mu.Unlock()
	}
	return n, nil
}

func (s *AppointmentStore) Counts(ctx context.Context, doctorID *uuid.UUID) (appointment.Counts, error) {
	if err := checkCtx(ctx, "count appointments"); err != nil {
		return appointment.Counts{}, err
	}

	var c appointment.Counts
	patients := make(map[uuid.UUID]struct{})
	for _, a := range s.snapshot() {
		if doctorID != nil && a.DoctorID != *doctorID {
			continue
		}
		c.Appointments++
		switch a.Status {
		case appointment.StatusScheduled:
			c.Scheduled++
		case appointment.StatusCompleted:
			c.Completed++
		case appointment.StatusCancelled:
			c.Cancelled++
		}
		if !a.Seen {
			c.Unseen++
		}
		patients[a.PatientID] = struct{}{}
	}
	c.Patients = len(patients)
	return c, nil
}

func (s *AppointmentStore) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	if err := checkCtx(ctx, "insert event log"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns the event log in insertion order.
func (s *AppointmentStore) Events() []appointment.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appointment.EventLog, len(s.events))
	copy(out, s.events)
	return out
}

func hasStatus(statuses []appointment.AppointmentStatus, st appointment.AppointmentStatus) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func copyAppointment(a appointment.Appointment) appointment.Appointment {
	a.CancellationReason = copyString(a.CancellationReason)
	a.ConsultationSummary = copyString(a.ConsultationSummary)
	a.CompletedAt = copyTime(a.CompletedAt)
	a.CancelledAt = copyTime(a.CancelledAt)
	return a
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
