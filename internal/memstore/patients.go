package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/patient"
)

type patientRecord struct {
	mu sync.Mutex
	p  patient.Patient
}

// PatientStore implements patient.Repository.
type PatientStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*patientRecord
}

func NewPatientStore() *PatientStore {
	return &PatientStore{rows: make(map[uuid.UUID]*patientRecord)}
}

var _ patient.Repository = (*PatientStore)(nil)

func (s *PatientStore) record(id uuid.UUID) (*patientRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[id]
	return rec, ok
}

func (s *PatientStore) Create(ctx context.Context, p *patient.Patient) (*patient.Patient, error) {
	if err := checkCtx(ctx, "create patient"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := *p
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[created.ID] = &patientRecord{p: created}

	out := created
	return &out, nil
}

func (s *PatientStore) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	if err := checkCtx(ctx, "get patient"); err != nil {
		return nil, err
	}

	rec, ok := s.record(id)
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := rec.p
	return &out, nil
}

func (s *PatientStore) List(ctx context.Context, archived bool) ([]patient.Patient, error) {
	if err := checkCtx(ctx, "list patients"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	recs := make([]*patientRecord, 0, len(s.rows))
	for _, rec := range s.rows {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	var result []patient.Patient
	for _, rec := range recs {
		rec.mu.Lock()
		p := rec.p
		rec.mu.Unlock()
		if p.Archived == archived {
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID.String() < b.ID.String()
	})
	return result, nil
}

func (s *PatientStore) SetArchived(ctx context.Context, id uuid.UUID, archived bool, at *time.Time) (*patient.Patient, error) {
	if err := checkCtx(ctx, "set patient archived"); err != nil {
		return nil, err
	}

	rec, ok := s.record(id)
	if !ok {
		return nil, patient.ErrPatientNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.p.Archived == archived {
		return nil, patient.ErrArchiveStateChanged
	}
	rec.p.Archived = archived
	rec.p.ArchivedAt = copyTime(at)
	rec.p.UpdatedAt = time.Now().UTC()

	out := rec.p
	return &out, nil
}
