package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/doctor"
)

type doctorRecord struct {
	mu sync.Mutex
	d  doctor.Doctor
}

// DoctorStore implements doctor.Repository.
type DoctorStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*doctorRecord
}

func NewDoctorStore() *DoctorStore {
	return &DoctorStore{rows: make(map[uuid.UUID]*doctorRecord)}
}

var _ doctor.Repository = (*DoctorStore)(nil)

func (s *DoctorStore) record(id uuid.UUID) (*doctorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[id]
	return rec, ok
}

// Create stores the doctor as given, including its availability marker.
func (s *DoctorStore) Create(ctx context.Context, d *doctor.Doctor) (*doctor.Doctor, error) {
	if err := checkCtx(ctx, "create doctor"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := *d
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	if created.DayOff == "" {
		created.DayOff = doctor.DayOffNone
	}
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[created.ID] = &doctorRecord{d: created}

	out := created
	return &out, nil
}

func (s *DoctorStore) GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	if err := checkCtx(ctx, "get doctor"); err != nil {
		return nil, err
	}

	rec, ok := s.record(id)
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := rec.d
	return &out, nil
}

func (s *DoctorStore) List(ctx context.Context, filter doctor.ListFilter) ([]doctor.Doctor, error) {
	if err := checkCtx(ctx, "list doctors"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	recs := make([]*doctorRecord, 0, len(s.rows))
	for _, rec := range s.rows {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	var result []doctor.Doctor
	for _, rec := range recs {
		rec.mu.Lock()
		d := rec.d
		rec.mu.Unlock()
		if d.Archived == filter.Archived {
			result = append(result, d)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *DoctorStore) UpdateProfile(ctx context.Context, id uuid.UUID, version int64, p doctor.Profile) (*doctor.Doctor, error) {
	return s.conditional(ctx, id, version, "update doctor profile", func(d *doctor.Doctor) {
		d.Name = p.Name
		d.Speciality = p.Speciality
		d.DayOff = p.DayOff
		d.Available = p.Available
		d.LastToggle = p.LastToggle
		d.LastToggleAt = copyTime(p.LastToggleAt)
	})
}

func (s *DoctorStore) SetAvailability(ctx context.Context, id uuid.UUID, version int64, change doctor.AvailabilityChange) (*doctor.Doctor, error) {
	return s.conditional(ctx, id, version, "set doctor availability", func(d *doctor.Doctor) {
		at := change.At
		d.Available = change.Available
		d.LastToggle = change.Toggle
		d.LastToggleAt = &at
	})
}

// ApplyFlips holds every flipped record's lock, in id order, while it checks
// all versions, and writes only when every check passes.
func (s *DoctorStore) ApplyFlips(ctx context.Context, flips []doctor.Flip) ([]doctor.Doctor, error) {
	if err := checkCtx(ctx, "apply availability flips"); err != nil {
		return nil, err
	}
	if len(flips) == 0 {
		return []doctor.Doctor{}, nil
	}

	recs := make([]*doctorRecord, len(flips))
	for i, f := range flips {
		rec, ok := s.record(f.ID)
		if !ok {
			return nil, doctor.ErrDoctorNotFound
		}
		recs[i] = rec
	}

	order := make([]int, len(flips))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return flips[order[a]].ID.String() < flips[order[b]].ID.String()
	})

	locked := make(map[*doctorRecord]bool, len(recs))
	for _, i := range order {
		if locked[recs[i]] {
			continue
		}
		recs[i].mu.Lock()
		locked[recs[i]] = true
	}
	defer func() {
		for rec := range locked {
			rec.mu.Unlock()
		}
	}()

	for i, f := range flips {
		if recs[i].d.Version != f.Version {
			return nil, doctor.ErrVersionConflict
		}
	}

	now := time.Now().UTC()
	out := make([]doctor.Doctor, len(flips))
	for i, f := range flips {
		d := &recs[i].d
		at := f.Change.At
		d.Available = f.Change.Available
		d.LastToggle = f.Change.Toggle
		d.LastToggleAt = &at
		d.Version++
		d.UpdatedAt = now
		out[i] = *d
	}
	return out, nil
}

func (s *DoctorStore) SetArchived(ctx context.Context, id uuid.UUID, version int64, archived bool, at *time.Time) (*doctor.Doctor, error) {
	return s.conditional(ctx, id, version, "set doctor archived", func(d *doctor.Doctor) {
		d.Archived = archived
		d.ArchivedAt = copyTime(at)
	})
}

// conditional applies fn only when the stored version still equals version.
func (s *DoctorStore) conditional(ctx context.Context, id uuid.UUID, version int64, op string, fn func(d *doctor.Doctor)) (*doctor.Doctor, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rec, ok := s.record(id)
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.d.Version != version {
		return nil, doctor.ErrVersionConflict
	}
	fn(&rec.d)
	rec.d.Version++
	rec.d.UpdatedAt = time.Now().UTC()

	out := rec.d
	return &out, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
