package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

var ErrNameRequired = apperr.Validation("first_name and last_name are required")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a patient record.
func (s *Service) Register(ctx context.Context, p Patient) (*Patient, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.MiddleName = strings.TrimSpace(p.MiddleName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return nil, ErrNameRequired
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if email == "" {
			p.Email = nil
		} else {
			p.Email = &email
		}
	}
	p.Archived = false
	p.ArchivedAt = nil

	created, err := s.repo.Create(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// ListActive returns patients that are not archived.
func (s *Service) ListActive(ctx context.Context) ([]Patient, error) {
	return s.repo.List(ctx, false)
}
