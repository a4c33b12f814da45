package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type Service struct {
	repo PrescriptionRepository
}

func NewService(repo PrescriptionRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Pending(ctx context.Context) ([]*Prescription, error) {
	return s.repo.Pending(ctx)
}

// Dispense hands out a pending prescription. Dispensing twice is a
// conflict.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.Dispense(ctx, id)
}
