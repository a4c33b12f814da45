package lab

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/platform/validate"
)

type Service struct {
	repo      OrderRepository
	validator *validate.Validator
}

func NewService(repo OrderRepository) *Service {
	return &Service{repo: repo, validator: validate.New()}
}

func (s *Service) PendingOrders(ctx context.Context) ([]*Order, error) {
	return s.repo.Pending(ctx)
}

// Complete records the result of a pending order. Completed orders cannot
// be completed again.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, req CompleteRequest) (*Order, error) {
	req.Result = strings.TrimSpace(req.Result)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	return s.repo.Complete(ctx, id, req.Result)
}
