package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/platform/validate"
)

// SearchLimit caps the number of search hits returned.
const SearchLimit = 10

type Service struct {
	repo      PatientRepository
	validator *validate.Validator
}

func NewService(repo PatientRepository) *Service {
	return &Service{repo: repo, validator: validate.New()}
}

func (s *Service) Register(ctx context.Context, req CreateRequest) (*Patient, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	p := &Patient{
		Name:                req.Name,
		Age:                 req.Age,
		Gender:              req.Gender,
		Phone:               req.Phone,
		Address:             req.Address,
		BloodGroup:          req.BloodGroup,
		EmergencyContact:    req.EmergencyContact,
		Weight:              req.Weight,
		BP:                  req.BP,
		Sugar:               req.Sugar,
		Temp:                req.Temp,
		PreExistingDiseases: req.PreExistingDiseases,
		Allergies:           req.Allergies,
		IsPregnant:          req.IsPregnant,
		PatientType:         req.PatientType,
	}
	if p.PatientType == "" {
		p.PatientType = TypeOPD
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Search returns at most SearchLimit patients whose name or phone contains
// query. A blank query matches nothing.
func (s *Service) Search(ctx context.Context, query string) ([]*Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Patient{}, nil
	}
	return s.repo.Search(ctx, query, SearchLimit)
}
