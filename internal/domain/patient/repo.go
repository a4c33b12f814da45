package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository works on the patient table of the partition in ctx.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// Search matches name (case-insensitive) or phone by substring.
	Search(ctx context.Context, query string, limit int) ([]*Patient, error)
}
