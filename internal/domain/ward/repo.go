package ward

import (
	"context"

	"github.com/google/uuid"
)

type BedRepository interface {
	// List returns every bed by number, each occupied bed carrying its
	// active admission and patient.
	List(ctx context.Context) ([]*Bed, error)
	Count(ctx context.Context) (int, error)
	// CreateIfAbsent inserts a bed unless its number is taken.
	CreateIfAbsent(ctx context.Context, number string) (bool, error)
	Create(ctx context.Context, b *Bed) error
	// Lock reads a bed and holds a row lock until the transaction ends.
	Lock(ctx context.Context, id uuid.UUID) (*Bed, error)
	SetOccupied(ctx context.Context, id uuid.UUID, occupied bool) error
}

type AdmissionRepository interface {
	Create(ctx context.Context, a *Admission) error
	ActiveForBed(ctx context.Context, bedID uuid.UUID) (*Admission, error)
	PatientAdmitted(ctx context.Context, patientID uuid.UUID) (bool, error)
	Discharge(ctx context.Context, a *Admission) error
}
