package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	CreatePending(ctx context.Context, visitID uuid.UUID, medicine, dosage string) error
	// Pending lists PENDING prescriptions, oldest first, with visit and
	// patient.
	Pending(ctx context.Context) ([]*Prescription, error)
	// Dispense marks a PENDING prescription DISPENSED.
	Dispense(ctx context.Context, id uuid.UUID) (*Prescription, error)
}
