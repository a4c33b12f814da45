package opd

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type VisitRepository interface {
	// NextToken returns the next token number for visits created since
	// dayStart. It must run inside a transaction and holds a lock that
	// serializes token allocation until that transaction ends.
	NextToken(ctx context.Context, dayStart time.Time) (int, error)
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	// Queue lists visits created since dayStart that are not completed,
	// by token, with their patient.
	Queue(ctx context.Context, dayStart time.Time) ([]*Visit, error)
	// Complete stores the consultation outcome and marks the visit
	// COMPLETED.
	Complete(ctx context.Context, v *Visit) error
}

// LabOrders creates pending lab orders for a visit.
type LabOrders interface {
	CreatePending(ctx context.Context, visitID uuid.UUID, tests []string) error
}

// Prescriptions creates a pending prescription for a visit.
type Prescriptions interface {
	CreatePending(ctx context.Context, visitID uuid.UUID, medicine, dosage string) error
}
