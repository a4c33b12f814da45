package lab

import (
	"context"

	"github.com/google/uuid"
)

type OrderRepository interface {
	// CreatePending inserts one PENDING order per test for a visit.
	CreatePending(ctx context.Context, visitID uuid.UUID, tests []string) error
	// Pending lists PENDING orders, oldest first, with visit and patient.
	Pending(ctx context.Context) ([]*Order, error)
	// Complete stores the result of a PENDING order.
	Complete(ctx context.Context, id uuid.UUID, result string) (*Order, error)
}
