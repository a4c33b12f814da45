package tenant

import (
	"context"

	"github.com/google/uuid"
)

// StatusFunc mutates a locked tenant row. Returning an error aborts the
// update and releases the lock without writing.
type StatusFunc func(ctx context.Context, t *Tenant) error

type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByLicense(ctx context.Context, license string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, int, error)
	// UpdateStatus locks the row, runs fn and writes status,
	// provisioned_at and provision_error if fn succeeds.
	UpdateStatus(ctx context.Context, id uuid.UUID, fn StatusFunc) (*Tenant, error)
	RecordProvisionError(ctx context.Context, id uuid.UUID, msg string) error
}
