package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phc/phc/internal/platform/apperr"
)

// registryDB is the subset of *pgxpool.Pool the registry needs.
type registryDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type tenantRepoPG struct{ db registryDB }

// NewTenantRepoPG returns the registry repository. It always runs on the
// registry pool, never on a partition handle.
func NewTenantRepoPG(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepoPG{db: pool}
}

const tenantCols = `id, name, address, contact_number, license_number, admin_email,
	partition_name, status, provisioned_at, provision_error, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Address, &t.ContactNumber, &t.LicenseNumber, &t.AdminEmail,
		&t.PartitionName, &t.Status, &t.ProvisionedAt, &t.ProvisionError, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, "tenant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *tenantRepoPG) Create(ctx context.Context, t *Tenant) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO tenant (id, name, address, contact_number, license_number, admin_email, partition_name, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Address, t.ContactNumber, t.LicenseNumber, t.AdminEmail, t.PartitionName, t.Status,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.ErrDuplicateIdentifier, "license number already registered")
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r *tenantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenant WHERE id = $1`, id))
}

func (r *tenantRepoPG) GetByLicense(ctx context.Context, license string) (*Tenant, error) {
	return scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenant WHERE license_number = $1`, license))
}

func (r *tenantRepoPG) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tenant`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+tenantCols+` FROM tenant ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()
	var items []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tenants: %w", err)
	}
	return items, total, nil
}

func (r *tenantRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, fn StatusFunc) (*Tenant, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTenant(tx.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenant WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(ctx, t); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE tenant SET status = $2, provisioned_at = $3, provision_error = $4
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Status, t.ProvisionedAt, t.ProvisionError,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update tenant status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return t, nil
}

func (r *tenantRepoPG) RecordProvisionError(ctx context.Context, id uuid.UUID, msg string) error {
	if _, err := r.db.Exec(ctx, `UPDATE tenant SET provision_error = $2 WHERE id = $1`, id, msg); err != nil {
		return fmt.Errorf("record provision error: %w", err)
	}
	return nil
}
