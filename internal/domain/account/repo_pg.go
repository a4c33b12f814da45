package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
)

type userRepoPG struct{}

// NewUserRepoPG returns the app_user repository. It has no pool of its own:
// every call runs on the partition attached to ctx.
func NewUserRepoPG() UserRepository {
	return &userRepoPG{}
}

const userCols = `id, email, password_hash, name, role, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return scanUser(q.QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE email = $1`, email))
}

func (r *userRepoPG) List(ctx context.Context) ([]*User, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+userCols+` FROM app_user ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("collect users: %w", err)
	}
	return users, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err = q.QueryRow(ctx, `
		INSERT INTO app_user (id, email, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.ErrDuplicateIdentifier, "email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) CreateIfAbsent(ctx context.Context, u *User) (bool, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	tag, err := q.Exec(ctx, `
		INSERT INTO app_user (id, email, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type superAdminRepoPG struct{ db db.Queryable }

// NewSuperAdminRepoPG returns the super_admin repository on the registry
// pool.
func NewSuperAdminRepoPG(registry db.Queryable) SuperAdminRepository {
	return &superAdminRepoPG{db: registry}
}

func (r *superAdminRepoPG) GetByEmail(ctx context.Context, email string) (*SuperAdmin, error) {
	var a SuperAdmin
	err := r.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM super_admin WHERE email = $1`, email,
	).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, "super admin not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get super admin: %w", err)
	}
	return &a, nil
}

func (r *superAdminRepoPG) CreateIfAbsent(ctx context.Context, a *SuperAdmin) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO super_admin (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING`,
		a.ID, a.Email, a.Name, a.PasswordHash)
	if err != nil {
		return false, fmt.Errorf("insert super admin: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
