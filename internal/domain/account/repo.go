package account

import (
	"context"
)

// UserRepository reads and writes app_user in the partition resolved in ctx.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, u *User) error
	// CreateIfAbsent inserts u unless the email is taken and reports whether
	// a row was written.
	CreateIfAbsent(ctx context.Context, u *User) (bool, error)
}

// SuperAdminRepository works on the registry's super_admin table.
type SuperAdminRepository interface {
	GetByEmail(ctx context.Context, email string) (*SuperAdmin, error)
	CreateIfAbsent(ctx context.Context, a *SuperAdmin) (bool, error)
}
