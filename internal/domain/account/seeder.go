package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/db"
)

// Seeder creates the first clinic admin inside a freshly provisioned
// partition. It implements tenant.AdminSeeder.
type Seeder struct {
	handles db.HandleSource
	users   UserRepository
}

func NewSeeder(handles db.HandleSource, users UserRepository) *Seeder {
	return &Seeder{handles: handles, users: users}
}

// SeedAdmin inserts an ADMIN user unless the email already exists in the
// partition, in which case the existing row and its password are kept.
func (s *Seeder) SeedAdmin(ctx context.Context, partition, email, name, passwordHash string) (bool, error) {
	h, err := s.handles.Get(ctx, partition)
	if err != nil {
		return false, fmt.Errorf("get handle for %s: %w", partition, err)
	}
	ctx = db.WithHandle(ctx, h)

	return s.users.CreateIfAbsent(ctx, &User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Name:         name,
		Role:         auth.RoleAdmin,
	})
}
