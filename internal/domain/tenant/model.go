package tenant

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusVerified  Status = "VERIFIED"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusInactive  Status = "INACTIVE"
)

var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusVerified:  true,
	StatusActive:    true,
	StatusSuspended: true,
	StatusInactive:  true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// DefaultAdminName is used when activation does not name the first admin.
const DefaultAdminName = "PHC Admin"

// Tenant maps to the tenant registry table. PartitionName is derived from ID
// at creation and never changes.
type Tenant struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Address        string     `db:"address" json:"address"`
	ContactNumber  string     `db:"contact_number" json:"contact_number"`
	LicenseNumber  string     `db:"license_number" json:"license_number"`
	AdminEmail     string     `db:"admin_email" json:"admin_email"`
	PartitionName  string     `db:"partition_name" json:"partition_name"`
	Status         Status     `db:"status" json:"status"`
	ProvisionedAt  *time.Time `db:"provisioned_at" json:"provisioned_at,omitempty"`
	ProvisionError *string    `db:"provision_error" json:"provision_error,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// CreateRequest registers a clinic. With AutoActivate the partition is
// provisioned and the first admin seeded in the same call.
type CreateRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Address       string `json:"address" validate:"max=500"`
	ContactNumber string `json:"contact_number" validate:"max=50"`
	LicenseNumber string `json:"license_number" validate:"required,max=100"`
	AdminEmail    string `json:"admin_email" validate:"required,email"`
	AdminName     string `json:"admin_name" validate:"max=200"`
	AdminPassword string `json:"admin_password" validate:"omitempty,min=8"`
	AutoActivate  bool   `json:"auto_activate"`
}

// SetStatusRequest moves a tenant to Status. AdminPassword is required when
// the move activates the tenant.
type SetStatusRequest struct {
	Status        Status `json:"status" validate:"required"`
	AdminPassword string `json:"admin_password"`
	AdminName     string `json:"admin_name"`
}
