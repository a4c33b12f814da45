package account

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/platform/apperr"
)

// Tenant status login errors. Each is a 403 with its own message so the
// client can tell a clinic awaiting approval from one that was switched off.
var (
	ErrTenantPending      = apperr.New(apperr.ErrForbidden, "clinic registration is pending approval")
	ErrTenantNotActivated = apperr.New(apperr.ErrForbidden, "clinic is verified but not yet activated")
	ErrTenantSuspended    = apperr.New(apperr.ErrForbidden, "clinic account is suspended")
	ErrTenantInactive     = apperr.New(apperr.ErrForbidden, "clinic account is inactive")
)

var errInvalidCredentials = apperr.New(apperr.ErrInvalidCredentials, "invalid credentials")

// User is a clinic user stored in a partition's app_user table.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SuperAdmin is a platform operator stored in the registry.
type SuperAdmin struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Credentials is either PlatformCredentials or TenantCredentials. The set is
// closed; Login rejects anything else.
type Credentials interface {
	loginPath() string
}

// PlatformCredentials authenticate a super-admin against the registry.
type PlatformCredentials struct {
	Email    string
	Password string
}

func (PlatformCredentials) loginPath() string { return "platform" }

// TenantCredentials authenticate a clinic user inside the partition of the
// clinic holding LicenseNumber.
type TenantCredentials struct {
	LicenseNumber string
	Email         string
	Password      string
}

func (TenantCredentials) loginPath() string { return "tenant" }

// LoginRequest is the body of POST /api/auth/login. A license number selects
// the clinic login path.
type LoginRequest struct {
	LicenseNumber string `json:"license_number"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
}

func (r LoginRequest) Credentials() Credentials {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if license := strings.TrimSpace(r.LicenseNumber); license != "" {
		return TenantCredentials{LicenseNumber: license, Email: email, Password: r.Password}
	}
	return PlatformCredentials{Email: email, Password: r.Password}
}

// Principal describes the logged-in caller.
type Principal struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	TenantID   string `json:"tenant_id,omitempty"`
	ClinicName string `json:"clinic_name,omitempty"`
	Partition  string `json:"partition,omitempty"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Principal `json:"user"`
}

// CreateUserRequest adds a clinic user. Role must be one of the clinic roles.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}
