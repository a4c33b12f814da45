package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/domain/tenant"
	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/audit"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/validate"
)

// TenantLookup resolves a clinic by license number. *tenant.Service
// implements it.
type TenantLookup interface {
	FindByIdentifier(ctx context.Context, license string) (*tenant.Tenant, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// LoginObserver counts login attempts by path and outcome.
type LoginObserver interface {
	ObserveLogin(path, outcome string)
}

type nopLoginObserver struct{}

func (nopLoginObserver) ObserveLogin(string, string) {}

// Login outcomes reported to the LoginObserver.
const (
	OutcomeSuccess   = "success"
	OutcomeInvalid   = "invalid_credentials"
	OutcomeForbidden = "tenant_forbidden"
	OutcomeError     = "error"
)

type Service struct {
	tenants   TenantLookup
	handles   db.HandleSource
	users     UserRepository
	admins    SuperAdminRepository
	hasher    PasswordHasher
	issuer    *auth.TokenIssuer
	revoked   auth.RevocationStore
	recorder  audit.Recorder
	obs       LoginObserver
	validator *validate.Validator
	logger    zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(tenants TenantLookup, handles db.HandleSource, users UserRepository, admins SuperAdminRepository,
	hasher PasswordHasher, issuer *auth.TokenIssuer, revoked auth.RevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		tenants:   tenants,
		handles:   handles,
		users:     users,
		admins:    admins,
		hasher:    hasher,
		issuer:    issuer,
		revoked:   revoked,
		obs:       nopLoginObserver{},
		validator: validate.New(),
		logger:    logger,
	}
}

// rejectUnknown burns one Verify against a hash of the hasher's cost so
// an unknown account costs as much as a wrong password.
func (s *Service) rejectUnknown(password string) error {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("phc-no-such-account")
		if err != nil {
			s.logger.Warn().Err(err).Msg("dummy password hash")
		}
		s.dummyHash = hash
	})
	s.hasher.Verify(password, s.dummyHash)
	return errInvalidCredentials
}

func (s *Service) SetObserver(obs LoginObserver) { s.obs = obs }

// SetRecorder enables audit entries for successful logins.
func (s *Service) SetRecorder(r audit.Recorder) { s.recorder = r }

// Login authenticates creds and issues a session token. Unknown users,
// unknown license numbers and wrong passwords all fail with
// apperr.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	var (
		res *LoginResult
		err error
	)
	switch c := creds.(type) {
	case PlatformCredentials:
		res, err = s.loginPlatform(ctx, c)
	case TenantCredentials:
		res, err = s.loginTenant(ctx, c)
	default:
		return nil, apperr.New(apperr.ErrValidation, "unsupported credentials")
	}
	s.obs.ObserveLogin(creds.loginPath(), outcome(err))
	return res, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, apperr.ErrInvalidCredentials):
		return OutcomeInvalid
	case errors.Is(err, apperr.ErrForbidden):
		return OutcomeForbidden
	default:
		return OutcomeError
	}
}

func (s *Service) loginPlatform(ctx context.Context, c PlatformCredentials) (*LoginResult, error) {
	admin, err := s.admins.GetByEmail(ctx, c.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, s.rejectUnknown(c.Password)
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(c.Password, admin.PasswordHash) {
		return nil, errInvalidCredentials
	}

	token, claims, err := s.issuer.Issue(auth.Claims{
		RegisteredClaims: subject(admin.ID.String()),
		Role:             auth.RoleSuperAdmin,
		Name:             admin.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("issue platform token: %w", err)
	}

	s.record(ctx, audit.Entry{Action: "LOGIN", ActorID: admin.ID.String(), Role: auth.RoleSuperAdmin})
	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User: Principal{
			ID:    admin.ID.String(),
			Name:  admin.Name,
			Email: admin.Email,
			Role:  auth.RoleSuperAdmin,
		},
	}, nil
}

func subject(id string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: id}
}

// statusError returns the login error for a tenant that is not ACTIVE.
func statusError(st tenant.Status) error {
	switch st {
	case tenant.StatusActive:
		return nil
	case tenant.StatusPending:
		return ErrTenantPending
	case tenant.StatusVerified:
		return ErrTenantNotActivated
	case tenant.StatusSuspended:
		return ErrTenantSuspended
	default:
		return ErrTenantInactive
	}
}

func (s *Service) loginTenant(ctx context.Context, c TenantCredentials) (*LoginResult, error) {
	t, err := s.tenants.FindByIdentifier(ctx, c.LicenseNumber)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, s.rejectUnknown(c.Password)
	}
	if err != nil {
		return nil, err
	}
	if err := statusError(t.Status); err != nil {
		return nil, err
	}

	h, err := s.handles.Get(ctx, t.PartitionName)
	if err != nil {
		s.logger.Error().Err(err).Str("partition", t.PartitionName).Msg("tenant handle for login")
		return nil, fmt.Errorf("resolve partition %s: %w", t.PartitionName, apperr.ErrInternal)
	}
	ctx = db.WithHandle(ctx, h)

	u, err := s.users.GetByEmail(ctx, c.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, s.rejectUnknown(c.Password)
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(c.Password, u.PasswordHash) {
		return nil, errInvalidCredentials
	}

	token, claims, err := s.issuer.Issue(auth.Claims{
		RegisteredClaims: subject(u.ID.String()),
		Role:             u.Role,
		Name:             u.Name,
		Partition:        t.PartitionName,
		TenantID:         t.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue tenant token: %w", err)
	}

	s.record(ctx, audit.Entry{Action: "LOGIN", ActorID: u.ID.String(), Role: u.Role})
	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User: Principal{
			ID:         u.ID.String(),
			Name:       u.Name,
			Email:      u.Email,
			Role:       u.Role,
			TenantID:   t.ID.String(),
			ClinicName: t.Name,
			Partition:  t.PartitionName,
		},
	}, nil
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn().Err(err).Str("action", e.Action).Msg("audit login")
	}
}

// Logout revokes the session until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return apperr.New(apperr.ErrUnauthorized, "no session")
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// ListUsers returns the users of the partition in ctx.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.users.List(ctx)
}

// CreateUser adds a clinic user to the partition in ctx.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if !auth.ValidTenantRole(req.Role) {
		return nil, apperr.New(apperr.ErrValidation,
			"role must be one of: "+strings.Join(auth.TenantRoles, ", "))
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Email: req.Email, PasswordHash: hash, Name: req.Name, Role: req.Role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureSuperAdmin creates a super-admin unless the email already exists.
// It reports whether a row was written.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, name, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return false, apperr.New(apperr.ErrValidation, "super admin needs an email and a password of at least 8 characters")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.admins.CreateIfAbsent(ctx, &SuperAdmin{Email: email, Name: name, PasswordHash: hash})
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info().Str("email", email).Msg("super admin created")
	}
	return created, nil
}
