package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/events"
	"github.com/phc/phc/internal/platform/validate"
)

// Provisioner creates tenant partitions. *db.Provisioner implements it.
type Provisioner interface {
	ProvisionPartition(ctx context.Context, partition string) error
	ListPartitions(ctx context.Context) ([]string, error)
}

// AdminSeeder inserts the first clinic admin into a provisioned partition.
// It must be a no-op when the email already exists there.
type AdminSeeder interface {
	SeedAdmin(ctx context.Context, partition, email, name, passwordHash string) (bool, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

const defaultProvisionTimeout = 60 * time.Second

type Service struct {
	repo      TenantRepository
	prov      Provisioner
	seeder    AdminSeeder
	hasher    PasswordHasher
	publisher events.Publisher
	validator *validate.Validator
	logger    zerolog.Logger
	timeout   time.Duration
	now       func() time.Time
}

func NewService(repo TenantRepository, prov Provisioner, seeder AdminSeeder, hasher PasswordHasher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		prov:      prov,
		seeder:    seeder,
		hasher:    hasher,
		publisher: events.Nop{},
		validator: validate.New(),
		logger:    logger,
		timeout:   defaultProvisionTimeout,
		now:       time.Now,
	}
}

func (s *Service) SetPublisher(p events.Publisher) { s.publisher = p }

// SetProvisionTimeout bounds a single activation, provisioning and seeding
// included.
func (s *Service) SetProvisionTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Create registers a tenant in PENDING state with a partition name derived
// from its id. With AutoActivate the activation runs right after the insert;
// if it fails the tenant stays PENDING and the error is returned with it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	req.AdminEmail = strings.ToLower(strings.TrimSpace(req.AdminEmail))

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if req.AutoActivate && req.AdminPassword == "" {
		return nil, apperr.New(apperr.ErrValidation, "admin_password is required when auto_activate is set")
	}

	existing, err := s.repo.GetByLicense(ctx, req.LicenseNumber)
	switch {
	case err == nil && existing != nil:
		return nil, apperr.New(apperr.ErrDuplicateIdentifier, "license number already registered")
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	id := uuid.New()
	t := &Tenant{
		ID:            id,
		Name:          req.Name,
		Address:       req.Address,
		ContactNumber: req.ContactNumber,
		LicenseNumber: req.LicenseNumber,
		AdminEmail:    req.AdminEmail,
		PartitionName: db.PartitionName(id),
		Status:        StatusPending,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, events.SubjectTenantCreated, t, "")

	if !req.AutoActivate {
		return t, nil
	}
	activated, err := s.SetStatus(ctx, t.ID, SetStatusRequest{
		Status:        StatusActive,
		AdminPassword: req.AdminPassword,
		AdminName:     req.AdminName,
	})
	if err != nil {
		return t, err
	}
	return activated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByIdentifier resolves a tenant by license number.
func (s *Service) FindByIdentifier(ctx context.Context, license string) (*Tenant, error) {
	return s.repo.GetByLicense(ctx, strings.TrimSpace(license))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Partitions lists the tenant schemas present in the database.
func (s *Service) Partitions(ctx context.Context) ([]string, error) {
	return s.prov.ListPartitions(ctx)
}

// SetStatus moves a tenant to req.Status under a row lock. Activating a
// tenant that is not ACTIVE provisions its partition and seeds the admin
// before the new status is committed; any failure leaves the status
// unchanged and records provision_error. Activating an ACTIVE tenant is a
// no-op. Other moves never touch tenant data.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, req SetStatusRequest) (*Tenant, error) {
	if !req.Status.Valid() {
		return nil, apperr.New(apperr.ErrValidation, "status must be one of PENDING, VERIFIED, ACTIVE, SUSPENDED, INACTIVE")
	}

	if req.Status == StatusActive {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var previous Status
	activated := false
	t, err := s.repo.UpdateStatus(ctx, id, func(ctx context.Context, t *Tenant) error {
		previous = t.Status
		if t.Status == req.Status {
			return nil
		}
		if req.Status == StatusActive {
			if err := s.activate(ctx, t, req); err != nil {
				return err
			}
			now := s.now().UTC()
			t.ProvisionedAt = &now
			t.ProvisionError = nil
			activated = true
		}
		t.Status = req.Status
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrProvisioningFailed) {
			s.recordFailure(ctx, id, err)
		}
		return nil, err
	}

	if previous != t.Status {
		s.publish(ctx, events.SubjectTenantStatusChanged, t, previous)
	}
	if activated {
		s.publish(ctx, events.SubjectTenantActivated, t, previous)
		s.logger.Info().
			Str("tenant_id", t.ID.String()).
			Str("partition", t.PartitionName).
			Msg("tenant activated")
	}
	return t, nil
}

func (s *Service) activate(ctx context.Context, t *Tenant, req SetStatusRequest) error {
	if req.AdminPassword == "" {
		return apperr.New(apperr.ErrValidation, "admin password is required when activating a tenant")
	}
	if len(req.AdminPassword) < 8 {
		return apperr.New(apperr.ErrValidation, "admin password must be at least 8 characters long")
	}

	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if err := s.prov.ProvisionPartition(ctx, t.PartitionName); err != nil {
		return fmt.Errorf("%w: provision partition %s: %w", apperr.ErrProvisioningFailed, t.PartitionName, err)
	}

	name := strings.TrimSpace(req.AdminName)
	if name == "" {
		name = DefaultAdminName
	}
	created, err := s.seeder.SeedAdmin(ctx, t.PartitionName, t.AdminEmail, name, hash)
	if err != nil {
		return fmt.Errorf("%w: seed admin in %s: %w", apperr.ErrProvisioningFailed, t.PartitionName, err)
	}
	if !created {
		s.logger.Info().
			Str("partition", t.PartitionName).
			Msg("admin already present, keeping existing credentials")
	}
	return nil
}

// recordFailure stores the failure on the tenant row outside the rolled
// back transaction so operators can see why activation stopped.
func (s *Service) recordFailure(ctx context.Context, id uuid.UUID, cause error) {
	s.logger.Error().Err(cause).Str("tenant_id", id.String()).Msg("tenant activation failed")
	if err := s.repo.RecordProvisionError(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("tenant_id", id.String()).Msg("record provision error")
	}
}

func (s *Service) publish(ctx context.Context, subject string, t *Tenant, previous Status) {
	err := s.publisher.Publish(ctx, subject, events.TenantEvent{
		TenantID:       t.ID,
		LicenseNumber:  t.LicenseNumber,
		Partition:      t.PartitionName,
		Status:         string(t.Status),
		PreviousStatus: string(previous),
		OccurredAt:     s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Str("tenant_id", t.ID.String()).Msg("publish tenant event")
	}
}
