package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/config"
	"github.com/phc/phc/internal/domain/account"
	"github.com/phc/phc/internal/domain/lab"
	"github.com/phc/phc/internal/domain/opd"
	"github.com/phc/phc/internal/domain/patient"
	"github.com/phc/phc/internal/domain/pharmacy"
	"github.com/phc/phc/internal/domain/tenant"
	"github.com/phc/phc/internal/domain/ward"
	"github.com/phc/phc/internal/platform/audit"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/events"
	"github.com/phc/phc/internal/platform/reporting"
	"github.com/phc/phc/internal/platform/telemetry"
	"github.com/phc/phc/migrations"
)

// app holds the process-wide dependencies shared by the server and the CLI
// commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	registry  *pgxpool.Pool
	ddl       *pgxpool.Pool
	cache     *db.PartitionCache
	prov      *db.Provisioner
	metrics   *telemetry.Metrics
	issuer    *auth.TokenIssuer
	revoked   auth.RevocationStore
	publisher events.Publisher
	auditLog  *audit.Store

	tenants   *tenant.Service
	accounts  *account.Service
	patients  *patient.Service
	opd       *opd.Service
	lab       *lab.Service
	pharmacy  *pharmacy.Service
	ward      *ward.Service
	reporting *reporting.Service

	closers []func()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openApp loads configuration, connects to the registry and builds every
// service. Close releases what it opened.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	registry, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: registry, metrics: telemetry.New()}
	a.closers = append(a.closers, registry.Close)

	// Activation holds a registry connection for its row lock while it
	// provisions, so DDL runs on its own pool.
	a.ddl, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.ProvisionMaxConns, 0)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.ddl.Close)

	a.revoked, err = a.revocationStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = a.eventPublisher()
	a.closers = append(a.closers, a.publisher.Close)

	a.wire(db.NewPartitionPoolFactory(cfg.DatabaseURL, cfg.TenantMaxConns, cfg.TenantMinConns))
	return a, nil
}

func (a *app) revocationStore(ctx context.Context) (auth.RevocationStore, error) {
	if a.cfg.RedisURL == "" {
		store := auth.NewMemoryRevocationStore(time.Minute)
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
	client, err := auth.NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { client.Close() })
	a.logger.Info().Msg("using redis session revocation store")
	return auth.NewRedisRevocationStore(client), nil
}

func (a *app) eventPublisher() events.Publisher {
	if a.cfg.NATSURL == "" {
		return events.Nop{}
	}
	p, err := events.Connect(a.cfg.NATSURL, a.logger, a.metrics)
	if err != nil {
		a.logger.Warn().Err(err).Msg("nats unavailable, tenant events disabled")
		return events.Nop{}
	}
	return p
}

// wire builds the partition cache and every service on top of the registry
// pool. factory opens tenant pools.
func (a *app) wire(factory db.PoolFactory) {
	cfg := a.cfg
	a.cache = db.NewPartitionCache(factory, a.metrics)
	a.closers = append(a.closers, a.cache.Close)
	a.prov = db.NewProvisioner(a.provisionPool(), a.metrics)
	a.issuer = auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTTTL)
	a.auditLog = audit.NewStore(a.registry)
	hasher := auth.NewPasswordHasher(0)

	users := account.NewUserRepoPG()
	a.tenants = tenant.NewService(
		tenant.NewTenantRepoPG(a.registry), a.prov, account.NewSeeder(a.cache, users), hasher, a.logger)
	a.tenants.SetPublisher(a.publisher)
	a.tenants.SetProvisionTimeout(cfg.ProvisionTimeout)

	a.accounts = account.NewService(a.tenants, a.cache, users,
		account.NewSuperAdminRepoPG(a.registry), hasher, a.issuer, a.revoked, a.logger)
	a.accounts.SetObserver(a.metrics)
	a.accounts.SetRecorder(a.auditLog)

	labOrders := lab.NewOrderRepoPG()
	prescriptions := pharmacy.NewPrescriptionRepoPG()
	a.patients = patient.NewService(patient.NewPatientRepoPG())
	a.opd = opd.NewService(opd.NewVisitRepoPG(), labOrders, prescriptions)
	a.lab = lab.NewService(labOrders)
	a.pharmacy = pharmacy.NewService(prescriptions)
	a.ward = ward.NewService(ward.NewBedRepoPG(), ward.NewAdmissionRepoPG())
	a.reporting = reporting.NewService(reporting.NewPGRowSource())
}

// provisionPool is the pool provisioning DDL runs on.
func (a *app) provisionPool() *pgxpool.Pool {
	if a.ddl != nil {
		return a.ddl
	}
	return a.registry
}

// migrator runs the embedded registry migrations.
func (a *app) migrator() *db.Migrator {
	return db.NewMigrator(a.registry, migrations.Platform())
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
