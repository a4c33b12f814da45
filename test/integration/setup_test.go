//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

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
	"github.com/phc/phc/migrations"
)

// globalDB is the shared registry pool, initialized once in TestMain.
var globalDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, migrations.Platform()).Up(ctx, "public"); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalDB.Pool, globalDB.ConnStr = pool, connStr
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// startPostgres runs postgres:16-alpine and returns its connection string.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "phc",
				"POSTGRES_PASSWORD": "phc",
				"POSTGRES_DB":       "phc_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start container: %w", err)
	}
	cleanup := func() { container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return fmt.Sprintf("postgres://phc:phc@%s:%s/phc_test?sslmode=disable", host, port.Port()), cleanup, nil
}

// env is one fully wired platform on the shared database, with its own
// partition cache.
type env struct {
	cache    *db.PartitionCache
	prov     *db.Provisioner
	tenants  *tenant.Service
	accounts *account.Service
	issuer   *auth.TokenIssuer
	revoked  *auth.MemoryRevocationStore
	patients *patient.Service
	opd      *opd.Service
	lab      *lab.Service
	pharmacy *pharmacy.Service
	ward     *ward.Service
	audit    *audit.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zerolog.Nop()
	cache := db.NewPartitionCache(db.NewPartitionPoolFactory(globalDB.ConnStr, 4, 0), nil)
	revoked := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(cache.Close)
	t.Cleanup(revoked.Close)

	hasher := auth.NewPasswordHasher(4)
	users := account.NewUserRepoPG()
	prov := db.NewProvisioner(globalDB.Pool, nil)
	tenants := tenant.NewService(tenant.NewTenantRepoPG(globalDB.Pool), prov, account.NewSeeder(cache, users), hasher, logger)
	issuer := auth.NewTokenIssuer([]byte("integration-secret-integration-secret"), "phc-integration", time.Hour)
	auditStore := audit.NewStore(globalDB.Pool)
	accounts := account.NewService(tenants, cache, users, account.NewSuperAdminRepoPG(globalDB.Pool),
		hasher, issuer, revoked, logger)
	accounts.SetRecorder(auditStore)

	labOrders := lab.NewOrderRepoPG()
	prescriptions := pharmacy.NewPrescriptionRepoPG()
	return &env{
		cache:    cache,
		prov:     prov,
		tenants:  tenants,
		accounts: accounts,
		issuer:   issuer,
		revoked:  revoked,
		patients: patient.NewService(patient.NewPatientRepoPG()),
		opd:      opd.NewService(opd.NewVisitRepoPG(), labOrders, prescriptions),
		lab:      lab.NewService(labOrders),
		pharmacy: pharmacy.NewService(prescriptions),
		ward:     ward.NewService(ward.NewBedRepoPG(), ward.NewAdmissionRepoPG()),
		audit:    auditStore,
	}
}

// clinicCtx binds ctx to a partition the way the tenant middleware does.
func (e *env) clinicCtx(t *testing.T, partition string) context.Context {
	t.Helper()
	h, err := e.cache.Get(context.Background(), partition)
	if err != nil {
		t.Fatalf("get handle %s: %v", partition, err)
	}
	return db.WithHandle(context.Background(), h)
}

var seq int64

// uniqueLicense returns a license number unused by earlier tests.
func uniqueLicense(prefix string) string {
	seq++
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq)
}

// dropPartition removes a partition after a test.
func dropPartition(t *testing.T, e *env, partition string) {
	t.Helper()
	t.Cleanup(func() {
		if err := e.prov.DeprovisionPartition(context.Background(), partition); err != nil {
			t.Logf("warning: drop %s: %v", partition, err)
		}
	})
}
