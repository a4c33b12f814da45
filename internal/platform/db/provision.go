package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Observer receives tenancy metrics from the provisioner and the partition
// cache. telemetry.Metrics implements it.
type Observer interface {
	ObserveProvision(outcome string, d time.Duration)
	HandleConstructed(partition string)
	SetHandles(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveProvision(string, time.Duration) {}
func (nopObserver) HandleConstructed(string)               {}
func (nopObserver) SetHandles(int)                         {}

// ddlDB is the subset of *pgxpool.Pool the provisioner needs.
type ddlDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// tenantTable is one table of the fixed per-tenant set.
type tenantTable struct {
	Name    string
	DDL     string   // %[1]s is the quoted schema
	Indexes []string // same placeholder, run after DDL
}

// TenantTables is the fixed table set of every partition, in foreign key
// dependency order.
var TenantTables = []tenantTable{
	{"app_user", `CREATE TABLE IF NOT EXISTS %[1]s.app_user (
    id UUID PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, nil},
	{"patient", `CREATE TABLE IF NOT EXISTS %[1]s.patient (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    age INTEGER NOT NULL,
    gender TEXT NOT NULL,
    phone TEXT NOT NULL,
    address TEXT,
    blood_group TEXT,
    emergency_contact TEXT,
    weight DOUBLE PRECISION,
    bp TEXT,
    sugar TEXT,
    temp DOUBLE PRECISION,
    pre_existing_diseases TEXT,
    allergies TEXT,
    is_pregnant BOOLEAN NOT NULL DEFAULT FALSE,
    patient_type TEXT NOT NULL DEFAULT 'OPD',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, nil},
	{"opd_visit", `CREATE TABLE IF NOT EXISTS %[1]s.opd_visit (
    id UUID PRIMARY KEY,
    patient_id UUID NOT NULL REFERENCES %[1]s.patient(id),
    token_no INTEGER NOT NULL,
    status TEXT NOT NULL,
    weight DOUBLE PRECISION,
    bp TEXT,
    sugar TEXT,
    temp DOUBLE PRECISION,
    symptoms TEXT,
    diagnosis TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, nil},
	{"lab_order", `CREATE TABLE IF NOT EXISTS %[1]s.lab_order (
    id UUID PRIMARY KEY,
    opd_visit_id UUID NOT NULL REFERENCES %[1]s.opd_visit(id),
    test_name TEXT NOT NULL,
    status TEXT NOT NULL,
    result TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, nil},
	{"prescription", `CREATE TABLE IF NOT EXISTS %[1]s.prescription (
    id UUID PRIMARY KEY,
    opd_visit_id UUID NOT NULL REFERENCES %[1]s.opd_visit(id),
    medicine TEXT NOT NULL,
    dosage TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, nil},
	{"bed", `CREATE TABLE IF NOT EXISTS %[1]s.bed (
    id UUID PRIMARY KEY,
    number TEXT NOT NULL UNIQUE,
    is_occupied BOOLEAN NOT NULL DEFAULT FALSE
)`, nil},
	{"admission", `CREATE TABLE IF NOT EXISTS %[1]s.admission (
    id UUID PRIMARY KEY,
    patient_id UUID NOT NULL REFERENCES %[1]s.patient(id),
    bed_id UUID NOT NULL REFERENCES %[1]s.bed(id),
    admitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    discharged_at TIMESTAMPTZ,
    status TEXT NOT NULL
)`, []string{
		// a patient holds at most one bed at a time
		`CREATE UNIQUE INDEX IF NOT EXISTS admission_active_patient_key ON %[1]s.admission (patient_id) WHERE status = 'ADMITTED'`,
	}},
	{"audit_log", `CREATE TABLE IF NOT EXISTS %[1]s.audit_log (
    id UUID PRIMARY KEY,
    action TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    details JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, nil},
}

// provisionStatements returns every statement needed to provision the quoted
// schema, in execution order.
func provisionStatements(quoted string) []string {
	stmts := make([]string, 0, len(TenantTables)+1)
	stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoted))
	for _, t := range TenantTables {
		stmts = append(stmts, fmt.Sprintf(t.DDL, quoted))
		for _, idx := range t.Indexes {
			stmts = append(stmts, fmt.Sprintf(idx, quoted))
		}
	}
	return stmts
}

// provisionLockSQL serializes provisioning of one partition across
// sessions. Concurrent CREATE ... IF NOT EXISTS on the same new name
// otherwise fails with a catalog unique violation.
const provisionLockSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

// Provisioner creates and drops tenant partitions.
type Provisioner struct {
	db  ddlDB
	obs Observer
}

// NewProvisioner returns a Provisioner that runs DDL through pool. A nil
// observer disables metrics.
func NewProvisioner(pool ddlDB, obs Observer) *Provisioner {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Provisioner{db: pool, obs: obs}
}

// ProvisionPartition creates the schema and every tenant table inside a
// single transaction. Existing objects are left alone, so calling it again
// for the same partition is a no-op.
func (p *Provisioner) ProvisionPartition(ctx context.Context, partition string) (err error) {
	quoted, err := quoteIdent(partition)
	if err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		p.obs.ObserveProvision(outcome, time.Since(start))
	}()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin provisioning %s: %w", partition, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, provisionLockSQL, "provision:"+partition); err != nil {
		return fmt.Errorf("lock partition %s: %w", partition, err)
	}
	for _, stmt := range provisionStatements(quoted) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", describeDDL(stmt, partition), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit provisioning %s: %w", partition, err)
	}
	return nil
}

// describeDDL names the object a provisioning statement creates, for
// error messages.
func describeDDL(stmt, partition string) string {
	if strings.HasPrefix(stmt, "CREATE SCHEMA") {
		return "create schema " + partition
	}
	for _, t := range TenantTables {
		if !strings.Contains(stmt, "."+t.Name+" (") {
			continue
		}
		if strings.HasPrefix(stmt, "CREATE TABLE") {
			return "create table " + partition + "." + t.Name
		}
		return "create index on " + partition + "." + t.Name
	}
	return "provision " + partition
}

// DeprovisionPartition drops the schema and all of its data. It is
// irreversible and only reachable from tests and the operator CLI.
func (p *Provisioner) DeprovisionPartition(ctx context.Context, partition string) error {
	quoted, err := quoteIdent(partition)
	if err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", quoted)); err != nil {
		return fmt.Errorf("drop schema %s: %w", partition, err)
	}
	return nil
}

// PartitionExists reports whether the schema exists.
func (p *Provisioner) PartitionExists(ctx context.Context, partition string) (bool, error) {
	if !ValidPartitionName(partition) {
		return false, fmt.Errorf("invalid partition name %q", partition)
	}
	var exists bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		partition).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", partition, err)
	}
	return exists, nil
}

// ListPartitions returns every tenant schema in the database.
func (p *Provisioner) ListPartitions(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx,
		`SELECT schema_name FROM information_schema.schemata WHERE schema_name LIKE 'phc\_%' ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return names, nil
}
