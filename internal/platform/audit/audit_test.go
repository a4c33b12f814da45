package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phc/phc/internal/platform/db"
)

type execCall struct {
	sql  string
	args []interface{}
}

// recordingDB captures Exec calls; it serves both as registry queryable and
// as the body of a fake tenant transaction.
type recordingDB struct {
	calls []execCall
	err   error
}

func (r *recordingDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	r.calls = append(r.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func (r *recordingDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

type fakeTx struct {
	pgx.Tx
	db *recordingDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func tenantContext(tenant *recordingDB) context.Context {
	ctx := db.WithHandle(context.Background(), &db.Handle{Partition: "phc_demo"})
	return context.WithValue(ctx, db.DBTxKey, &fakeTx{db: tenant})
}

func decodeDetails(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	raw, ok := v.([]byte)
	require.True(t, ok, "details must be encoded JSON")
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestStore_RecordTenantEntry(t *testing.T) {
	registry := &recordingDB{}
	tenant := &recordingDB{}
	store := NewStore(registry)

	err := store.Record(tenantContext(tenant), Entry{
		Action:   "POST /api/patients",
		ActorID:  "u-1",
		Role:     "RECEPTIONIST",
		TargetID: "p-9",
		Details:  map[string]interface{}{"status": 201},
	})
	require.NoError(t, err)

	assert.Empty(t, registry.calls, "tenant writes must not touch the registry")
	require.Len(t, tenant.calls, 1)
	call := tenant.calls[0]
	assert.Contains(t, call.sql, "INSERT INTO audit_log")
	assert.Equal(t, "POST /api/patients", call.args[1])
	assert.Equal(t, "u-1", call.args[2])

	details := decodeDetails(t, call.args[3])
	assert.Equal(t, "RECEPTIONIST", details["role"])
	assert.Equal(t, "p-9", details["targetId"])
	assert.EqualValues(t, 201, details["status"])
}

func TestStore_RecordPlatformEntry(t *testing.T) {
	registry := &recordingDB{}
	store := NewStore(registry)

	require.NoError(t, store.Record(context.Background(), Entry{
		Action:  "POST /api/superadmin/tenants",
		ActorID: "sa-1",
		Role:    ActorSuperAdmin,
	}))
	require.NoError(t, store.Record(context.Background(), Entry{Action: "LOGIN_FAILED"}))

	require.Len(t, registry.calls, 2)
	assert.Contains(t, registry.calls[0].sql, "INSERT INTO platform_audit_log")
	assert.Equal(t, ActorSuperAdmin, registry.calls[0].args[3])

	assert.Equal(t, "anonymous", registry.calls[1].args[2])
	assert.Equal(t, ActorSystem, registry.calls[1].args[3])
}

func TestStore_RecordErrors(t *testing.T) {
	boom := errors.New("disk full")
	store := NewStore(&recordingDB{err: boom})
	err := store.Record(context.Background(), Entry{Action: "X"})
	assert.ErrorIs(t, err, boom)

	err = NewStore(nil).Record(context.Background(), Entry{Action: "X"})
	assert.Error(t, err)

	err = store.Record(tenantContext(&recordingDB{err: boom}), Entry{Action: "X"})
	assert.ErrorIs(t, err, boom)
}

func TestStore_ListTenantRequiresTenant(t *testing.T) {
	_, _, err := NewStore(&recordingDB{}).ListTenant(context.Background(), 10, 0)
	assert.ErrorIs(t, err, db.ErrNoTenant)
}

func TestRecorderFunc(t *testing.T) {
	var got Entry
	var r Recorder = RecorderFunc(func(_ context.Context, e Entry) error {
		got = e
		return nil
	})
	require.NoError(t, r.Record(context.Background(), Entry{Action: "A"}))
	assert.Equal(t, "A", got.Action)
}
