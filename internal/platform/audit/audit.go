// Package audit persists the write trail of the service. Requests that were
// resolved to a tenant partition are recorded in that partition's audit_log
// table; everything else (super-admin actions, login attempts) lands in the
// platform_audit_log table of the registry.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/phc/phc/internal/platform/db"
)

// Actor types stored in platform_audit_log.
const (
	ActorSuperAdmin = "SUPER_ADMIN"
	ActorSystem     = "SYSTEM"
)

// Entry is one audited action.
type Entry struct {
	Action   string
	ActorID  string
	Role     string
	TargetID string
	Details  map[string]interface{}
}

// Record is a stored audit row as returned to clinic admins.
type Record struct {
	ID        uuid.UUID              `json:"id"`
	Action    string                 `json:"action"`
	ActorID   string                 `json:"actor_id"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, e Entry) error

func (f RecorderFunc) Record(ctx context.Context, e Entry) error { return f(ctx, e) }

// Store writes and reads audit rows. The registry queryable is only used for
// platform entries; tenant entries always go through db.Conn.
type Store struct {
	registry db.Queryable
}

func NewStore(registry db.Queryable) *Store {
	return &Store{registry: registry}
}

func (e Entry) payload() ([]byte, error) {
	details := map[string]interface{}{
		"role":     e.Role,
		"targetId": e.TargetID,
	}
	for k, v := range e.Details {
		details[k] = v
	}
	return json.Marshal(details)
}

func (e Entry) actorID() string {
	if e.ActorID == "" {
		return "anonymous"
	}
	return e.ActorID
}

// Record stores e in the tenant audit_log when ctx carries a tenant handle,
// otherwise in platform_audit_log.
func (s *Store) Record(ctx context.Context, e Entry) error {
	payload, err := e.payload()
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	q, err := db.Conn(ctx)
	switch {
	case err == nil:
		_, err = q.Exec(ctx,
			`INSERT INTO audit_log (id, action, actor_id, details) VALUES ($1, $2, $3, $4)`,
			uuid.New(), e.Action, e.actorID(), payload)
		if err != nil {
			return fmt.Errorf("insert tenant audit entry: %w", err)
		}
		return nil
	case !errors.Is(err, db.ErrNoTenant):
		return err
	}

	if s.registry == nil {
		return fmt.Errorf("record platform audit entry %s: no registry", e.Action)
	}
	actorType := ActorSystem
	if e.Role == ActorSuperAdmin {
		actorType = ActorSuperAdmin
	}
	_, err = s.registry.Exec(ctx,
		`INSERT INTO platform_audit_log (id, action, actor_id, actor_type, details) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), e.Action, e.actorID(), actorType, payload)
	if err != nil {
		return fmt.Errorf("insert platform audit entry: %w", err)
	}
	return nil
}

// ListTenant returns the newest entries of the partition resolved in ctx.
func (s *Store) ListTenant(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, action, actor_id, details, created_at FROM audit_log
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Record, error) {
		var r Record
		if err := row.Scan(&r.ID, &r.Action, &r.ActorID, &r.Details, &r.CreatedAt); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan audit entries: %w", err)
	}
	return records, total, nil
}
