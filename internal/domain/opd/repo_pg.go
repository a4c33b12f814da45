package opd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phc/phc/internal/domain/patient"
	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
)

var columnNames = []string{
	"id", "patient_id", "token_no", "status", "weight", "bp", "sugar", "temp",
	"symptoms", "diagnosis", "created_at", "updated_at",
}

// Columns returns the opd_visit column list qualified by alias.
func Columns(alias string) []string {
	if alias == "" {
		return columnNames
	}
	cols := make([]string, len(columnNames))
	for i, c := range columnNames {
		cols[i] = alias + "." + c
	}
	return cols
}

// ScanTargets returns scan destinations for v matching Columns.
func ScanTargets(v *Visit) []interface{} {
	return []interface{}{
		&v.ID, &v.PatientID, &v.TokenNo, &v.Status, &v.Weight, &v.BP, &v.Sugar, &v.Temp,
		&v.Symptoms, &v.Diagnosis, &v.CreatedAt, &v.UpdatedAt,
	}
}

// tokenLockSQL takes a transaction-scoped advisory lock keyed by the
// partition, so token allocation in one clinic never waits on another.
const tokenLockSQL = `SELECT pg_advisory_xact_lock(hashtext(current_schema() || '.opd_visit.token_no'))`

type visitRepoPG struct{}

func NewVisitRepoPG() VisitRepository {
	return &visitRepoPG{}
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(ScanTargets(&v)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, "visit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan visit: %w", err)
	}
	return &v, nil
}

func (r *visitRepoPG) NextToken(ctx context.Context, dayStart time.Time) (int, error) {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return 0, errors.New("next token: no transaction in context")
	}
	if _, err := tx.Exec(ctx, tokenLockSQL); err != nil {
		return 0, fmt.Errorf("lock token sequence: %w", err)
	}
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM opd_visit WHERE created_at >= $1`, dayStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return count + 1, nil
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	v.ID = uuid.New()
	err = q.QueryRow(ctx, `
		INSERT INTO opd_visit (id, patient_id, token_no, status, symptoms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.TokenNo, v.Status, v.Symptoms,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return apperr.New(apperr.ErrNotFound, "patient not found")
	}
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return scanVisit(q.QueryRow(ctx, `SELECT `+strings.Join(columnNames, ", ")+` FROM opd_visit WHERE id = $1`, id))
}

func (r *visitRepoPG) Queue(ctx context.Context, dayStart time.Time) ([]*Visit, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	cols := append(Columns("v"), patient.Columns("p")...)
	rows, err := q.Query(ctx, `
		SELECT `+strings.Join(cols, ", ")+`
		FROM opd_visit v
		JOIN patient p ON p.id = v.patient_id
		WHERE v.created_at >= $1 AND v.status <> $2
		ORDER BY v.token_no`, dayStart, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	visits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Visit, error) {
		v := &Visit{Patient: &patient.Patient{}}
		err := row.Scan(append(ScanTargets(v), patient.ScanTargets(v.Patient)...)...)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	return visits, nil
}

func (r *visitRepoPG) Complete(ctx context.Context, v *Visit) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	err = q.QueryRow(ctx, `
		UPDATE opd_visit
		SET status = $2, weight = $3, bp = $4, sugar = $5, temp = $6, diagnosis = $7, updated_at = NOW()
		WHERE id = $1 AND status <> $2
		RETURNING updated_at`,
		v.ID, StatusCompleted, v.Weight, v.BP, v.Sugar, v.Temp, v.Diagnosis,
	).Scan(&v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.ErrConflict, "visit already completed")
	}
	if err != nil {
		return fmt.Errorf("complete visit: %w", err)
	}
	v.Status = StatusCompleted
	return nil
}
