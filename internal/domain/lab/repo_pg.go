package lab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/phc/phc/internal/domain/opd"
	"github.com/phc/phc/internal/domain/patient"
	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
)

const orderCols = `id, opd_visit_id, test_name, status, result, created_at, updated_at`

type orderRepoPG struct{}

func NewOrderRepoPG() OrderRepository {
	return &orderRepoPG{}
}

func orderTargets(o *Order) []interface{} {
	return []interface{}{&o.ID, &o.VisitID, &o.TestName, &o.Status, &o.Result, &o.CreatedAt, &o.UpdatedAt}
}

func (r *orderRepoPG) CreatePending(ctx context.Context, visitID uuid.UUID, tests []string) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	for _, name := range tests {
		_, err := q.Exec(ctx,
			`INSERT INTO lab_order (id, opd_visit_id, test_name, status) VALUES ($1, $2, $3, $4)`,
			uuid.New(), visitID, name, StatusPending)
		if err != nil {
			return fmt.Errorf("insert lab order %q: %w", name, err)
		}
	}
	return nil
}

func (r *orderRepoPG) Pending(ctx context.Context) ([]*Order, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	cols := []string{
		"o.id", "o.opd_visit_id", "o.test_name", "o.status", "o.result", "o.created_at", "o.updated_at",
	}
	cols = append(cols, opd.Columns("v")...)
	cols = append(cols, patient.Columns("p")...)
	rows, err := q.Query(ctx, `
		SELECT `+strings.Join(cols, ", ")+`
		FROM lab_order o
		JOIN opd_visit v ON v.id = o.opd_visit_id
		JOIN patient p ON p.id = v.patient_id
		WHERE o.status = $1
		ORDER BY o.created_at`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending lab orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Order, error) {
		o := &Order{Visit: &opd.Visit{Patient: &patient.Patient{}}}
		targets := orderTargets(o)
		targets = append(targets, opd.ScanTargets(o.Visit)...)
		targets = append(targets, patient.ScanTargets(o.Visit.Patient)...)
		return o, row.Scan(targets...)
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending lab orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepoPG) Complete(ctx context.Context, id uuid.UUID, result string) (*Order, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var o Order
	err = q.QueryRow(ctx, `
		UPDATE lab_order SET status = $2, result = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING `+orderCols,
		id, StatusCompleted, result, StatusPending,
	).Scan(orderTargets(&o)...)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lab_order WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check lab order: %w", err)
		}
		if !exists {
			return nil, apperr.New(apperr.ErrNotFound, "lab order not found")
		}
		return nil, apperr.New(apperr.ErrConflict, "lab order already completed")
	}
	if err != nil {
		return nil, fmt.Errorf("complete lab order: %w", err)
	}
	return &o, nil
}
