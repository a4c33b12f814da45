package pharmacy

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

const prescriptionCols = `id, opd_visit_id, medicine, dosage, status, created_at, updated_at`

type prescriptionRepoPG struct{}

func NewPrescriptionRepoPG() PrescriptionRepository {
	return &prescriptionRepoPG{}
}

func prescriptionTargets(p *Prescription) []interface{} {
	return []interface{}{&p.ID, &p.VisitID, &p.Medicine, &p.Dosage, &p.Status, &p.CreatedAt, &p.UpdatedAt}
}

func (r *prescriptionRepoPG) CreatePending(ctx context.Context, visitID uuid.UUID, medicine, dosage string) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx,
		`INSERT INTO prescription (id, opd_visit_id, medicine, dosage, status) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), visitID, medicine, dosage, StatusPending)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) Pending(ctx context.Context) ([]*Prescription, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	cols := []string{"rx.id", "rx.opd_visit_id", "rx.medicine", "rx.dosage", "rx.status", "rx.created_at", "rx.updated_at"}
	cols = append(cols, opd.Columns("v")...)
	cols = append(cols, patient.Columns("p")...)
	rows, err := q.Query(ctx, `
		SELECT `+strings.Join(cols, ", ")+`
		FROM prescription rx
		JOIN opd_visit v ON v.id = rx.opd_visit_id
		JOIN patient p ON p.id = v.patient_id
		WHERE rx.status = $1
		ORDER BY rx.created_at`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending prescriptions: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Prescription, error) {
		rx := &Prescription{Visit: &opd.Visit{Patient: &patient.Patient{}}}
		targets := prescriptionTargets(rx)
		targets = append(targets, opd.ScanTargets(rx.Visit)...)
		targets = append(targets, patient.ScanTargets(rx.Visit.Patient)...)
		return rx, row.Scan(targets...)
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending prescriptions: %w", err)
	}
	return items, nil
}

func (r *prescriptionRepoPG) Dispense(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var rx Prescription
	err = q.QueryRow(ctx, `
		UPDATE prescription SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING `+prescriptionCols,
		id, StatusDispensed, StatusPending,
	).Scan(prescriptionTargets(&rx)...)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM prescription WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check prescription: %w", err)
		}
		if !exists {
			return nil, apperr.New(apperr.ErrNotFound, "prescription not found")
		}
		return nil, apperr.New(apperr.ErrConflict, "prescription already dispensed")
	}
	if err != nil {
		return nil, fmt.Errorf("dispense prescription: %w", err)
	}
	return &rx, nil
}
