package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phc/phc/internal/domain/patient"
	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
)

const admissionCols = `id, patient_id, bed_id, admitted_at, discharged_at, status`

func admissionTargets(a *Admission) []interface{} {
	return []interface{}{&a.ID, &a.PatientID, &a.BedID, &a.AdmittedAt, &a.DischargedAt, &a.Status}
}

type bedRepoPG struct{}

func NewBedRepoPG() BedRepository {
	return &bedRepoPG{}
}

func (r *bedRepoPG) List(ctx context.Context) ([]*Bed, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, number, is_occupied FROM bed ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("query beds: %w", err)
	}
	beds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Bed, error) {
		var b Bed
		return &b, row.Scan(&b.ID, &b.Number, &b.IsOccupied)
	})
	if err != nil {
		return nil, fmt.Errorf("scan beds: %w", err)
	}

	cols := []string{"a.id", "a.patient_id", "a.bed_id", "a.admitted_at", "a.discharged_at", "a.status"}
	cols = append(cols, patient.Columns("p")...)
	rows, err = q.Query(ctx, `
		SELECT `+strings.Join(cols, ", ")+`
		FROM admission a
		JOIN patient p ON p.id = a.patient_id
		WHERE a.status = $1`, StatusAdmitted)
	if err != nil {
		return nil, fmt.Errorf("query active admissions: %w", err)
	}
	active, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Admission, error) {
		a := &Admission{Patient: &patient.Patient{}}
		targets := append(admissionTargets(a), patient.ScanTargets(a.Patient)...)
		return a, row.Scan(targets...)
	})
	if err != nil {
		return nil, fmt.Errorf("scan active admissions: %w", err)
	}
	attachAdmissions(beds, active)
	return beds, nil
}

// attachAdmissions sets CurrentAdmission on each bed that has an active
// admission.
func attachAdmissions(beds []*Bed, active []*Admission) {
	byBed := make(map[uuid.UUID]*Admission, len(active))
	for _, a := range active {
		byBed[a.BedID] = a
	}
	for _, b := range beds {
		b.CurrentAdmission = byBed[b.ID]
	}
}

func (r *bedRepoPG) Count(ctx context.Context) (int, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM bed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count beds: %w", err)
	}
	return n, nil
}

func (r *bedRepoPG) CreateIfAbsent(ctx context.Context, number string) (bool, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	tag, err := q.Exec(ctx,
		`INSERT INTO bed (id, number, is_occupied) VALUES ($1, $2, FALSE) ON CONFLICT (number) DO NOTHING`,
		uuid.New(), number)
	if err != nil {
		return false, fmt.Errorf("insert bed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err = q.Exec(ctx, `INSERT INTO bed (id, number, is_occupied) VALUES ($1, $2, $3)`, b.ID, b.Number, b.IsOccupied)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.New(apperr.ErrConflict, "bed number already exists")
	}
	if err != nil {
		return fmt.Errorf("insert bed: %w", err)
	}
	return nil
}

func (r *bedRepoPG) Lock(ctx context.Context, id uuid.UUID) (*Bed, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var b Bed
	err = q.QueryRow(ctx, `SELECT id, number, is_occupied FROM bed WHERE id = $1 FOR UPDATE`, id).
		Scan(&b.ID, &b.Number, &b.IsOccupied)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, "bed not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lock bed: %w", err)
	}
	return &b, nil
}

func (r *bedRepoPG) SetOccupied(ctx context.Context, id uuid.UUID, occupied bool) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `UPDATE bed SET is_occupied = $2 WHERE id = $1`, id, occupied); err != nil {
		return fmt.Errorf("update bed: %w", err)
	}
	return nil
}

type admissionRepoPG struct{}

func NewAdmissionRepoPG() AdmissionRepository {
	return &admissionRepoPG{}
}

func (r *admissionRepoPG) Create(ctx context.Context, a *Admission) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err = q.QueryRow(ctx, `
		INSERT INTO admission (id, patient_id, bed_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING admitted_at`,
		a.ID, a.PatientID, a.BedID, a.Status,
	).Scan(&a.AdmittedAt)
	return admissionInsertError(err)
}

// activeAdmissionIndex is the partial unique index on admitted patients.
const activeAdmissionIndex = "admission_active_patient_key"

func admissionInsertError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23503":
			return apperr.New(apperr.ErrNotFound, "patient not found")
		case pgErr.Code == "23505" && pgErr.ConstraintName == activeAdmissionIndex:
			return ErrPatientAdmitted
		}
	}
	return fmt.Errorf("insert admission: %w", err)
}

func (r *admissionRepoPG) ActiveForBed(ctx context.Context, bedID uuid.UUID) (*Admission, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var a Admission
	err = q.QueryRow(ctx,
		`SELECT `+admissionCols+` FROM admission WHERE bed_id = $1 AND status = $2 ORDER BY admitted_at DESC LIMIT 1`,
		bedID, StatusAdmitted,
	).Scan(admissionTargets(&a)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query admission: %w", err)
	}
	return &a, nil
}

func (r *admissionRepoPG) PatientAdmitted(ctx context.Context, patientID uuid.UUID) (bool, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var admitted bool
	err = q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admission WHERE patient_id = $1 AND status = $2)`,
		patientID, StatusAdmitted,
	).Scan(&admitted)
	if err != nil {
		return false, fmt.Errorf("check admission: %w", err)
	}
	return admitted, nil
}

func (r *admissionRepoPG) Discharge(ctx context.Context, a *Admission) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	err = q.QueryRow(ctx, `
		UPDATE admission SET status = $2, discharged_at = NOW()
		WHERE id = $1
		RETURNING discharged_at`,
		a.ID, StatusDischarged,
	).Scan(&a.DischargedAt)
	if err != nil {
		return fmt.Errorf("discharge admission: %w", err)
	}
	a.Status = StatusDischarged
	return nil
}
