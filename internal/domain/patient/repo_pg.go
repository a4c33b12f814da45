package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/db"
)

var columnNames = []string{
	"id", "name", "age", "gender", "phone", "address", "blood_group", "emergency_contact",
	"weight", "bp", "sugar", "temp", "pre_existing_diseases", "allergies", "is_pregnant",
	"patient_type", "created_at", "updated_at",
}

// Columns returns the patient column list qualified by alias, for joins
// from other tables. An empty alias leaves the names bare.
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

// ScanTargets returns scan destinations for p matching Columns.
func ScanTargets(p *Patient) []interface{} {
	return []interface{}{
		&p.ID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.Address, &p.BloodGroup, &p.EmergencyContact,
		&p.Weight, &p.BP, &p.Sugar, &p.Temp, &p.PreExistingDiseases, &p.Allergies, &p.IsPregnant,
		&p.PatientType, &p.CreatedAt, &p.UpdatedAt,
	}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type patientRepoPG struct{}

// NewPatientRepoPG returns the patient repository. Queries run on the
// partition attached to ctx.
func NewPatientRepoPG() PatientRepository {
	return &patientRepoPG{}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(ScanTargets(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ErrNotFound, "patient not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Patient, error) {
		return scanPatient(row)
	})
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	q, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	p.ID = uuid.New()
	err = q.QueryRow(ctx, `
		INSERT INTO patient (
			id, name, age, gender, phone, address, blood_group, emergency_contact,
			weight, bp, sugar, temp, pre_existing_diseases, allergies, is_pregnant, patient_type
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Age, p.Gender, p.Phone, p.Address, p.BloodGroup, p.EmergencyContact,
		p.Weight, p.BP, p.Sugar, p.Temp, p.PreExistingDiseases, p.Allergies, p.IsPregnant, p.PatientType,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	sql := `SELECT ` + strings.Join(columnNames, ", ") + ` FROM patient WHERE id = $1`
	return scanPatient(q.QueryRow(ctx, sql, id))
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT `+strings.Join(columnNames, ", ")+`
		FROM patient ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	items, err := collectPatients(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// escapeLike escapes the LIKE metacharacters of s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func searchQuery(query string, limit int) (string, []interface{}, error) {
	pattern := "%" + escapeLike(query) + "%"
	return psql.Select(columnNames...).
		From("patient").
		Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.Like{"phone": pattern},
		}).
		OrderBy("name").
		Limit(uint64(limit)).
		ToSql()
}

func (r *patientRepoPG) Search(ctx context.Context, query string, limit int) ([]*Patient, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	sql, args, err := searchQuery(query, limit)
	if err != nil {
		return nil, fmt.Errorf("build patient search: %w", err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return collectPatients(rows)
}
