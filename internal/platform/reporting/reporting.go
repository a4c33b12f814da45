// Package reporting renders the clinic's daily registers as CSV or XLSX
// downloads.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/db"
)

// Definition is one downloadable report. SQL returns Columns as text, in
// order. Daily reports take the local start of day as $1.
type Definition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
	SQL         string   `json:"-"`
	Daily       bool     `json:"daily"`
}

const isoTimestamp = `'YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'`

// Definitions lists the available reports.
var Definitions = []Definition{
	{
		ID:          "opd",
		Name:        "Daily OPD List",
		Description: "Outpatient visits registered today",
		Columns:     []string{"Token", "PatientName", "Age", "Gender", "Status", "Diagnosis", "Date"},
		SQL: `SELECT v.token_no::text, p.name, p.age::text, p.gender, v.status,
		COALESCE(NULLIF(v.diagnosis, ''), 'N/A'),
		to_char(v.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')
		FROM opd_visit v JOIN patient p ON p.id = v.patient_id
		WHERE v.created_at >= $1
		ORDER BY v.token_no`,
		Daily: true,
	},
	{
		ID:          "admissions",
		Name:        "Admitted Patients",
		Description: "Patients currently occupying a bed",
		Columns:     []string{"PatientName", "BedNumber", "AdmittedAt", "Status"},
		SQL: `SELECT p.name, b.number,
		to_char(a.admitted_at AT TIME ZONE 'UTC', ` + isoTimestamp + `), a.status
		FROM admission a
		JOIN patient p ON p.id = a.patient_id
		JOIN bed b ON b.id = a.bed_id
		WHERE a.status = 'ADMITTED'
		ORDER BY a.admitted_at`,
	},
	{
		ID:          "pharmacy",
		Name:        "Medicine Dispensed",
		Description: "Prescriptions dispensed today",
		Columns:     []string{"PatientName", "Medicine", "Dosage", "DispensedAt"},
		SQL: `SELECT p.name, rx.medicine, rx.dosage,
		to_char(rx.updated_at AT TIME ZONE 'UTC', ` + isoTimestamp + `)
		FROM prescription rx
		JOIN opd_visit v ON v.id = rx.opd_visit_id
		JOIN patient p ON p.id = v.patient_id
		WHERE rx.status = 'DISPENSED' AND rx.updated_at >= $1
		ORDER BY rx.updated_at`,
		Daily: true,
	},
	{
		ID:          "lab",
		Name:        "Lab Test Summary",
		Description: "Lab orders created or updated today",
		Columns:     []string{"PatientName", "TestName", "Status", "Result", "Date"},
		SQL: `SELECT p.name, o.test_name, o.status, COALESCE(o.result, 'Pending'),
		to_char(o.updated_at AT TIME ZONE 'UTC', ` + isoTimestamp + `)
		FROM lab_order o
		JOIN opd_visit v ON v.id = o.opd_visit_id
		JOIN patient p ON p.id = v.patient_id
		WHERE o.updated_at >= $1
		ORDER BY o.updated_at`,
		Daily: true,
	},
}

// FindDefinition looks up a report by id.
func FindDefinition(id string) *Definition {
	for i := range Definitions {
		if Definitions[i].ID == id {
			return &Definitions[i]
		}
	}
	return nil
}

// Report is a rendered table.
type Report struct {
	Definition *Definition
	Rows       [][]string
	Generated  time.Time
}

// Filename is the attachment name for the given extension, dated by the
// generation day.
func (r *Report) Filename(ext string) string {
	return fmt.Sprintf("%s_report_%s.%s", r.Definition.ID, r.Generated.Format("2006-01-02"), ext)
}

// RowSource runs a report query and returns every row as text.
type RowSource interface {
	Rows(ctx context.Context, sql string, args ...interface{}) ([][]string, error)
}

type pgRowSource struct{}

// NewPGRowSource reads rows from the partition bound to the request.
func NewPGRowSource() RowSource {
	return pgRowSource{}
}

func (pgRowSource) Rows(ctx context.Context, sql string, args ...interface{}) ([][]string, error) {
	q, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	width := len(rows.FieldDescriptions())
	var out [][]string
	for rows.Next() {
		row := make([]string, width)
		targets := make([]interface{}, width)
		for i := range row {
			targets[i] = &row[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type Service struct {
	source RowSource
	now    func() time.Time
}

func NewService(source RowSource) *Service {
	return &Service{source: source, now: time.Now}
}

// Generate runs the report named id.
func (s *Service) Generate(ctx context.Context, id string) (*Report, error) {
	def := FindDefinition(id)
	if def == nil {
		return nil, apperr.New(apperr.ErrNotFound, "report not found")
	}
	now := s.now()
	var args []interface{}
	if def.Daily {
		y, m, d := now.Date()
		args = append(args, time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
	}
	rows, err := s.source.Rows(ctx, def.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("generate %s report: %w", def.ID, err)
	}
	return &Report{Definition: def, Rows: rows, Generated: now}, nil
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	for _, def := range Definitions {
		g.GET("/"+def.ID, h.download(def.ID))
	}
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, Definitions)
}

func (h *Handler) download(id string) echo.HandlerFunc {
	return func(c echo.Context) error {
		format := c.QueryParam("format")
		if format == "" {
			format = FormatCSV
		}
		enc, ok := encoders[format]
		if !ok {
			return apperr.New(apperr.ErrValidation, "format must be csv or xlsx")
		}
		report, err := h.svc.Generate(c.Request().Context(), id)
		if err != nil {
			return err
		}
		body, err := enc.encode(report)
		if err != nil {
			return fmt.Errorf("encode %s report: %w", id, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", report.Filename(format)))
		return c.Blob(http.StatusOK, enc.contentType, body)
	}
}
