package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/phc/phc/internal/platform/apperr"
)

type fakeSource struct {
	rows [][]string
	err  error
	sql  string
	args []interface{}
}

func (f *fakeSource) Rows(_ context.Context, sql string, args ...interface{}) ([][]string, error) {
	f.sql, f.args = sql, args
	return f.rows, f.err
}

func newTestService(src RowSource) *Service {
	svc := NewService(src)
	svc.now = func() time.Time { return time.Date(2026, 10, 18, 14, 5, 0, 0, time.Local) }
	return svc
}

func TestDefinitions(t *testing.T) {
	ids := []string{"opd", "admissions", "pharmacy", "lab"}
	require.Len(t, Definitions, len(ids))
	for i, id := range ids {
		def := Definitions[i]
		assert.Equal(t, id, def.ID)
		assert.NotEmpty(t, def.Columns)
		assert.Equal(t, def.Daily, strings.Contains(def.SQL, "$1"), "%s: daily flag must match the $1 parameter", id)
		assert.Same(t, &Definitions[i], FindDefinition(id))
	}
	assert.Nil(t, FindDefinition("billing"))
	assert.Equal(t, []string{"Token", "PatientName", "Age", "Gender", "Status", "Diagnosis", "Date"}, FindDefinition("opd").Columns)
}

func TestGenerate_DailyReportUsesStartOfDay(t *testing.T) {
	src := &fakeSource{rows: [][]string{{"1", "Ramesh", "42", "M", "WAITING", "N/A", "2026-10-18"}}}
	r, err := newTestService(src).Generate(context.Background(), "opd")
	require.NoError(t, err)

	require.Len(t, src.args, 1)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.Local), src.args[0])
	assert.Len(t, r.Rows, 1)
	assert.Equal(t, "opd_report_2026-10-18.csv", r.Filename("csv"))
}

func TestGenerate_AdmissionsHasNoDateFilter(t *testing.T) {
	src := &fakeSource{}
	_, err := newTestService(src).Generate(context.Background(), "admissions")
	require.NoError(t, err)
	assert.Empty(t, src.args)
}

func TestGenerate_Errors(t *testing.T) {
	_, err := newTestService(&fakeSource{}).Generate(context.Background(), "billing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = newTestService(&fakeSource{err: errors.New("boom")}).Generate(context.Background(), "lab")
	assert.ErrorContains(t, err, "generate lab report")
}

func TestEncodeCSV(t *testing.T) {
	r := &Report{
		Definition: FindDefinition("pharmacy"),
		Rows:       [][]string{{"Sita", "Paracetamol, 500mg", "", "2026-10-18T08:30:00.000Z"}},
	}
	body, err := EncodeCSV(r)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"PatientName", "Medicine", "Dosage", "DispensedAt"}, records[0])
	assert.Equal(t, "Paracetamol, 500mg", records[1][1])
}

func TestEncodeXLSX(t *testing.T) {
	r := &Report{
		Definition: FindDefinition("lab"),
		Rows: [][]string{
			{"Ramesh", "CBC", "COMPLETED", "Hb 13.2", "2026-10-18T08:30:00.000Z"},
			{"Sita", "Malaria smear", "PENDING", "Pending", "2026-10-18T09:00:00.000Z"},
		},
	}
	body, err := EncodeXLSX(r)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Lab Test Summary"}, f.GetSheetList())
	rows, err := f.GetRows("Lab Test Summary")
	require.NoError(t, err)
	want := append([][]string{r.Definition.Columns}, r.Rows...)
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("sheet rows mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_Download(t *testing.T) {
	src := &fakeSource{rows: [][]string{{"Lakshmi", "Bed 1", "2026-10-17T22:00:00.000Z", "ADMITTED"}}}
	h := NewHandler(newTestService(src))
	e := echo.New()

	tests := []struct {
		query       string
		contentType string
		filename    string
	}{
		{"", "text/csv; charset=utf-8", "admissions_report_2026-10-18.csv"},
		{"?format=csv", "text/csv; charset=utf-8", "admissions_report_2026-10-18.csv"},
		{"?format=xlsx", encoders[FormatXLSX].contentType, "admissions_report_2026-10-18.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/reports/admissions"+tt.query, nil), rec)
			require.NoError(t, h.download("admissions")(c))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.contentType, rec.Header().Get(echo.HeaderContentType))
			assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), tt.filename)
			assert.NotEmpty(t, rec.Body.Bytes())
		})
	}

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/reports/admissions?format=pdf", nil), httptest.NewRecorder())
	assert.ErrorIs(t, h.download("admissions")(c), apperr.ErrValidation)
}

func TestHandler_List(t *testing.T) {
	h := NewHandler(newTestService(&fakeSource{}))
	rec := httptest.NewRecorder()
	require.NoError(t, h.List(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.Contains(t, rec.Body.String(), `"id":"pharmacy"`)
	assert.NotContains(t, rec.Body.String(), "SELECT")
}
