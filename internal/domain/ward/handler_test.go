package ward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/platform/apperr"
)

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_BedFlow(t *testing.T) {
	svc, store := newTestService()
	h, e := NewHandler(svc), echo.New()

	rec := httptest.NewRecorder()
	if err := h.Init(e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"created":5`) {
		t.Errorf("unexpected init body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	if err := h.AddBed(e.NewContext(jsonRequest(http.MethodPost, `{"number":"Bed 6"}`), rec)); err != nil {
		t.Fatalf("add bed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	err := h.AddBed(e.NewContext(jsonRequest(http.MethodPost, `{"number":"Bed 6"}`), httptest.NewRecorder()))
	if apperr.Status(err) != http.StatusConflict {
		t.Errorf("expected 409 for duplicate bed, got %d", apperr.Status(err))
	}

	rec = httptest.NewRecorder()
	h.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	var beds []Bed
	if err := json.Unmarshal(rec.Body.Bytes(), &beds); err != nil || len(beds) != 6 {
		t.Fatalf("expected 6 beds, got %s", rec.Body.String())
	}

	pid := store.addPatient("Gita")
	body := `{"patient_id":"` + pid.String() + `","bed_id":"` + beds[0].ID.String() + `"}`
	rec = httptest.NewRecorder()
	if err := h.Admit(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	err = h.Admit(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	if apperr.Status(err) != http.StatusConflict {
		t.Errorf("expected 409 for occupied bed, got %d", apperr.Status(err))
	}

	discharge := func() (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		c.SetParamNames("bedId")
		c.SetParamValues(beds[0].ID.String())
		return rec, h.Discharge(c)
	}
	if rec, err := discharge(); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("discharge: %v", err)
	}
	if _, err := discharge(); apperr.Status(err) != http.StatusBadRequest {
		t.Errorf("expected 400 on second discharge, got %d", apperr.Status(err))
	}
}

func TestHandler_EmptyWard(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Body.String() != "[]\n" {
		t.Errorf("expected empty array, got %q", rec.Body.String())
	}
	if n, _ := svc.Init(context.Background()); n != DefaultBedCount {
		t.Errorf("expected init after empty list, got %d", n)
	}
}
