package interfaces

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	analytics "fleet-cloud/internal/analytics/domain"
)

type stubUtilizationReader struct {
	rows []analytics.DailyUtilization
	err  error

	gotTenant string
	gotFrom   time.Time
	gotTo     time.Time
}

func (s *stubUtilizationReader) Range(_ context.Context, tenantID string, from, to time.Time) ([]analytics.DailyUtilization, error) {
	s.gotTenant = tenantID
	s.gotFrom = from
	s.gotTo = to
	return s.rows, s.err
}

func sampleRows() []analytics.DailyUtilization {
	return []analytics.DailyUtilization{
		{
			TenantID:      "tenant-1",
			MachineID:     "veh-001",
			Day:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			TotalDistance: 142.5,
			EngineOnSecs:  14400,
			IdleSecs:      1800,
		},
	}
}

func TestExportHandlerXLSX(t *testing.T) {
	reader := &stubUtilizationReader{rows: sampleRows()}
	handler, err := NewExportHandler(reader, "tenant-1")
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/utilization.xlsx?from=2026-03-01&to=2026-03-07", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty workbook")
	}
	if reader.gotTenant != "tenant-1" {
		t.Fatalf("tenant = %q", reader.gotTenant)
	}
	if reader.gotFrom != time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("from = %s", reader.gotFrom)
	}
	// The `to` date is inclusive at the API, exclusive at the query.
	if reader.gotTo != time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("to = %s", reader.gotTo)
	}
}

func TestExportHandlerPDF(t *testing.T) {
	handler, err := NewExportHandler(&stubUtilizationReader{rows: sampleRows()}, "tenant-1")
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/utilization.pdf", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty document")
	}
}

func TestExportHandlerErrors(t *testing.T) {
	cases := []struct {
		name   string
		reader UtilizationReader
		target string
		method string
		status int
	}{
		{"inverted range", &stubUtilizationReader{}, "/api/v1/exports/utilization.xlsx?from=2026-03-07&to=2026-03-01", http.MethodGet, http.StatusBadRequest},
		{"bad from date", &stubUtilizationReader{}, "/api/v1/exports/utilization.xlsx?from=03-01-2026", http.MethodGet, http.StatusBadRequest},
		{"query failure", &stubUtilizationReader{err: errors.New("db down")}, "/api/v1/exports/utilization.pdf", http.MethodGet, http.StatusInternalServerError},
		{"unknown format", &stubUtilizationReader{}, "/api/v1/exports/utilization.csv", http.MethodGet, http.StatusNotFound},
		{"wrong method", &stubUtilizationReader{}, "/api/v1/exports/utilization.pdf", http.MethodPost, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, err := NewExportHandler(tc.reader, "tenant-1")
			if err != nil {
				t.Fatalf("new handler: %v", err)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, nil))
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}
