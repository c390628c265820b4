package interfaces

import (
	"context"
	"errors"
	"net/http"
	"time"

	analytics "fleet-cloud/internal/analytics/domain"
	"fleet-cloud/internal/observability/metrics"
)

// UtilizationReader lists accumulated daily rows for a tenant.
type UtilizationReader interface {
	Range(ctx context.Context, tenantID string, from, to time.Time) ([]analytics.DailyUtilization, error)
}

// ExportHandler serves utilization report downloads under
// /api/v1/exports/utilization.{xlsx,pdf}.
type ExportHandler struct {
	reader   UtilizationReader
	tenantID string
}

// NewExportHandler constructs a handler. tenantID is the default tenant when
// the query does not name one.
func NewExportHandler(reader UtilizationReader, tenantID string) (*ExportHandler, error) {
	if reader == nil {
		return nil, errors.New("export handler: nil reader")
	}
	return &ExportHandler{reader: reader, tenantID: tenantID}, nil
}

// ServeHTTP handles export routes.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/exports/utilization.xlsx":
		h.handleExport(w, r, "xlsx")
	case "/api/v1/exports/utilization.pdf":
		h.handleExport(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ExportHandler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	ok := true
	defer func() {
		metrics.ObserveExport(format, ok, time.Since(start))
	}()

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID = h.tenantID
	}
	from, to, err := exportRange(r)
	if err != nil {
		ok = false
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := h.reader.Range(r.Context(), tenantID, from, to)
	if err != nil {
		ok = false
		http.Error(w, "utilization query error", http.StatusInternalServerError)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case "xlsx":
		data, err = BuildUtilizationXLSX(tenantID, from, to, rows)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = BuildUtilizationPDF(tenantID, from, to, rows)
		contentType = "application/pdf"
	}
	if err != nil {
		ok = false
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// exportRange parses from/to query params (2006-01-02); to is exclusive and
// defaults to tomorrow, from defaults to 30 days before to.
func exportRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to date")
		}
		to = parsed.AddDate(0, 0, 1)
	}

	from := to.AddDate(0, 0, -31)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from date")
		}
		from = parsed
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}
