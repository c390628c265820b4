package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	alertapp "fleet-cloud/internal/alerts/application"
	alerts "fleet-cloud/internal/alerts/domain"
	"fleet-cloud/internal/audit"
)

// Handler provides alert HTTP endpoints.
type Handler struct {
	service     *alertapp.Service
	tenantID    string
	auditLogger audit.Logger
}

// NewHandler constructs a handler. tenantID scopes list queries when the
// caller supplies none; auditLogger may be nil.
func NewHandler(service *alertapp.Service, tenantID string, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	return &Handler{service: service, tenantID: tenantID, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/v1/alerts and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/alerts":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alerts/"):
		h.handleAction(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID = h.tenantID
	}
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.service.List(r.Context(), tenantID, r.URL.Query().Get("status"), r.URL.Query().Get("vehicle_id"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]
	action := parts[1]

	var (
		alert *alerts.Alert
		err   error
	)
	switch action {
	case "ack":
		alert, err = h.service.Acknowledge(r.Context(), id)
	case "resolve":
		alert, err = h.service.Resolve(r.Context(), id)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if errors.Is(err, alerts.ErrInvalidTransition) {
			http.Error(w, "invalid status transition", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAudit(r, alert, "alert."+action)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(alert)
}

func (h *Handler) logAudit(r *http.Request, alert *alerts.Alert, action string) {
	if h.auditLogger == nil || alert == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     alert.TenantID,
		Action:       action,
		ResourceType: "alert",
		ResourceID:   alert.ID,
		VehicleID:    alert.VehicleID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
