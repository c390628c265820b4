package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"fleet-cloud/internal/auth"
	"fleet-cloud/internal/observability/metrics"
	"fleet-cloud/internal/telemetry/application"
	telemetry "fleet-cloud/internal/telemetry/domain"
)

// IngestHandler accepts one telemetry payload per request from an
// authenticated device. The device gate has already attached the verified
// identity to the request context.
type IngestHandler struct {
	service *application.IngestService
	logger  *log.Logger
}

// NewIngestHandler constructs a handler.
func NewIngestHandler(service *application.IngestService, logger *log.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

// ServeHTTP ingests a single event.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.IngestResultAccepted
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		result = metrics.IngestResultError
		metrics.IncIngestError("method_not_allowed")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw, ok := decodeBody(w, r, h.logger, &result)
	if !ok {
		return
	}

	outcome, violations, err := h.service.Ingest(r.Context(), raw, tenantFromContext(r.Context()))
	if err != nil {
		h.logger.Printf("telemetry ingest: %v", err)
		result = metrics.IngestResultError
		metrics.IncIngestError("infra")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}

	switch outcome {
	case application.OutcomeDuplicate:
		result = metrics.IngestResultDuplicate
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored_duplicate"})
	case application.OutcomeInvalid:
		result = metrics.IngestResultInvalid
		metrics.IncIngestError("validation")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation_failed", "errors": violations})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
	}
}

// BatchHandler accepts `{events: [...]}` payloads; each item is processed
// independently and the response tallies partial success.
type BatchHandler struct {
	service *application.IngestService
	logger  *log.Logger
}

// NewBatchHandler constructs a handler.
func NewBatchHandler(service *application.IngestService, logger *log.Logger) (*BatchHandler, error) {
	if service == nil {
		return nil, errors.New("batch handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BatchHandler{service: service, logger: logger}, nil
}

// ServeHTTP ingests a batch of events.
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.IngestResultAccepted
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		result = metrics.IngestResultError
		metrics.IncIngestError("method_not_allowed")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		result = metrics.IngestResultError
		metrics.IncIngestError("read_body")
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req struct {
		Events []any `json:"events"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		result = metrics.IngestResultError
		metrics.IncIngestError("invalid_json")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	batch := h.service.IngestBatch(r.Context(), req.Events, tenantFromContext(r.Context()))
	writeJSON(w, http.StatusOK, batch)
}

// HotStateReader serves latest-known device snapshots.
type HotStateReader interface {
	Latest(ctx context.Context, deviceID string) (*telemetry.DeviceState, error)
}

// StateHandler exposes the hot-state read contract over HTTP at
// /api/v1/devices/{id}/state.
type StateHandler struct {
	hotState HotStateReader
	logger   *log.Logger
}

// NewStateHandler constructs a handler.
func NewStateHandler(hotState HotStateReader, logger *log.Logger) (*StateHandler, error) {
	if hotState == nil {
		return nil, errors.New("state handler: nil hot state")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StateHandler{hotState: hotState, logger: logger}, nil
}

// ServeHTTP returns the latest snapshot or 404 when none is known.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	deviceID := deviceIDFromPath(r.URL.Path)
	if deviceID == "" {
		http.Error(w, "missing device id", http.StatusBadRequest)
		return
	}

	state, err := h.hotState.Latest(r.Context(), deviceID)
	if err != nil {
		h.logger.Printf("device state: read for %s failed: %v", deviceID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}
	if state == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown_device"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func deviceIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	// /api/v1/devices/{id}/state
	if len(parts) == 5 && parts[2] == "devices" && parts[4] == "state" {
		return parts[3]
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *log.Logger, result *string) (map[string]any, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Printf("telemetry ingest: read body error: %v", err)
		*result = metrics.IngestResultError
		metrics.IncIngestError("read_body")
		http.Error(w, "read body error", http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()

	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		logger.Printf("telemetry ingest: decode error: %v", err)
		*result = metrics.IngestResultError
		metrics.IncIngestError("invalid_json")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return nil, false
	}
	return raw, true
}

func tenantFromContext(ctx context.Context) string {
	if identity, ok := auth.DeviceIdentityFromContext(ctx); ok {
		return identity.TenantID
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
