package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleet-cloud/internal/auth"
	"fleet-cloud/internal/stream"
	"fleet-cloud/internal/telemetry/application"
	telemetry "fleet-cloud/internal/telemetry/domain"
)

type passDedup struct {
	duplicate bool
	err       error
}

func (s passDedup) IsDuplicate(_ context.Context, _ telemetry.Event) (bool, error) {
	return s.duplicate, s.err
}

type passHotState struct{}

func (passHotState) UpdateIfLive(_ context.Context, _ telemetry.Event) (bool, error) {
	return true, nil
}

type nopRepo struct{}

func (nopRepo) Insert(_ context.Context, _ telemetry.Event) error { return nil }

func newHandlerService(t *testing.T, dedup application.DedupGate) *application.IngestService {
	t.Helper()
	logger := log.New(log.Writer(), "", 0)
	writer, err := application.NewStoreWriter(nopRepo{}, logger)
	if err != nil {
		t.Fatalf("new store writer: %v", err)
	}
	service, err := application.NewIngestService(dedup, passHotState{}, stream.NewMemoryBus(logger), writer, logger)
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	return service
}

func ingestRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(body))
	ctx := auth.WithDeviceIdentity(req.Context(), auth.DeviceIdentity{DeviceID: "veh-001", TenantID: "tenant-1"})
	return req.WithContext(ctx)
}

func validBody() string {
	return `{"deviceId":"veh-001","timestamp":"` + time.Now().UTC().Format(time.RFC3339) +
		`","location":{"lat":1,"lng":2,"speed":10},"metrics":{"fuelLevel":60}}`
}

func TestIngestHandlerAccepts(t *testing.T) {
	handler, err := NewIngestHandler(newHandlerService(t, passDedup{}), nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ingestRequest(validBody()))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["accepted"] != true {
		t.Fatalf("body = %v", resp)
	}
}

func TestIngestHandlerDuplicate(t *testing.T) {
	handler, err := NewIngestHandler(newHandlerService(t, passDedup{duplicate: true}), nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ingestRequest(validBody()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ignored_duplicate" {
		t.Fatalf("body = %v", resp)
	}
}

func TestIngestHandlerValidationFailure(t *testing.T) {
	handler, err := NewIngestHandler(newHandlerService(t, passDedup{}), nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := `{"deviceId":"veh-001","timestamp":"nope","location":{"lat":91,"lng":2}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ingestRequest(body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error  string                     `json:"error"`
		Errors []telemetry.FieldViolation `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "validation_failed" || len(resp.Errors) != 2 {
		t.Fatalf("body = %+v", resp)
	}
}

func TestIngestHandlerInfraFailure(t *testing.T) {
	handler, err := NewIngestHandler(newHandlerService(t, passDedup{err: errors.New("redis down")}), nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ingestRequest(validBody()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBatchHandlerPartialSuccess(t *testing.T) {
	handler, err := NewBatchHandler(newHandlerService(t, passDedup{}), nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := `{"events":[` + validBody() + `,{"deviceId":"veh-002"}]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry/batch", strings.NewReader(body))
	req = req.WithContext(auth.WithDeviceIdentity(req.Context(), auth.DeviceIdentity{DeviceID: "veh-001", TenantID: "tenant-1"}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var result application.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Received != 2 || result.Processed != 1 || len(result.Failures) != 1 {
		t.Fatalf("result = %+v", result)
	}
}

type stubHotStateReader struct {
	state *telemetry.DeviceState
	err   error
}

func (s stubHotStateReader) Latest(_ context.Context, _ string) (*telemetry.DeviceState, error) {
	return s.state, s.err
}

func TestStateHandler(t *testing.T) {
	known := &telemetry.DeviceState{DeviceID: "veh-001", Lat: 1, Lng: 2, Speed: 10, LastSeen: time.Now().UTC()}

	cases := []struct {
		name   string
		reader HotStateReader
		path   string
		status int
	}{
		{"known device", stubHotStateReader{state: known}, "/api/v1/devices/veh-001/state", http.StatusOK},
		{"unknown device", stubHotStateReader{}, "/api/v1/devices/veh-404/state", http.StatusNotFound},
		{"bad path", stubHotStateReader{state: known}, "/api/v1/devices/state", http.StatusBadRequest},
		{"read failure", stubHotStateReader{err: errors.New("redis down")}, "/api/v1/devices/veh-001/state", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, err := NewStateHandler(tc.reader, nil)
			if err != nil {
				t.Fatalf("new handler: %v", err)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}
