package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

type stubKeyStore struct {
	key *DeviceKey
	err error
}

func (s stubKeyStore) Lookup(_ context.Context, _ string) (*DeviceKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.key, nil
}

func signedRequest(t *testing.T, secret, deviceID, body string, ts time.Time) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(body))
	req.Header.Set("X-Device-Id", deviceID)
	req.Header.Set("X-Ingest-Timestamp", timestamp)
	req.Header.Set("X-Ingest-Signature", ComputeIngestSignature([]byte(secret), timestamp, []byte(body)))
	return req
}

func TestDeviceAuthAcceptsSignedRequest(t *testing.T) {
	store := stubKeyStore{key: &DeviceKey{DeviceID: "veh-001", TenantID: "tenant-1", SecretKey: "s3cret", IsActive: true}}
	middleware, err := NewDeviceAuthMiddleware(store, 5*time.Minute)
	if err != nil {
		t.Fatalf("new middleware: %v", err)
	}

	var gotIdentity DeviceIdentity
	var gotBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := DeviceIdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		gotIdentity = identity
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusAccepted)
	})

	body := `{"deviceId":"veh-001"}`
	rec := httptest.NewRecorder()
	middleware.Wrap(next).ServeHTTP(rec, signedRequest(t, "s3cret", "veh-001", body, time.Now()))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if gotIdentity.DeviceID != "veh-001" || gotIdentity.TenantID != "tenant-1" {
		t.Fatalf("identity = %+v", gotIdentity)
	}
	if gotBody != body {
		t.Fatalf("body not restored: %q", gotBody)
	}
}

func TestDeviceAuthRejections(t *testing.T) {
	activeKey := &DeviceKey{DeviceID: "veh-001", TenantID: "tenant-1", SecretKey: "s3cret", IsActive: true}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler must not run")
	})

	cases := []struct {
		name    string
		store   DeviceKeyStore
		request func(t *testing.T) *http.Request
		status  int
	}{
		{
			"missing headers",
			stubKeyStore{key: activeKey},
			func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader("{}"))
			},
			http.StatusUnauthorized,
		},
		{
			"wrong secret",
			stubKeyStore{key: activeKey},
			func(t *testing.T) *http.Request {
				return signedRequest(t, "wrong", "veh-001", "{}", time.Now())
			},
			http.StatusUnauthorized,
		},
		{
			"tampered body",
			stubKeyStore{key: activeKey},
			func(t *testing.T) *http.Request {
				req := signedRequest(t, "s3cret", "veh-001", "{}", time.Now())
				req.Body = io.NopCloser(strings.NewReader(`{"x":1}`))
				return req
			},
			http.StatusUnauthorized,
		},
		{
			"expired timestamp",
			stubKeyStore{key: activeKey},
			func(t *testing.T) *http.Request {
				return signedRequest(t, "s3cret", "veh-001", "{}", time.Now().Add(-10*time.Minute))
			},
			http.StatusUnauthorized,
		},
		{
			"unknown device",
			stubKeyStore{err: ErrUnknownDevice},
			func(t *testing.T) *http.Request {
				return signedRequest(t, "s3cret", "veh-404", "{}", time.Now())
			},
			http.StatusUnauthorized,
		},
		{
			"inactive device",
			stubKeyStore{key: &DeviceKey{DeviceID: "veh-001", TenantID: "tenant-1", SecretKey: "s3cret", IsActive: false}},
			func(t *testing.T) *http.Request {
				return signedRequest(t, "s3cret", "veh-001", "{}", time.Now())
			},
			http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			middleware, err := NewDeviceAuthMiddleware(tc.store, 5*time.Minute)
			if err != nil {
				t.Fatalf("new middleware: %v", err)
			}
			rec := httptest.NewRecorder()
			middleware.Wrap(next).ServeHTTP(rec, tc.request(t))
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}
