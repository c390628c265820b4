package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DeviceAuthMiddleware validates HMAC-signed, time-boxed device requests.
// Requests reaching the wrapped handler carry a verified DeviceIdentity in
// their context; nothing unauthenticated passes this gate.
type DeviceAuthMiddleware struct {
	keys    DeviceKeyStore
	maxSkew time.Duration
}

// NewDeviceAuthMiddleware constructs the middleware.
func NewDeviceAuthMiddleware(keys DeviceKeyStore, maxSkew time.Duration) (*DeviceAuthMiddleware, error) {
	if keys == nil {
		return nil, errors.New("device auth: nil key store")
	}
	return &DeviceAuthMiddleware{keys: keys, maxSkew: maxSkew}, nil
}

// Wrap enforces signature validation before the next handler runs.
func (m *DeviceAuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.Header.Get("X-Device-Id"))
		timestamp := strings.TrimSpace(r.Header.Get("X-Ingest-Timestamp"))
		signature := strings.TrimSpace(r.Header.Get("X-Ingest-Signature"))
		if deviceID == "" || timestamp == "" || signature == "" {
			http.Error(w, "missing ingest signature", http.StatusUnauthorized)
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			http.Error(w, "invalid ingest timestamp", http.StatusUnauthorized)
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if m.maxSkew > 0 && skew > m.maxSkew {
			http.Error(w, "ingest signature expired", http.StatusUnauthorized)
			return
		}

		key, err := m.keys.Lookup(r.Context(), deviceID)
		if err != nil {
			if errors.Is(err, ErrUnknownDevice) {
				http.Error(w, "unknown device", http.StatusUnauthorized)
				return
			}
			http.Error(w, "device lookup failed", http.StatusInternalServerError)
			return
		}
		if !key.IsActive {
			http.Error(w, "device inactive", http.StatusForbidden)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body error", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()

		expected := ComputeIngestSignature([]byte(key.SecretKey), timestamp, body)
		if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			http.Error(w, "invalid ingest signature", http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := WithDeviceIdentity(r.Context(), DeviceIdentity{DeviceID: key.DeviceID, TenantID: key.TenantID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ComputeIngestSignature derives the hex HMAC-SHA256 over timestamp and body.
func ComputeIngestSignature(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
