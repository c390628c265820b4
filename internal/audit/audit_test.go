package audit

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEntryFillDefaults(t *testing.T) {
	entry := Entry{Action: "alert.ack", Metadata: []byte(`{"k":"v"}`)}
	entry.fill()

	if !strings.HasPrefix(entry.ID, "audit-") {
		t.Fatalf("id = %q", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("createdAt not defaulted")
	}
	if len(entry.PayloadDigest) != 64 {
		t.Fatalf("digest = %q, want sha256 hex", entry.PayloadDigest)
	}
}

func TestEntryFillKeepsCallerValues(t *testing.T) {
	entry := Entry{ID: "audit-fixed"}
	entry.fill()
	if entry.ID != "audit-fixed" {
		t.Fatalf("id = %q", entry.ID)
	}
	if entry.PayloadDigest != "" {
		t.Fatalf("digest = %q, want empty without metadata", entry.PayloadDigest)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, remote: "127.0.0.1:9", want: "10.0.0.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": " 10.0.0.3 "}, remote: "127.0.0.1:9", want: "10.0.0.3"},
		{name: "socket peer", remote: "192.168.1.7:51234", want: "192.168.1.7"},
		{name: "bare remote", remote: "192.168.1.8", want: "192.168.1.8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/v1/alerts/a/ack", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
