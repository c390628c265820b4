package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one operator action on a fleet resource: who did what to which
// resource, from where. Entries are append-only; there is no update path.
type Entry struct {
	ID            string
	TenantID      string
	Actor         string
	Action        string
	ResourceType  string
	ResourceID    string
	VehicleID     string
	IP            string
	UserAgent     string
	Metadata      json.RawMessage
	PayloadDigest string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// fill defaults the fields callers usually leave blank.
func (e *Entry) fill() {
	if e.ID == "" {
		e.ID = "audit-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.PayloadDigest == "" && len(e.Metadata) > 0 {
		sum := sha256.Sum256(e.Metadata)
		e.PayloadDigest = hex.EncodeToString(sum[:])
	}
}
