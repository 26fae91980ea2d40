// Package archive persists conversation transcripts when a session ends.
// Backends: local disk for development, S3-compatible object storage for
// deployments. Archival is best-effort; a failed save is logged by the
// caller and never blocks session teardown.
package archive

import (
	"context"
	"time"

	"github.com/vigil-voice/vigil/pkg/dialog"
)

// Transcript is the archived document for one finished session.
type Transcript struct {
	SessionID string            `json:"session_id"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
	Emergency string            `json:"emergency,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	Exchanges []dialog.Exchange `json:"exchanges"`
}

// Store saves finished-session transcripts.
//
// Implementations must be safe for concurrent use; sessions end
// independently.
type Store interface {
	Save(ctx context.Context, t *Transcript) error
}

// objectKey is the storage path for a transcript: one directory per day,
// one document per session.
func objectKey(t *Transcript) string {
	return t.EndedAt.UTC().Format("2006-01-02") + "/" + t.SessionID + ".json"
}
