package transcript

import (
	"context"
	"time"
)

// EntryRecord is one archived utterance from a training call.
type EntryRecord struct {
	ID        string    `json:"id"`
	RoomName  string    `json:"room_name"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is the terminal record written when a call ends.
type SessionSummary struct {
	RoomName    string    `json:"room_name"`
	DurationSec int       `json:"duration_sec"`
	EndedAt     time.Time `json:"ended_at"`
}

// Store archives transcript entries and session summaries.
type Store interface {
	SaveEntry(ctx context.Context, record EntryRecord) error
	SessionEntries(ctx context.Context, roomName string, limit int) ([]EntryRecord, error)
	EndSession(ctx context.Context, summary SessionSummary) error
	Close() error
}
