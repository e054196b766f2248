package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process archive for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	entries   map[string][]EntryRecord
	summaries map[string]SessionSummary
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries:   make(map[string][]EntryRecord),
		summaries: make(map[string]SessionSummary),
	}
}

func (s *InMemoryStore) SaveEntry(_ context.Context, record EntryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.entries[record.RoomName] = append(s.entries[record.RoomName], record)
	return nil
}

func (s *InMemoryStore) SessionEntries(_ context.Context, roomName string, limit int) ([]EntryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.entries[roomName]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]EntryRecord, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) EndSession(_ context.Context, summary SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary.EndedAt.IsZero() {
		summary.EndedAt = time.Now().UTC()
	}
	s.summaries[summary.RoomName] = summary
	return nil
}

// Summary returns the terminal record for a room, if the session has ended.
func (s *InMemoryStore) Summary(roomName string) (SessionSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[roomName]
	return sum, ok
}

func (s *InMemoryStore) Close() error { return nil }
