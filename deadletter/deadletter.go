// Package deadletter records events that could not be processed and
// coordination triggers that could not be delivered, for operator inspection
// and manual replay.
package deadletter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies why an entry was recorded.
type Kind string

const (
	// KindMalformed marks wire data that could not be decoded. Such
	// messages are dropped without retry.
	KindMalformed Kind = "malformed"
	// KindUnsentTrigger marks a coordination trigger whose publish retries
	// were exhausted. The project is escalated to FAILED and the trigger
	// kept here for administrative replay.
	KindUnsentTrigger Kind = "unsent_trigger"
	// KindExpired marks a project that exceeded its failure deadline
	// without reaching a terminal resolution.
	KindExpired Kind = "expired"
)

// Entry is one dead-lettered item.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	RecordedAt time.Time `json:"recordedAt"`
	Kind       Kind      `json:"kind"`
	Channel    string    `json:"channel"`
	ProjectID  string    `json:"projectId"`
	Reason     string    `json:"reason"`
	Data       []byte    `json:"data"`
}

// Log is the sink for dead-lettered items. Recording must never block event
// processing for other projects.
type Log interface {
	Record(ctx context.Context, entry Entry) error
}

// MemoryLog is an in-process Log, used in tests and single-node deployments.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Record(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (l *MemoryLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
