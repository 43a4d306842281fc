// Package history keeps a bounded, in-memory log of executed requests.
// The newest entry wins a slot from the oldest once the ring is full;
// nothing is written to disk.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/reqstage/internal/response"
)

const DefaultCapacity = 100

type Entry struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"requestId,omitempty"`
	RequestName string          `json:"requestName,omitempty"`
	Environment string          `json:"environment,omitempty"`
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	Status      string          `json:"status"`
	StatusCode  int             `json:"statusCode"`
	Duration    time.Duration   `json:"duration"`
	ExecutedAt  time.Time       `json:"executedAt"`
	Via         string          `json:"via,omitempty"`
	Fingerprint uint64          `json:"fingerprint,omitempty"`
	BodySnippet string          `json:"bodySnippet,omitempty"`
	Timing      response.Timing `json:"timing"`
}

type Log struct {
	mu   sync.Mutex
	buf  []Entry
	head int
	size int
	now  func() time.Time
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		buf: make([]Entry, capacity),
		now: time.Now,
	}
}

// Record stores entry and returns it with ID and timestamp filled in.
func (l *Log) Record(entry Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = l.now()
	}
	l.buf[l.head] = entry
	l.head = (l.head + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
	return entry
}

// All returns the retained entries, newest first.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, l.size)
	for i := 0; i < l.size; i++ {
		idx := (l.head - 1 - i + 2*len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Find returns entries whose fingerprint matches, newest first.
func (l *Log) Find(fingerprint uint64) []Entry {
	var out []Entry
	for _, entry := range l.All() {
		if entry.Fingerprint == fingerprint {
			out = append(out, entry)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *Log) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = 0
	l.size = 0
	for i := range l.buf {
		l.buf[i] = Entry{}
	}
}
