// Package ledger records what a mirror run did. The ledger is write-mostly
// observability: the engine never reads it back to decide whether a file needs
// downloading.
package ledger

import (
	"context"
	"sync"
	"time"
)

// EventType names a ledger event.
type EventType string

// Event types written by the mirror engine.
const (
	EventRunStarted     EventType = "run_started"
	EventFileDownloaded EventType = "file_downloaded"
	EventFileSkipped    EventType = "file_skipped"
	EventRunFailed      EventType = "run_failed"
	EventRunCompleted   EventType = "run_completed"
)

// Run statuses reported by Summary.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event is one entry in a run's ledger.
type Event struct {
	RunID string    `json:"runId"`
	Type  EventType `json:"type"`
	Repo  string    `json:"repo"`
	Path  string    `json:"path,omitempty"`
	Bytes int64     `json:"bytes,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Summary aggregates the events of one run.
type Summary struct {
	RunID      string     `json:"runId"`
	Repo       string     `json:"repo"`
	Status     string     `json:"status"`
	Downloaded int        `json:"downloaded"`
	Skipped    int        `json:"skipped"`
	Bytes      int64      `json:"bytes"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Apply folds e into s.
func (s *Summary) Apply(e Event) {
	if s.RunID == "" {
		s.RunID = e.RunID
	}
	if s.Repo == "" {
		s.Repo = e.Repo
	}
	switch e.Type {
	case EventRunStarted:
		s.Status = StatusRunning
		s.StartedAt = e.At
	case EventFileDownloaded:
		s.Downloaded++
		s.Bytes += e.Bytes
	case EventFileSkipped:
		s.Skipped++
	case EventRunFailed:
		s.Status = StatusFailed
		s.Error = e.Error
		at := e.At
		s.FinishedAt = &at
	case EventRunCompleted:
		s.Status = StatusCompleted
		at := e.At
		s.FinishedAt = &at
	}
}

// Recorder persists ledger events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
	// Summary returns nil when the run is unknown.
	Summary(ctx context.Context, runID string) (*Summary, error)
}

// Compile-time checks.
var (
	_ Recorder = Nop{}
	_ Recorder = (*Memory)(nil)
)

// Nop discards every event.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) error { return nil }

// Summary implements Recorder.
func (Nop) Summary(context.Context, string) (*Summary, error) {
	return nil, nil //nolint:nilnil // unknown run
}

// Memory keeps events in process. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty Memory recorder.
func NewMemory() *Memory { return &Memory{} }

// Record implements Recorder.
func (m *Memory) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Summary implements Recorder.
func (m *Memory) Summary(_ context.Context, runID string) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s *Summary
	for _, e := range m.events {
		if e.RunID != runID {
			continue
		}
		if s == nil {
			s = &Summary{}
		}
		s.Apply(e)
	}
	return s, nil
}

// Events returns a copy of every recorded event in order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
