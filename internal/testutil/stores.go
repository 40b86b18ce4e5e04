package testutil

import (
	"context"
	"sync"
	"time"

	"kaloriq-go/internal/kq"
	"kaloriq-go/internal/sharedstore"
)

// NewTestSharedStore returns an empty in-memory shared store.
func NewTestSharedStore() *sharedstore.MemoryStore {
	return sharedstore.NewMemoryStore()
}

// FailingSharedStore fails every call with Err.
type FailingSharedStore struct {
	Err error
}

func (s *FailingSharedStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, s.Err
}
func (s *FailingSharedStore) Set(context.Context, string, []byte) error { return s.Err }
func (s *FailingSharedStore) Delete(context.Context, string) error      { return s.Err }
func (s *FailingSharedStore) Close() error                              { return nil }

var _ kq.SharedStore = (*FailingSharedStore)(nil)

// FaultyHealthStore wraps a HealthStore and injects errors for selected
// calls. Zero fields pass through.
type FaultyHealthStore struct {
	kq.HealthStore

	mu         sync.Mutex
	QueryErrs  map[kq.Metric]error
	SaveErr    error
	SaveCalls  int
	QueryCalls int
}

func NewFaultyHealthStore(inner kq.HealthStore) *FaultyHealthStore {
	return &FaultyHealthStore{HealthStore: inner, QueryErrs: make(map[kq.Metric]error)}
}

func (s *FaultyHealthStore) Save(ctx context.Context, samples []kq.Sample) error {
	s.mu.Lock()
	s.SaveCalls++
	err := s.SaveErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.HealthStore.Save(ctx, samples)
}

func (s *FaultyHealthStore) Query(ctx context.Context, m kq.Metric, start, end time.Time) ([]kq.Sample, error) {
	s.mu.Lock()
	s.QueryCalls++
	err := s.QueryErrs[m]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.HealthStore.Query(ctx, m, start, end)
}

// LogEntry is one call captured by RecordingLogger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// RecordingLogger captures log calls for assertions.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewRecordingLogger() *RecordingLogger { return &RecordingLogger{} }

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Entries returns a copy of everything logged so far.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Count returns how many entries were logged at level.
func (l *RecordingLogger) Count(level string) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

var _ kq.Logger = (*RecordingLogger)(nil)
