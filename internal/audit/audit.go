// Package audit records structured pipeline events.
//
// Events never carry raw file names; callers pass HashName(name) instead.
package audit

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	FileValidationSuccess = "file_validation_success"
	FileValidationFailed  = "file_validation_failed"
	ProcessingSuccess     = "image_processing_success"
	ProcessingFailed      = "image_processing_failed"
	ProcessTimeout        = "process_timeout"
	SurfaceEvicted        = "surface_evicted"
	AllProcessesAborted   = "all_processes_aborted"
	RateLimitExceeded     = "rate_limit_exceeded"
	BatchTooManyFiles     = "batch_too_many_files"
	BatchFileFailed       = "batch_file_failed"
	BatchCompleted        = "batch_completed"
)

// DefaultHistoryCapacity is how many events a Log retains by default.
const DefaultHistoryCapacity = 100

// Event is one audit record.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId"`
}

// Emitter accepts audit events.
type Emitter interface {
	Emit(eventType string, data map[string]any)
}

// Log keeps the most recent events in memory and mirrors each one to a logger.
// It is safe for concurrent use.
type Log struct {
	mu        sync.Mutex
	events    []Event
	capacity  int
	sessionID string
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithLogger mirrors events to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithCapacity bounds the in-memory history. Values < 1 are ignored.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(l *Log) {
		l.sessionID = id
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog creates an event log with a fresh session id.
func NewLog(opts ...Option) *Log {
	l := &Log{
		capacity:  DefaultHistoryCapacity,
		sessionID: "session_" + uuid.NewString(),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Emit records an event and writes it to the logger.
func (l *Log) Emit(eventType string, data map[string]any) {
	ev := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: l.now(),
		SessionID: l.sessionID,
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	l.mu.Unlock()

	l.logger.Info().
		Str("event", eventType).
		Str("session_id", l.sessionID).
		Fields(data).
		Msg("audit event")
}

// Events returns a copy of the retained history, oldest first.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// SessionID returns the identifier attached to every event.
func (l *Log) SessionID() string {
	return l.sessionID
}

// Reset drops the retained history.
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

// HashName returns a short stable digest of a file name, safe to log.
func HashName(name string) string {
	return strconv.FormatUint(xxhash.Sum64String(name), 36)
}

// Discard is an Emitter that drops every event.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(string, map[string]any) {}
