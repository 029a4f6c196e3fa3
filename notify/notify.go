// Package notify defines the sink that receives user-facing notifications
// from mutation hooks and bulk transfers. Rendering them is up to the
// application.
package notify

import (
	"sync"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/types"
)

// Type is the kind of a notification.
type Type string

const (
	TypeSuccess  Type = "success"
	TypeError    Type = "error"
	TypeProgress Type = "progress"
)

// Notification is one event for the user. Key identifies it so a later
// notification with the same key replaces it, as progress updates do.
type Notification struct {
	Key         string
	Type        Type
	Message     string
	Description string

	// Kind is set on error notifications.
	Kind types.ErrorKind

	// Progress is set on progress notifications.
	Processed int
	Total     int
}

// Sink receives notifications.
type Sink interface {
	// Open shows or replaces a notification.
	Open(n Notification)

	// Close dismisses the notification with key.
	Close(key string)
}

// NoOp discards notifications.
type NoOp struct{}

// Open does nothing.
func (NoOp) Open(Notification) {}

// Close does nothing.
func (NoOp) Close(string) {}

// LoggerSink writes notifications to a cache.Logger.
type LoggerSink struct {
	logger cache.Logger
}

// NewLoggerSink creates a sink that logs through logger.
func NewLoggerSink(logger cache.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Open logs n at a level matching its type.
func (s *LoggerSink) Open(n Notification) {
	args := []any{"key", n.Key}
	if n.Description != "" {
		args = append(args, "description", n.Description)
	}

	switch n.Type {
	case TypeError:
		s.logger.Error(n.Message, append(args, "kind", n.Kind)...)
	case TypeProgress:
		s.logger.Info(n.Message, append(args, "processed", n.Processed, "total", n.Total)...)
	default:
		s.logger.Info(n.Message, args...)
	}
}

// Close logs the dismissal at debug level.
func (s *LoggerSink) Close(key string) {
	s.logger.Debug("notification closed", "key", key)
}

// Recorder keeps every notification in memory. Tests use it to assert on
// what a hook reported.
type Recorder struct {
	mu     sync.Mutex
	opened []Notification
	closed []string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Open records n.
func (r *Recorder) Open(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, n)
}

// Close records the dismissal of key.
func (r *Recorder) Close(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, key)
}

// Notifications returns the recorded notifications in order.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.opened...)
}

// ByType returns the recorded notifications of type t.
func (r *Recorder) ByType(t Type) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Notification
	for _, n := range r.opened {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// Closed returns the dismissed keys in order.
func (r *Recorder) Closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = nil
	r.closed = nil
}
