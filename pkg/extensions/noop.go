package extensions

import (
	"context"

	"github.com/tendant/content-extensions/internal/logger"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ExtensionsApplied does nothing and returns nil
func (n *NoopEventSink) ExtensionsApplied(ctx context.Context, courseID string, action Action, applied []*Descriptor) error {
	return nil
}

// ContentCreated does nothing and returns nil
func (n *NoopEventSink) ContentCreated(ctx context.Context, contentType string, doc Document) error {
	return nil
}

// LoggingEventSink writes every event to a structured logger
type LoggingEventSink struct {
	log *logger.Logger
}

// NewLoggingEventSink creates an event sink that logs through l
func NewLoggingEventSink(l *logger.Logger) EventSink {
	if l == nil {
		l = logger.NewNop()
	}
	return &LoggingEventSink{log: l}
}

func (s *LoggingEventSink) ExtensionsApplied(ctx context.Context, courseID string, action Action, applied []*Descriptor) error {
	keys := make([]string, 0, len(applied))
	for _, d := range applied {
		keys = append(keys, d.Key())
	}
	s.log.Info("extensions applied", "course_id", courseID, "action", string(action), "extensions", keys)
	return nil
}

func (s *LoggingEventSink) ContentCreated(ctx context.Context, contentType string, doc Document) error {
	s.log.Info("content created", "content_type", contentType, "id", doc.ID(), "course_id", doc.CourseID())
	return nil
}
