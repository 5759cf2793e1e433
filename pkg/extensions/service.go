package extensions

import (
	"context"
)

// Service defines the main interface for the content-extensions library
type Service interface {
	// Extension propagation
	Enable(ctx context.Context, courseID string, extensionIDs []string) error
	Disable(ctx context.Context, courseID string, extensionIDs []string) error
	Apply(ctx context.Context, courseID string, action Action, extensionIDs []string) error

	// Registry and catalog reads
	EnabledExtensions(ctx context.Context, courseID string) (map[string]EnabledExtension, error)
	ListExtensionTypes(ctx context.Context) ([]*Descriptor, error)

	// Content creation with extension defaults
	CreateContent(ctx context.Context, contentType string, draft Document) (Document, error)
}
