package extensions

import (
	"context"
	"io"
)

// Store is the persistence collaborator. It does not offer transactions or multi-document
// atomicity; every call is an independent read or write.
type Store interface {
	// Retrieve returns the documents of docType matching criteria. When fields is non-empty
	// only those top-level fields are returned.
	Retrieve(ctx context.Context, docType string, criteria Criteria, fields ...string) ([]Document, error)

	// Update applies delta as a top-level field merge to every matching document.
	Update(ctx context.Context, docType string, criteria Criteria, delta Document) error

	// Create persists a new document. The document must carry an _id.
	Create(ctx context.Context, docType string, doc Document) error
}

// DescriptorSource loads extension type descriptors by id.
type DescriptorSource interface {
	Descriptors(ctx context.Context, ids []string) ([]*Descriptor, error)
}

// BlobStore holds extension manifests for the catalog.
type BlobStore interface {
	// Put stores content under key, replacing any previous value
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get opens the content stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys that start with prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key
	Delete(ctx context.Context, key string) error
}

// EventSink receives notifications about completed extension changes.
type EventSink interface {
	// ExtensionsApplied is fired after an enable or disable run finished without error
	ExtensionsApplied(ctx context.Context, courseID string, action Action, applied []*Descriptor) error

	// ContentCreated is fired after a content document was persisted
	ContentCreated(ctx context.Context, contentType string, doc Document) error
}
