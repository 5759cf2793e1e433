package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/content-extensions/pkg/extensions"
)

// Backend is an in-memory implementation of the extensions.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory manifest store
func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
	}
}

// Put stores content under key
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = data
	return nil
}

// Get returns a reader over a copy of the stored content
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, extensions.ErrObjectNotFound
	}

	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// List returns the sorted keys starting with prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes content
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return extensions.ErrObjectNotFound
	}

	delete(b.objects, key)
	return nil
}
