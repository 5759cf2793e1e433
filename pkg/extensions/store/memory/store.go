package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/tendant/content-extensions/pkg/extensions"
)

// Store implements extensions.Store using in-memory collections
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]extensions.Document // doc type -> _id -> document
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]extensions.Document),
	}
}

// Retrieve returns copies of matching documents ordered by _id
func (s *Store) Retrieve(ctx context.Context, docType string, criteria extensions.Criteria, fields ...string) ([]extensions.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []extensions.Document
	for _, doc := range s.collections[docType] {
		if !matches(doc, criteria) {
			continue
		}
		result = append(result, project(doc, fields))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID() < result[j].ID()
	})
	return result, nil
}

// Update merges delta into every matching document
func (s *Store) Update(ctx context.Context, docType string, criteria extensions.Criteria, delta extensions.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for _, doc := range s.collections[docType] {
		if !matches(doc, criteria) {
			continue
		}
		for k, v := range delta {
			if k == extensions.FieldID {
				continue
			}
			doc[k] = extensions.CloneValue(v)
		}
		updated++
	}
	if updated == 0 {
		return extensions.ErrDocumentNotFound
	}
	return nil
}

// Create stores a copy of doc
func (s *Store) Create(ctx context.Context, docType string, doc extensions.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("document of type %s has no _id", docType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.collections[docType]
	if !ok {
		collection = make(map[string]extensions.Document)
		s.collections[docType] = collection
	}
	if _, exists := collection[id]; exists {
		return fmt.Errorf("document %s of type %s already exists", id, docType)
	}
	collection[id] = doc.Clone()
	return nil
}

// Get returns a copy of one document, for tests and tooling
func (s *Store) Get(docType, id string) (extensions.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[docType][id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

func matches(doc extensions.Document, criteria extensions.Criteria) bool {
	for key, want := range criteria {
		got, present := doc[key]
		switch w := want.(type) {
		case extensions.In:
			if !present || !contains(w, got) {
				return false
			}
		default:
			if !present || !reflect.DeepEqual(got, want) {
				return false
			}
		}
	}
	return true
}

func contains(values extensions.In, v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, candidate := range values {
		if candidate == s {
			return true
		}
	}
	return false
}

func project(doc extensions.Document, fields []string) extensions.Document {
	if len(fields) == 0 {
		return doc.Clone()
	}
	out := make(extensions.Document, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = extensions.CloneValue(v)
		}
	}
	return out
}
