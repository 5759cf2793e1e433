package extensions

import (
	"context"
	"sort"
)

// Registry reads a course's enabled-extensions map from its config document and resolves the
// referenced extension types.
type Registry struct {
	store       Store
	descriptors DescriptorSource
}

// NewRegistry creates a registry backed by store. Descriptors are loaded through descriptors.
func NewRegistry(store Store, descriptors DescriptorSource) *Registry {
	return &Registry{store: store, descriptors: descriptors}
}

// ConfigDocument returns the course's config document projected to its _id and registry.
// found is false when the course has no config document.
func (r *Registry) ConfigDocument(ctx context.Context, courseID string) (Document, bool, error) {
	docs, err := r.store.Retrieve(ctx, TypeConfig, Criteria{FieldCourseID: courseID},
		FieldID, FieldExtensions, FieldEnabledExtensions)
	if err != nil {
		return nil, false, storeError("retrieve", TypeConfig, err)
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// Enabled returns the course's registry. A course without a config document has no enabled
// extensions.
func (r *Registry) Enabled(ctx context.Context, courseID string) (map[string]EnabledExtension, error) {
	doc, found, err := r.ConfigDocument(ctx, courseID)
	if err != nil || !found {
		return map[string]EnabledExtension{}, err
	}
	return ParseEnabled(doc), nil
}

// Descriptors loads the extension types enabled on a course, ordered by registry key.
func (r *Registry) Descriptors(ctx context.Context, courseID string) ([]*Descriptor, bool, error) {
	doc, found, err := r.ConfigDocument(ctx, courseID)
	if err != nil || !found {
		return nil, found, err
	}
	enabled := ParseEnabled(doc)
	keys := make([]string, 0, len(enabled))
	for key := range enabled {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, enabled[key].ID)
	}
	if len(ids) == 0 {
		return nil, true, nil
	}
	descriptors, err := r.descriptors.Descriptors(ctx, ids)
	if err != nil {
		return nil, true, err
	}
	return orderByIDs(descriptors, ids), true, nil
}

// ParseEnabled decodes the _enabledExtensions attribute of a config document, dropping
// malformed entries.
func ParseEnabled(doc Document) map[string]EnabledExtension {
	out := make(map[string]EnabledExtension)
	for key, value := range doc.EnabledExtensions() {
		if entry, ok := enabledExtensionFromValue(value); ok {
			out[key] = entry
		}
	}
	return out
}

// WithEntry returns a copy of registry with key set to entry.
func WithEntry(registry map[string]interface{}, key string, entry EnabledExtension) map[string]interface{} {
	out := cloneObject(registry)
	out[key] = entry.toValue()
	return out
}

// WithoutEntry returns a copy of registry without key.
func WithoutEntry(registry map[string]interface{}, key string) map[string]interface{} {
	out := cloneObject(registry)
	delete(out, key)
	return out
}

// orderByIDs arranges descriptors to follow ids, dropping duplicates and unknown ids.
func orderByIDs(descriptors []*Descriptor, ids []string) []*Descriptor {
	byID := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}
	out := make([]*Descriptor, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, d)
	}
	return out
}

// StoreDescriptorSource loads descriptors from extensiontype documents in a Store.
type StoreDescriptorSource struct {
	store Store
}

// NewStoreDescriptorSource creates a DescriptorSource over store.
func NewStoreDescriptorSource(store Store) *StoreDescriptorSource {
	return &StoreDescriptorSource{store: store}
}

// Descriptors returns the descriptors whose _id is in ids, in store order.
func (s *StoreDescriptorSource) Descriptors(ctx context.Context, ids []string) ([]*Descriptor, error) {
	docs, err := s.store.Retrieve(ctx, TypeExtensionType, Criteria{FieldID: In(ids)})
	if err != nil {
		return nil, storeError("retrieve", TypeExtensionType, err)
	}
	out := make([]*Descriptor, 0, len(docs))
	for _, doc := range docs {
		d, err := DescriptorFromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// All returns every installed extension type.
func (s *StoreDescriptorSource) All(ctx context.Context) ([]*Descriptor, error) {
	docs, err := s.store.Retrieve(ctx, TypeExtensionType, Criteria{})
	if err != nil {
		return nil, storeError("retrieve", TypeExtensionType, err)
	}
	out := make([]*Descriptor, 0, len(docs))
	for _, doc := range docs {
		d, err := DescriptorFromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
