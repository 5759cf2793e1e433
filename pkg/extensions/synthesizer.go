package extensions

import (
	"fmt"
	"sync"
)

// SynthesisKey identifies a memoized payload. The tuple is immutable input, so cached entries
// never need invalidation.
type SynthesisKey struct {
	ExtensionID string
	Version     string
	Location    string
}

func (k SynthesisKey) String() string {
	return fmt.Sprintf("%s#%s/%s", k.ExtensionID, k.Version, k.Location)
}

// Synthesizer builds default-valued objects from extension schemas. Results are cached per
// SynthesisKey for the lifetime of the Synthesizer; the cache is unbounded.
type Synthesizer struct {
	mu    sync.RWMutex
	cache map[SynthesisKey]Payload
}

// NewSynthesizer creates a synthesizer with an empty cache.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{cache: make(map[SynthesisKey]Payload)}
}

// Synthesize returns the default object for props. It reports false when props is empty,
// meaning the extension declares no fields for that location. The returned payload is a
// copy the caller may modify freely.
func (s *Synthesizer) Synthesize(props map[string]*SchemaNode, key SynthesisKey) (Payload, bool) {
	if len(props) == 0 {
		return nil, false
	}

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cloneObject(cached), true
	}

	built := walkProperties(props)

	s.mu.Lock()
	if existing, ok := s.cache[key]; ok {
		built = existing
	} else {
		s.cache[key] = built
	}
	s.mu.Unlock()

	return cloneObject(built), true
}

// SynthesizeLocation synthesizes the payload for one of a descriptor's locations.
func (s *Synthesizer) SynthesizeLocation(d *Descriptor, location string) (Payload, bool) {
	loc, ok := d.Location(location)
	if !ok {
		return nil, false
	}
	return s.Synthesize(loc.Properties, SynthesisKey{
		ExtensionID: d.ID,
		Version:     d.Version,
		Location:    location,
	})
}

// Len reports the number of cached payloads.
func (s *Synthesizer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// walkProperties skips nil nodes and unrecognised types.
func walkProperties(props map[string]*SchemaNode) Payload {
	child := make(Payload, len(props))
	for key, node := range props {
		if node == nil {
			continue
		}
		switch node.Type {
		case "boolean", "integer", "number", "string":
			if node.HasDefault {
				child[key] = cloneValue(node.Default)
			} else {
				child[key] = nil
			}
		case "array":
			child[key] = []interface{}{}
		case "object":
			child[key] = walkProperties(node.Properties)
		}
	}
	return child
}
