package serde

import (
	"fmt"
	"sync"
)

// HeaderRegistry maps header names to the deserializer that knows how to
// decode them, mirroring the teacher's Register/NewAdapter factory-map
// idiom (see source/kafka.Register and sink.Register in the reference
// corpus) rather than a schema-registry client.
type HeaderRegistry struct {
	mu   sync.RWMutex
	byName map[string]HeaderDeserializer
}

// NewHeaderRegistry returns an empty registry.
func NewHeaderRegistry() *HeaderRegistry {
	return &HeaderRegistry{byName: make(map[string]HeaderDeserializer)}
}

// Register associates a header name with its deserializer.
func (r *HeaderRegistry) Register(name string, d HeaderDeserializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = d
}

// Lookup returns the deserializer registered for name, if any.
func (r *HeaderRegistry) Lookup(name string) (HeaderDeserializer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// DeserializeAll decodes every header in raw using the registered
// deserializer for its name. When skipUnknown is true, headers with no
// registered deserializer are silently omitted; otherwise the first
// missing header aborts with an error identifying itself.
func (r *HeaderRegistry) DeserializeAll(raw map[string][]byte, skipUnknown bool) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for name, b := range raw {
		d, ok := r.Lookup(name)
		if !ok {
			if skipUnknown {
				continue
			}
			return nil, fmt.Errorf("header %q: no deserializer registered", name)
		}
		v, err := d.DeserializeHeader(name, b)
		if err != nil {
			return nil, fmt.Errorf("header %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
