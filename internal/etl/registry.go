package etl

import (
	"maps"
	"slices"
	"sync"
)

// SchemaRegistry accumulates the generated schema of every target collection
// during one conversion run.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]map[string]any
}

// NewSchemaRegistry seeds the registry with copies of the given schemas.
func NewSchemaRegistry(seed map[string]map[string]any) *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]map[string]any, len(seed))}
	for name, s := range seed {
		r.schemas[name] = deepCopy(s)
	}
	return r
}

// Get returns the live schema of a collection. Callers may mutate it in place.
func (r *SchemaRegistry) Get(collection string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[collection]
	return s, ok
}

// Merge deep merges schema into the collection's current schema.
func (r *SchemaRegistry) Merge(collection string, schema map[string]any) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.schemas[collection]
	if !ok {
		r.schemas[collection] = schema
		return schema
	}
	merged := mergeSchemas(current, schema)
	r.schemas[collection] = merged
	return merged
}

// All returns a deep copy of every schema.
func (r *SchemaRegistry) All() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]any, len(r.schemas))
	for name, s := range r.schemas {
		out[name] = deepCopy(s)
	}
	return out
}

// Names returns the registered collection names in sorted order.
func (r *SchemaRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Collect(maps.Keys(r.schemas))
	slices.Sort(names)
	return names
}

// mergeSchemas returns dst overlaid with src. Nested maps merge recursively,
// arrays made only of strings merge by set union, anything else from src wins.
func mergeSchemas(dst, src map[string]any) map[string]any {
	out := deepCopy(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	for k, sv := range src {
		dv, ok := out[k]
		if !ok {
			out[k] = deepCopyValue(sv)
			continue
		}
		dm, dIsMap := dv.(map[string]any)
		sm, sIsMap := sv.(map[string]any)
		if dIsMap && sIsMap {
			out[k] = mergeSchemas(dm, sm)
			continue
		}
		if union, ok := unionStrings(dv, sv); ok {
			out[k] = union
			continue
		}
		out[k] = deepCopyValue(sv)
	}
	return out
}

func unionStrings(a, b any) ([]string, bool) {
	as, ok := stringSlice(a)
	if !ok {
		return nil, false
	}
	bs, ok := stringSlice(b)
	if !ok {
		return nil, false
	}
	out := slices.Clone(as)
	for _, s := range bs {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out, true
}

func stringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
