package rabbit

import (
	"strings"
)

// KeyValues is an insertion ordered multi-valued mapping in which a later
// Set replaces the values of an earlier one. With case folding, keys that
// differ only in case address the same entry and the first spelling is kept.
type KeyValues struct {
	foldCase bool
	keys     []string
	values   [][]string
	index    map[string]int
}

// NewKeyValues returns an empty mapping.
func NewKeyValues(foldCase bool) *KeyValues {
	return &KeyValues{
		foldCase: foldCase,
		index:    make(map[string]int),
	}
}

func (kv *KeyValues) norm(key string) string {
	if kv.foldCase {
		return strings.ToLower(key)
	}
	return key
}

// Set replaces the values of key.
func (kv *KeyValues) Set(key string, values []string) {
	n := kv.norm(key)
	if i, ok := kv.index[n]; ok {
		kv.values[i] = values
		return
	}
	kv.index[n] = len(kv.keys)
	kv.keys = append(kv.keys, key)
	kv.values = append(kv.values, values)
}

// Get returns the values of key.
func (kv *KeyValues) Get(key string) ([]string, bool) {
	i, ok := kv.index[kv.norm(key)]
	if !ok {
		return nil, false
	}
	return kv.values[i], true
}

// Len returns the number of keys.
func (kv *KeyValues) Len() int {
	return len(kv.keys)
}

// Range calls fn for each entry in insertion order.
func (kv *KeyValues) Range(fn func(key string, values []string)) {
	for i, k := range kv.keys {
		fn(k, kv.values[i])
	}
}

// FormattedParameters holds the formatted arguments of one invocation for
// the path, query and header targets. Body arguments never appear here.
type FormattedParameters struct {
	Path   *KeyValues
	Query  *KeyValues
	Header *KeyValues
}

// NewFormattedParameters returns empty maps. Query and header keys are
// case-insensitive, path keys are not.
func NewFormattedParameters() *FormattedParameters {
	return &FormattedParameters{
		Path:   NewKeyValues(false),
		Query:  NewKeyValues(true),
		Header: NewKeyValues(true),
	}
}

// For returns the map of target, or nil for TargetBody.
func (f *FormattedParameters) For(target ParameterTarget) *KeyValues {
	switch target {
	case TargetPath:
		return f.Path
	case TargetQuery:
		return f.Query
	case TargetHeader:
		return f.Header
	}
	return nil
}

// PathValues flattens the path map for template substitution. Multiple
// values are joined with commas.
func (f *FormattedParameters) PathValues() map[string]string {
	out := make(map[string]string, f.Path.Len())
	f.Path.Range(func(key string, values []string) {
		out[key] = strings.Join(values, ",")
	})
	return out
}
