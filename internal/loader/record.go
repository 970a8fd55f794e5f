package loader

import (
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Record is a decoded mapping that keeps its key order.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord builds a record from alternating key, value arguments.
func NewRecord(kv ...any) *Record {
	r := &Record{values: map[string]any{}}
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		r.Set(k, kv[i+1])
	}
	return r
}

// Set inserts or replaces key, keeping the original position of existing keys.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Map returns an unordered copy, nested records included.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.Len())
	for _, k := range r.Keys() {
		out[k] = plain(r.values[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Record:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// FromNode converts a yaml node into loader values: mappings become
// *Record, sequences []any, scalars their natural Go type.
func FromNode(node *yaml.Node) (any, error) {
	if node == nil {
		return nil, nil
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return FromNode(node.Content[0])
	case yaml.AliasNode:
		return FromNode(node.Alias)
	case yaml.MappingNode:
		r := &Record{values: map[string]any{}}
		for i := 0; i+1 < len(node.Content); i += 2 {
			v, err := FromNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			r.Set(node.Content[i].Value, v)
		}
		return r, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, n := range node.Content {
			v, err := FromNode(n)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, errors.Wrapf(err, "line %d", node.Line)
		}
		return v, nil
	}

	return nil, errors.Errorf("unsupported yaml node kind %d at line %d", node.Kind, node.Line)
}

// Decode parses YAML or JSON data into loader values.
func Decode(data []byte) (any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return FromNode(&node)
}

// Truthy reports whether a decoded value counts as set: nil, false, zero
// numbers, NaN and the empty string do not.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0 && !math.IsNaN(t)
	}
	return true
}
