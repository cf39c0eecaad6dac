package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field is one key/value pair of a Fields map.
type Field struct {
	Key   string
	Value any
}

// Fields is an insertion-ordered string-keyed map. Values are YAML-shaped:
// nested mappings are Fields, sequences are []any, scalars keep the Go type
// yaml.v3 resolves them to.
//
// Order is preserved through YAML encoding and decoding, so upstream keys
// survive storage and composition in the order they were written.
type Fields []Field

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	for _, kv := range f {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// GetString returns the value under key when it is a string, "" otherwise.
func (f Fields) GetString(key string) string {
	v, _ := f.Get(key)
	s, _ := v.(string)
	return s
}

// Has reports whether key is present.
func (f Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Set replaces the value of an existing key in place, or appends it.
// Like append, the result must be assigned back.
func (f Fields) Set(key string, value any) Fields {
	for i := range f {
		if f[i].Key == key {
			f[i].Value = value
			return f
		}
	}
	return append(f, Field{Key: key, Value: value})
}

// Delete removes key, keeping the order of the remaining fields.
func (f Fields) Delete(key string) Fields {
	for i := range f {
		if f[i].Key == key {
			return append(f[:i:i], f[i+1:]...)
		}
	}
	return f
}

// Keys returns the keys in order.
func (f Fields) Keys() []string {
	out := make([]string, 0, len(f))
	for _, kv := range f {
		out = append(out, kv.Key)
	}
	return out
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

func (f Fields) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, kv := range f {
		k := &yaml.Node{}
		k.SetString(kv.Key)
		v := &yaml.Node{}
		if err := v.Encode(kv.Value); err != nil {
			return nil, fmt.Errorf("encode %q: %w", kv.Key, err)
		}
		node.Content = append(node.Content, k, v)
	}
	return node, nil
}

func (f *Fields) UnmarshalYAML(value *yaml.Node) error {
	v, err := DecodeNode(value)
	if err != nil {
		return err
	}
	switch m := v.(type) {
	case nil:
		*f = nil
	case Fields:
		*f = m
	default:
		return fmt.Errorf("line %d: expected a mapping, got %s", value.Line, kindName(value))
	}
	return nil
}

// DecodeNode converts a yaml.Node tree into ordered Go values: mappings
// become Fields, sequences []any, scalars their resolved Go type. Aliases are
// followed and "<<" merge keys are applied; explicit keys win over merged
// ones and earlier merge sources win over later ones.
//
// An anchor whose value contains an alias to itself is an error, and so is a
// document that expands far beyond its written size through aliases.
func DecodeNode(n *yaml.Node) (any, error) {
	d := &nodeDecoder{active: make(map[*yaml.Node]bool)}
	return d.decode(n)
}

// nodeDecoder carries the alias bookkeeping of one DecodeNode call.
type nodeDecoder struct {
	active      map[*yaml.Node]bool
	aliasDepth  int
	decodeCount int
	aliasCount  int
}

func (d *nodeDecoder) decode(n *yaml.Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	d.decodeCount++
	if d.aliasDepth > 0 {
		d.aliasCount++
	}
	if d.excessiveAliasing() {
		return nil, fmt.Errorf("line %d: document contains excessive aliasing", n.Line)
	}

	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.decode(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("line %d: unresolved alias %q", n.Line, n.Value)
		}
		if d.active[n.Alias] {
			return nil, fmt.Errorf("line %d: anchor %q value contains itself", n.Line, n.Value)
		}
		d.active[n.Alias] = true
		d.aliasDepth++
		v, err := d.decode(n.Alias)
		d.aliasDepth--
		delete(d.active, n.Alias)
		return v, err
	case yaml.MappingNode:
		return d.decodeMapping(n)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.decode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

// excessiveAliasing applies the same budget yaml.v3 uses: past a few hundred
// thousand nodes the share reached through aliases must keep shrinking.
func (d *nodeDecoder) excessiveAliasing() bool {
	if d.aliasCount <= 100 || d.decodeCount <= 1000 {
		return false
	}
	return float64(d.aliasCount)/float64(d.decodeCount) > allowedAliasRatio(d.decodeCount)
}

func allowedAliasRatio(decodeCount int) float64 {
	switch {
	case decodeCount <= 400_000:
		return 0.99
	case decodeCount >= 4_000_000:
		return 0.10
	default:
		return 0.10 + 0.89*(1-float64(decodeCount-400_000)/3_600_000)
	}
}

func (d *nodeDecoder) decodeMapping(n *yaml.Node) (Fields, error) {
	out := make(Fields, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if isMergeKey(k) {
			sources, err := d.mergeSources(v)
			if err != nil {
				return nil, err
			}
			for _, src := range sources {
				for _, kv := range src {
					if !out.Has(kv.Key) {
						out = append(out, kv)
					}
				}
			}
			continue
		}
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping key must be a scalar", k.Line)
		}
		val, err := d.decode(v)
		if err != nil {
			return nil, err
		}
		out = out.Set(k.Value, val)
	}
	return out, nil
}

func isMergeKey(k *yaml.Node) bool {
	if k.Kind != yaml.ScalarNode || k.Value != "<<" {
		return false
	}
	return k.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0
}

func (d *nodeDecoder) mergeSources(v *yaml.Node) ([]Fields, error) {
	decoded, err := d.decode(v)
	if err != nil {
		return nil, err
	}
	switch m := decoded.(type) {
	case Fields:
		return []Fields{m}, nil
	case []any:
		out := make([]Fields, 0, len(m))
		for _, item := range m {
			f, ok := item.(Fields)
			if !ok {
				return nil, fmt.Errorf("line %d: merge sequence must contain mappings", v.Line)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: merge value must be a mapping", v.Line)
	}
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
