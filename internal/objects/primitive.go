package objects

import (
	"fmt"
	"sort"

	"github.com/nodeledger/nodeledger/internal/exception"
)

const objectNamespace = "nodeledger"

const (
	keyName      = "nodeledger_object.name"
	keyNamespace = "nodeledger_object.namespace"
	keyVersion   = "nodeledger_object.version"
	keyData      = "nodeledger_object.data"
	keyChanges   = "nodeledger_object.changes"
)

// Primitive is the version-targeted wire form of an object
type Primitive struct {
	Name      string                 `json:"nodeledger_object.name"`
	Namespace string                 `json:"nodeledger_object.namespace"`
	Version   string                 `json:"nodeledger_object.version"`
	Data      map[string]interface{} `json:"nodeledger_object.data"`
	Changes   []string               `json:"nodeledger_object.changes,omitempty"`
}

// asPrimitive recognises a Primitive value or its decoded JSON map form.
// ok is false when v is neither.
func asPrimitive(v interface{}) (p Primitive, ok bool, err error) {
	switch t := v.(type) {
	case Primitive:
		return t, true, nil
	case *Primitive:
		if t == nil {
			return Primitive{}, false, nil
		}
		return *t, true, nil
	case map[string]interface{}:
		if _, has := t[keyName]; !has {
			return Primitive{}, false, nil
		}
		p.Name, _ = t[keyName].(string)
		p.Namespace, _ = t[keyNamespace].(string)
		p.Version, _ = t[keyVersion].(string)
		switch d := t[keyData].(type) {
		case map[string]interface{}:
			p.Data = d
		case nil:
			p.Data = map[string]interface{}{}
		default:
			return Primitive{}, false, fmt.Errorf("%s data must be an object, got %T", p.Name, d)
		}
		if ch, ok := t[keyChanges].([]interface{}); ok {
			for _, c := range ch {
				if s, ok := c.(string); ok {
					p.Changes = append(p.Changes, s)
				}
			}
		}
		return p, true, nil
	}
	return Primitive{}, false, nil
}

func incompatible(name string, requested, supported Version) error {
	return exception.IncompatibleObjectVersion(name, requested.String(), supported.String())
}

// ToPrimitive renders the node at the current version
func (n *ComputeNode) ToPrimitive() (Primitive, error) {
	return n.ToPrimitiveAt(computeNodeSchema.current)
}

// ToPrimitiveAt renders the node for a peer that understands version
// target. Fields the target does not know are left out entirely; child
// objects are rendered at the child version mapped from target.
func (n *ComputeNode) ToPrimitiveAt(target Version) (Primitive, error) {
	s := computeNodeSchema
	if !s.supports(target) {
		return Primitive{}, incompatible(s.name, target, s.current)
	}

	p := Primitive{
		Name:      s.name,
		Namespace: objectNamespace,
		Version:   target.String(),
		Data:      make(map[string]interface{}),
	}
	for _, f := range s.fields {
		v, set := n.values[f.Name]
		if !set || !f.PresentAt(target) {
			continue
		}
		version := target
		if child, ok := s.ChildVersion(f.Name, target); ok {
			version = child
		}
		out, err := f.toPrimitive(v, version)
		if err != nil {
			return Primitive{}, exception.ValueConversion(f.Name, v, err)
		}
		p.Data[f.Name] = out
		if _, changed := n.changed[f.Name]; changed {
			p.Changes = append(p.Changes, f.Name)
		}
	}
	sort.Strings(p.Changes)
	return p, nil
}

// ComputeNodeFromPrimitive rebuilds an unbound node from a primitive of any
// supported version. Fields the primitive's version did not carry stay
// unset; unknown data keys are ignored.
func ComputeNodeFromPrimitive(v interface{}) (*ComputeNode, error) {
	s := computeNodeSchema
	p, ok, err := asPrimitive(v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not an object primitive: %T", v)
	}
	if p.Name != s.name {
		return nil, fmt.Errorf("expected %s primitive, got %q", s.name, p.Name)
	}
	version, err := ParseVersion(p.Version)
	if err != nil {
		return nil, err
	}
	if !s.supports(version) {
		return nil, incompatible(s.name, version, s.current)
	}

	n := NewComputeNode()
	for _, f := range s.fields {
		raw, ok := p.Data[f.Name]
		if !ok || raw == nil || !f.PresentAt(version) {
			continue
		}
		val, err := f.coerce(raw)
		if err != nil {
			return nil, err
		}
		n.values[f.Name] = val
	}
	for _, c := range p.Changes {
		if _, ok := s.Field(c); ok {
			if _, set := n.values[c]; set {
				n.changed[c] = struct{}{}
			}
		}
	}
	return n, nil
}
