package objects

import (
	"encoding/json"
	"fmt"
	"strings"
)

const hvSpecVersion = "1.0"

// HVSpec is one (architecture, hypervisor type, vm mode) triple a compute
// node can run.
type HVSpec struct {
	Arch   string
	HVType string
	VMMode string
}

var archAliases = map[string]string{
	"amd64": "x86_64",
	"x64":   "x86_64",
	"i386":  "i686",
	"x86":   "i686",
	"arm64": "aarch64",
}

var hvTypeAliases = map[string]string{
	"xapi": "xen",
}

var vmModeAliases = map[string]string{
	"pv":        "xen",
	"hv":        "hvm",
	"baremetal": "hvm",
}

func canonical(s string, aliases map[string]string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if a, ok := aliases[s]; ok {
		return a
	}
	return s
}

// NewHVSpec builds a spec with canonical names
func NewHVSpec(arch, hvType, vmMode string) HVSpec {
	return HVSpec{
		Arch:   canonical(arch, archAliases),
		HVType: canonical(hvType, hvTypeAliases),
		VMMode: canonical(vmMode, vmModeAliases),
	}
}

// ToList returns the legacy [arch, hv_type, vm_mode] form
func (s HVSpec) ToList() []string {
	return []string{s.Arch, s.HVType, s.VMMode}
}

func (s HVSpec) ToPrimitive() Primitive {
	return Primitive{
		Name:      "HVSpec",
		Namespace: objectNamespace,
		Version:   hvSpecVersion,
		Data: map[string]interface{}{
			"arch":    s.Arch,
			"hv_type": s.HVType,
			"vm_mode": s.VMMode,
		},
	}
}

// HVSpecFromList parses the legacy three element form
func HVSpecFromList(v interface{}) (HVSpec, error) {
	var parts []string
	switch t := v.(type) {
	case []string:
		parts = t
	case []interface{}:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return HVSpec{}, fmt.Errorf("hv spec element %#v is not a string", e)
			}
			parts = append(parts, s)
		}
	default:
		return HVSpec{}, fmt.Errorf("hv spec must be a list, got %T", v)
	}
	if len(parts) != 3 {
		return HVSpec{}, fmt.Errorf("hv spec needs 3 elements, got %d", len(parts))
	}
	return NewHVSpec(parts[0], parts[1], parts[2]), nil
}

func hvSpecFromAny(v interface{}) (HVSpec, error) {
	switch t := v.(type) {
	case HVSpec:
		return NewHVSpec(t.Arch, t.HVType, t.VMMode), nil
	case *HVSpec:
		if t == nil {
			return HVSpec{}, fmt.Errorf("nil hv spec")
		}
		return NewHVSpec(t.Arch, t.HVType, t.VMMode), nil
	case []string, []interface{}:
		return HVSpecFromList(t)
	}

	p, ok, err := asPrimitive(v)
	if err != nil {
		return HVSpec{}, err
	}
	if !ok {
		return HVSpec{}, fmt.Errorf("cannot build hv spec from %T", v)
	}
	if p.Name != "HVSpec" {
		return HVSpec{}, fmt.Errorf("expected HVSpec primitive, got %s", p.Name)
	}
	str := func(k string) string {
		s, _ := p.Data[k].(string)
		return s
	}
	return NewHVSpec(str("arch"), str("hv_type"), str("vm_mode")), nil
}

// hvSpecsFromAny accepts a typed list, a list of triples or primitives,
// or the JSON text of either.
func hvSpecsFromAny(v interface{}) ([]HVSpec, error) {
	switch t := v.(type) {
	case []HVSpec:
		out := make([]HVSpec, len(t))
		for i, s := range t {
			out[i] = NewHVSpec(s.Arch, s.HVType, s.VMMode)
		}
		return out, nil
	case string:
		var raw []interface{}
		if err := json.Unmarshal([]byte(t), &raw); err != nil {
			return nil, err
		}
		return hvSpecsFromAny(raw)
	case [][]string:
		out := make([]HVSpec, 0, len(t))
		for _, e := range t {
			s, err := HVSpecFromList(e)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case []interface{}:
		out := make([]HVSpec, 0, len(t))
		for _, e := range t {
			s, err := hvSpecFromAny(e)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot build hv spec list from %T", v)
}

func hvSpecsToColumn(v interface{}) (interface{}, error) {
	specs := v.([]HVSpec)
	lists := make([][]string, len(specs))
	for i, s := range specs {
		lists[i] = s.ToList()
	}
	b, err := json.Marshal(lists)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func hvSpecsToPrimitive(v interface{}, _ Version) (interface{}, error) {
	specs := v.([]HVSpec)
	out := make([]interface{}, len(specs))
	for i, s := range specs {
		out[i] = s.ToPrimitive()
	}
	return out, nil
}
