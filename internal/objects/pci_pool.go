package objects

import (
	"encoding/json"
	"fmt"
)

const (
	pciPoolName     = "PciDevicePool"
	pciPoolListName = "PciDevicePoolList"
)

var (
	pciPoolListVersion = MustParseVersion("1.1")
	// pool list version -> pool version
	pciPoolVersions = map[string]string{"1.0": "1.0", "1.1": "1.1"}
	pciPoolBaseKeys = map[string]bool{
		"product_id": true, "vendor_id": true, "numa_node": true, "count": true,
	}
)

// PciDevicePool is a group of identical PCI devices on a host
type PciDevicePool struct {
	ProductID string
	VendorID  string
	NUMANode  *int64 // since pool 1.1
	Count     int64
	Tags      map[string]string
}

// PciDevicePoolList is the pci_device_pools value of a compute node
type PciDevicePoolList struct {
	Pools []PciDevicePool
}

func (p PciDevicePool) toPrimitive(version string) Primitive {
	tags := make(map[string]interface{}, len(p.Tags))
	for k, v := range p.Tags {
		tags[k] = v
	}
	data := map[string]interface{}{
		"product_id": p.ProductID,
		"vendor_id":  p.VendorID,
		"count":      p.Count,
		"tags":       tags,
	}
	if version != "1.0" && p.NUMANode != nil {
		data["numa_node"] = *p.NUMANode
	}
	return Primitive{Name: pciPoolName, Namespace: objectNamespace, Version: version, Data: data}
}

// ToPrimitive renders the list at the given list version
func (l *PciDevicePoolList) ToPrimitive(target Version) (Primitive, error) {
	if pciPoolListVersion.Less(target) {
		return Primitive{}, incompatible(pciPoolListName, target, pciPoolListVersion)
	}
	poolVersion, ok := pciPoolVersions[target.String()]
	if !ok {
		return Primitive{}, incompatible(pciPoolListName, target, pciPoolListVersion)
	}
	objs := make([]interface{}, len(l.Pools))
	for i, p := range l.Pools {
		objs[i] = p.toPrimitive(poolVersion)
	}
	return Primitive{
		Name:      pciPoolListName,
		Namespace: objectNamespace,
		Version:   target.String(),
		Data:      map[string]interface{}{"objects": objs},
	}, nil
}

// poolFromDict builds a pool from the flat form the resource tracker
// keeps: known keys plus arbitrary tag keys.
func poolFromDict(m map[string]interface{}) (PciDevicePool, error) {
	p := PciDevicePool{Tags: map[string]string{}}
	p.ProductID, _ = m["product_id"].(string)
	p.VendorID, _ = m["vendor_id"].(string)
	if v, ok := m["count"]; ok && v != nil {
		n, err := toInt64(v)
		if err != nil {
			return p, fmt.Errorf("pci pool count: %w", err)
		}
		p.Count = n
	}
	if v, ok := m["numa_node"]; ok && v != nil {
		n, err := toInt64(v)
		if err != nil {
			return p, fmt.Errorf("pci pool numa_node: %w", err)
		}
		p.NUMANode = &n
	}
	for k, v := range m {
		if pciPoolBaseKeys[k] {
			continue
		}
		if k == "tags" {
			if tags, ok := v.(map[string]interface{}); ok {
				for tk, tv := range tags {
					p.Tags[tk] = fmt.Sprint(tv)
				}
			}
			continue
		}
		p.Tags[k] = fmt.Sprint(v)
	}
	return p, nil
}

func poolFromAny(v interface{}) (PciDevicePool, error) {
	switch t := v.(type) {
	case PciDevicePool:
		return t, nil
	case map[string]interface{}:
		if _, isPrim := t[keyName]; !isPrim {
			return poolFromDict(t)
		}
	}
	p, ok, err := asPrimitive(v)
	if err != nil {
		return PciDevicePool{}, err
	}
	if !ok || p.Name != pciPoolName {
		return PciDevicePool{}, fmt.Errorf("cannot build pci pool from %T", v)
	}
	return poolFromDict(p.Data)
}

// FromPCIStats parses the stored pci_stats text, which is either a pool
// list primitive or a list of flat pool dicts.
func FromPCIStats(text string) (*PciDevicePoolList, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("invalid pci_stats: %w", err)
	}
	return pciListFromDecoded(raw)
}

func pciListFromDecoded(raw interface{}) (*PciDevicePoolList, error) {
	var items []interface{}
	switch t := raw.(type) {
	case []interface{}:
		items = t
	default:
		p, ok, err := asPrimitive(t)
		if err != nil {
			return nil, err
		}
		if !ok || p.Name != pciPoolListName {
			return nil, fmt.Errorf("cannot build pci pool list from %T", raw)
		}
		switch objs := p.Data["objects"].(type) {
		case []interface{}:
			items = objs
		case nil:
		default:
			return nil, fmt.Errorf("pci pool list objects must be a list, got %T", objs)
		}
	}

	l := &PciDevicePoolList{Pools: make([]PciDevicePool, 0, len(items))}
	for _, it := range items {
		p, err := poolFromAny(it)
		if err != nil {
			return nil, err
		}
		l.Pools = append(l.Pools, p)
	}
	return l, nil
}

func pciFromAny(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *PciDevicePoolList:
		if t == nil {
			return nil, fmt.Errorf("nil pci pool list")
		}
		return t, nil
	case PciDevicePoolList:
		return &t, nil
	case []PciDevicePool:
		return &PciDevicePoolList{Pools: t}, nil
	case string:
		return FromPCIStats(t)
	}
	return pciListFromDecoded(v)
}

func pciToColumn(v interface{}) (interface{}, error) {
	p, err := v.(*PciDevicePoolList).ToPrimitive(pciPoolListVersion)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

