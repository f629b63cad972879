package objects

import (
	"encoding/json"
	"fmt"
)

// NUMAPages describes one page size pool of a NUMA cell
type NUMAPages struct {
	SizeKB int64 `json:"size_kb"`
	Total  int64 `json:"total"`
	Used   int64 `json:"used"`
}

// NUMACell is one host NUMA cell
type NUMACell struct {
	ID          int64       `json:"id"`
	CPUSet      []int64     `json:"cpuset"`
	Memory      int64       `json:"memory"`
	CPUUsage    int64       `json:"cpu_usage"`
	MemoryUsage int64       `json:"memory_usage"`
	PinnedCPUs  []int64     `json:"pinned_cpus"`
	Siblings    [][]int64   `json:"siblings"`
	MemPages    []NUMAPages `json:"mempages"`
}

// FreeCPUs returns the cpus of the cell that are not pinned
func (c NUMACell) FreeCPUs() []int64 {
	pinned := make(map[int64]bool, len(c.PinnedCPUs))
	for _, p := range c.PinnedCPUs {
		pinned[p] = true
	}
	out := make([]int64, 0, len(c.CPUSet))
	for _, cpu := range c.CPUSet {
		if !pinned[cpu] {
			out = append(out, cpu)
		}
	}
	return out
}

// NUMATopology is the host NUMA layout reported by the virt driver. The
// compute node treats it as an opaque value moved as JSON text.
type NUMATopology struct {
	Cells []NUMACell `json:"cells"`
}

// ToJSON returns the stored text form
func (t *NUMATopology) ToJSON() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NUMATopologyFromJSON parses the stored text form
func NUMATopologyFromJSON(s string) (*NUMATopology, error) {
	var t NUMATopology
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("invalid numa topology: %w", err)
	}
	return &t, nil
}

func numaFromAny(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *NUMATopology:
		if t == nil {
			return nil, fmt.Errorf("nil numa topology")
		}
		return t, nil
	case NUMATopology:
		return &t, nil
	case string:
		return NUMATopologyFromJSON(t)
	case []byte:
		return NUMATopologyFromJSON(string(t))
	case map[string]interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return NUMATopologyFromJSON(string(b))
	}
	return nil, fmt.Errorf("cannot build numa topology from %T", v)
}

func numaToText(v interface{}) (interface{}, error) {
	return v.(*NUMATopology).ToJSON()
}
