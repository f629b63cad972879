package objects

import "sort"

// Schema is the immutable field table of one object type
type Schema struct {
	name     string
	current  Version
	fields   []Field
	byName   map[string]int
	byColumn map[string]int
	// field -> (parent version, child version) steps, ascending by parent
	children map[string][]childVersion
}

type childVersion struct {
	parent Version
	child  Version
}

func newSchema(name, current string, fields []Field, children map[string][][2]string) *Schema {
	s := &Schema{
		name:     name,
		current:  MustParseVersion(current),
		fields:   fields,
		byName:   make(map[string]int, len(fields)),
		byColumn: make(map[string]int, len(fields)),
		children: make(map[string][]childVersion, len(children)),
	}
	for i, f := range fields {
		if _, dup := s.byName[f.Name]; dup {
			panic("duplicate field " + f.Name)
		}
		if s.current.Less(f.Introduced) {
			panic("field " + f.Name + " introduced after the current version")
		}
		s.byName[f.Name] = i
		s.byColumn[f.ColumnName()] = i
	}
	for field, steps := range children {
		cv := make([]childVersion, len(steps))
		for i, st := range steps {
			cv[i] = childVersion{parent: MustParseVersion(st[0]), child: MustParseVersion(st[1])}
		}
		sort.Slice(cv, func(i, j int) bool { return cv[i].parent.Less(cv[j].parent) })
		s.children[field] = cv
	}
	return s
}

func (s *Schema) Name() string            { return s.name }
func (s *Schema) CurrentVersion() Version { return s.current }

// Field looks a field up by name
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the fields in declaration order
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldsAt returns the names of the fields present in version target
func (s *Schema) FieldsAt(target Version) []string {
	var out []string
	for _, f := range s.fields {
		if f.PresentAt(target) {
			out = append(out, f.Name)
		}
	}
	return out
}

// ChildVersion returns the version a child object field is rendered at for
// a parent at version parent.
func (s *Schema) ChildVersion(field string, parent Version) (Version, bool) {
	steps := s.children[field]
	var (
		out   Version
		found bool
	)
	for _, st := range steps {
		if parent.Less(st.parent) {
			break
		}
		out, found = st.child, true
	}
	return out, found
}

func (s *Schema) supports(target Version) bool {
	return target.Major() == s.current.Major() && !s.current.Less(target)
}

// ComputeNode version history:
//
//	1.0  initial
//	1.1  get_by_service_id
//	1.2  unicode strings
//	1.3  stats
//	1.4  host_ip
//	1.5  numa_topology
//	1.6  supported_hv_specs
//	1.7  host
//	1.8  get_by_host_and_nodename
//	1.9  pci_device_pools
//	1.10 get_first_node_by_host_for_old_compat
//	1.11 PciDevicePoolList 1.1
var computeNodeSchema = newSchema("ComputeNode", "1.11", []Field{
	{
		Name:       "id",
		Introduced: MustParseVersion("1.0"),
		ReadOnly:   true,
		Coerce:     func(v interface{}) (interface{}, error) { return toInt64(v) },
	},
	intField("service_id", "1.0"),
	{
		Name:       "host",
		Introduced: MustParseVersion("1.7"),
		Coerce:     func(v interface{}) (interface{}, error) { return toString(v) },
	},
	intField("vcpus", "1.0"),
	intField("memory_mb", "1.0"),
	intField("local_gb", "1.0"),
	intField("vcpus_used", "1.0"),
	intField("memory_mb_used", "1.0"),
	intField("local_gb_used", "1.0"),
	stringField("hypervisor_type", "1.0"),
	intField("hypervisor_version", "1.0"),
	stringField("hypervisor_hostname", "1.0"),
	intField("free_ram_mb", "1.0"),
	intField("free_disk_gb", "1.0"),
	intField("current_workload", "1.0"),
	intField("running_vms", "1.0"),
	stringField("cpu_info", "1.0"),
	intField("disk_available_least", "1.0"),
	stringField("metrics", "1.0"),
	{
		Name:        "stats",
		Introduced:  MustParseVersion("1.3"),
		Coerce:      statsFromAny,
		ToColumn:    statsToText,
		ToPrimitive: statsToPrimitive,
	},
	{
		Name:        "host_ip",
		Introduced:  MustParseVersion("1.4"),
		Coerce:      ipFromAny,
		ToColumn:    ipToText,
		ToPrimitive: ipToPrimitive,
	},
	{
		Name:       "numa_topology",
		Introduced: MustParseVersion("1.5"),
		Coerce:     numaFromAny,
		ToColumn:   numaToText,
		ToPrimitive: func(v interface{}, _ Version) (interface{}, error) {
			return numaToText(v)
		},
	},
	{
		Name:       "supported_hv_specs",
		Column:     "supported_instances",
		Introduced: MustParseVersion("1.6"),
		Coerce: func(v interface{}) (interface{}, error) {
			return hvSpecsFromAny(v)
		},
		ToColumn:    hvSpecsToColumn,
		ToPrimitive: hvSpecsToPrimitive,
	},
	{
		Name:        "pci_device_pools",
		Column:      "pci_stats",
		Introduced:  MustParseVersion("1.9"),
		Coerce:      pciFromAny,
		ToColumn:    pciToColumn,
		ToPrimitive: pciToPrimitive,
	},
	timeField("created_at", "1.0"),
	timeField("updated_at", "1.0"),
	timeField("deleted_at", "1.0"),
	boolField("deleted", "1.0"),
}, map[string][][2]string{
	"pci_device_pools": {{"1.9", "1.0"}, {"1.11", "1.1"}},
})

// ComputeNodeSchema returns the compute node field table
func ComputeNodeSchema() *Schema {
	return computeNodeSchema
}

// ComputeNodeVersion is the current compute node object version
func ComputeNodeVersion() Version {
	return computeNodeSchema.current
}

func pciToPrimitive(v interface{}, version Version) (interface{}, error) {
	return v.(*PciDevicePoolList).ToPrimitive(version)
}
