package objects

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/exception"
)

// ComputeNode is one hypervisor's advertised and consumed capacity.
//
// Every field is optional: an unset field is distinct from its zero value,
// and the typed getters report it with ok=false. A ComputeNode is not safe
// for concurrent use.
type ComputeNode struct {
	values  map[string]interface{}
	changed map[string]struct{}

	nodes   *Nodes
	service *Service // lazily resolved owner
}

// NewComputeNode returns an empty node that is not bound to a store. Use
// Nodes.New for a node that can be created or saved.
func NewComputeNode() *ComputeNode {
	return &ComputeNode{
		values:  make(map[string]interface{}),
		changed: make(map[string]struct{}),
	}
}

// IsSet reports whether field has a value
func (n *ComputeNode) IsSet(field string) bool {
	_, ok := n.values[field]
	return ok
}

// Get returns the typed value of field
func (n *ComputeNode) Get(field string) (interface{}, bool) {
	v, ok := n.values[field]
	return v, ok
}

// Set coerces v and assigns it to field. Writing id once it is set fails
// with READ_ONLY_FIELD.
func (n *ComputeNode) Set(field string, v interface{}) error {
	f, ok := computeNodeSchema.Field(field)
	if !ok {
		return fmt.Errorf("compute node has no field %q", field)
	}
	if f.ReadOnly && n.IsSet(field) {
		return exception.ReadOnlyField(field)
	}
	val, err := f.coerce(v)
	if err != nil {
		return err
	}
	n.assign(field, val)
	return nil
}

func (n *ComputeNode) assign(field string, val interface{}) {
	n.values[field] = val
	n.changed[field] = struct{}{}
}

// Changes returns the fields modified since the node was loaded, sorted
func (n *ComputeNode) Changes() []string {
	out := make([]string, 0, len(n.changed))
	for f := range n.changed {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ResetChanges forgets pending modifications
func (n *ComputeNode) ResetChanges() {
	n.changed = make(map[string]struct{})
}

func get[T any](n *ComputeNode, field string) (T, bool) {
	v, ok := n.values[field].(T)
	return v, ok
}

func (n *ComputeNode) ID() (int64, bool) { return get[int64](n, "id") }
func (n *ComputeNode) ServiceID() (int64, bool) { return get[int64](n, "service_id") }
func (n *ComputeNode) Host() (string, bool) { return get[string](n, "host") }
func (n *ComputeNode) VCPUs() (int64, bool) { return get[int64](n, "vcpus") }
func (n *ComputeNode) MemoryMB() (int64, bool) { return get[int64](n, "memory_mb") }
func (n *ComputeNode) LocalGB() (int64, bool) { return get[int64](n, "local_gb") }
func (n *ComputeNode) VCPUsUsed() (int64, bool) { return get[int64](n, "vcpus_used") }
func (n *ComputeNode) MemoryMBUsed() (int64, bool) { return get[int64](n, "memory_mb_used") }
func (n *ComputeNode) LocalGBUsed() (int64, bool) { return get[int64](n, "local_gb_used") }
func (n *ComputeNode) HypervisorType() (string, bool) { return get[string](n, "hypervisor_type") }
func (n *ComputeNode) HypervisorVersion() (int64, bool) { return get[int64](n, "hypervisor_version") }
func (n *ComputeNode) HypervisorHostname() (string, bool) { return get[string](n, "hypervisor_hostname") }
func (n *ComputeNode) FreeRAMMB() (int64, bool) { return get[int64](n, "free_ram_mb") }
func (n *ComputeNode) FreeDiskGB() (int64, bool) { return get[int64](n, "free_disk_gb") }
func (n *ComputeNode) CurrentWorkload() (int64, bool) { return get[int64](n, "current_workload") }
func (n *ComputeNode) RunningVMs() (int64, bool) { return get[int64](n, "running_vms") }
func (n *ComputeNode) CPUInfo() (string, bool) { return get[string](n, "cpu_info") }
func (n *ComputeNode) DiskAvailableLeast() (int64, bool) { return get[int64](n, "disk_available_least") }
func (n *ComputeNode) Metrics() (string, bool) { return get[string](n, "metrics") }
func (n *ComputeNode) HostIP() (netip.Addr, bool) { return get[netip.Addr](n, "host_ip") }
func (n *ComputeNode) CreatedAt() (time.Time, bool) { return get[time.Time](n, "created_at") }
func (n *ComputeNode) UpdatedAt() (time.Time, bool) { return get[time.Time](n, "updated_at") }
func (n *ComputeNode) DeletedAt() (time.Time, bool) { return get[time.Time](n, "deleted_at") }
func (n *ComputeNode) Deleted() (bool, bool) { return get[bool](n, "deleted") }

func (n *ComputeNode) NUMATopology() (*NUMATopology, bool) {
	return get[*NUMATopology](n, "numa_topology")
}

func (n *ComputeNode) PciDevicePools() (*PciDevicePoolList, bool) {
	return get[*PciDevicePoolList](n, "pci_device_pools")
}

// Stats returns a copy of the stats map
func (n *ComputeNode) Stats() (map[string]string, bool) {
	m, ok := get[map[string]string](n, "stats")
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, true
}

// SupportedHVSpecs returns a copy of the supported instance specs
func (n *ComputeNode) SupportedHVSpecs() ([]HVSpec, bool) {
	s, ok := get[[]HVSpec](n, "supported_hv_specs")
	if !ok {
		return nil, false
	}
	return append([]HVSpec(nil), s...), true
}

// SetID assigns the node identity. It can only be done once.
func (n *ComputeNode) SetID(id int64) error {
	return n.Set("id", id)
}

func (n *ComputeNode) SetServiceID(id int64) { n.assign("service_id", id) }
func (n *ComputeNode) SetHost(host string) { n.assign("host", host) }
func (n *ComputeNode) SetHypervisorHostname(s string) { n.assign("hypervisor_hostname", s) }
func (n *ComputeNode) SetVCPUs(v int64) { n.assign("vcpus", v) }
func (n *ComputeNode) SetVCPUsUsed(v int64) { n.assign("vcpus_used", v) }
func (n *ComputeNode) SetMemoryMB(v int64) { n.assign("memory_mb", v) }
func (n *ComputeNode) SetMemoryMBUsed(v int64) { n.assign("memory_mb_used", v) }
func (n *ComputeNode) SetLocalGB(v int64) { n.assign("local_gb", v) }
func (n *ComputeNode) SetLocalGBUsed(v int64) { n.assign("local_gb_used", v) }
func (n *ComputeNode) SetHostIP(ip netip.Addr) { n.assign("host_ip", ip) }

func (n *ComputeNode) SetStats(stats map[string]string) {
	out := make(map[string]string, len(stats))
	for k, v := range stats {
		out[k] = v
	}
	n.assign("stats", out)
}

func (n *ComputeNode) SetSupportedHVSpecs(specs []HVSpec) {
	out := make([]HVSpec, len(specs))
	for i, s := range specs {
		out[i] = NewHVSpec(s.Arch, s.HVType, s.VMMode)
	}
	n.assign("supported_hv_specs", out)
}

func (n *ComputeNode) SetPciDevicePools(pools *PciDevicePoolList) {
	n.assign("pci_device_pools", pools)
}

func (n *ComputeNode) SetNUMATopology(t *NUMATopology) {
	n.assign("numa_topology", t)
}

// virtDriverKeys are copied verbatim from a virt driver resource report
var virtDriverKeys = []string{
	"vcpus", "memory_mb", "local_gb", "cpu_info",
	"vcpus_used", "memory_mb_used", "local_gb_used",
	"numa_topology", "hypervisor_type",
	"hypervisor_version", "hypervisor_hostname",
	"disk_available_least", "host_ip",
}

// UpdateFromVirtDriver overlays a virt driver resource report. Keys absent
// from resources are left alone and unknown keys are ignored.
// supported_instances fills supported_hv_specs. Every value is converted
// before anything is applied, so a VALUE_CONVERSION error leaves the node
// unchanged.
func (n *ComputeNode) UpdateFromVirtDriver(resources map[string]interface{}) error {
	staged := make(map[string]interface{}, len(virtDriverKeys)+1)

	for _, key := range virtDriverKeys {
		raw, ok := resources[key]
		if !ok {
			continue
		}
		f, _ := computeNodeSchema.Field(key)
		val, err := f.coerce(raw)
		if err != nil {
			return err
		}
		staged[key] = val
	}

	if raw, ok := resources["supported_instances"]; ok {
		f, _ := computeNodeSchema.Field("supported_hv_specs")
		val, err := f.coerce(raw)
		if err != nil {
			return err
		}
		staged["supported_hv_specs"] = val
	}

	for k, v := range staged {
		n.assign(k, v)
	}
	return nil
}

// columnValues renders the named fields in store column form
func (n *ComputeNode) columnValues(fields []string) (db.Record, error) {
	rec := make(db.Record, len(fields))
	for _, name := range fields {
		f, ok := computeNodeSchema.Field(name)
		if !ok {
			continue
		}
		v, set := n.values[name]
		if !set {
			continue
		}
		out, err := f.toColumn(v)
		if err != nil {
			return nil, err
		}
		rec[f.ColumnName()] = out
	}
	return rec, nil
}

func (n *ComputeNode) bound(action string) error {
	if n.nodes == nil {
		return exception.ObjectAction(action, "node is not bound to a store")
	}
	return nil
}

// Create persists a new node from the changed fields and reloads it from
// the stored record.
func (n *ComputeNode) Create(ctx context.Context) error {
	if n.IsSet("id") {
		return exception.ObjectAction("create", "already created")
	}
	if err := n.bound("create"); err != nil {
		return err
	}
	updates, err := n.columnValues(n.Changes())
	if err != nil {
		return err
	}
	rec, err := n.nodes.store.NodeCreate(ctx, updates)
	if err != nil {
		return err
	}
	if err := n.nodes.hydrate(ctx, n, rec); err != nil {
		return err
	}
	n.nodes.notify(ctx, EventCreate, n)
	return nil
}

// Save writes the changed fields of an existing node
func (n *ComputeNode) Save(ctx context.Context) error {
	id, ok := n.ID()
	if !ok {
		return exception.ObjectAction("save", "no id")
	}
	if err := n.bound("save"); err != nil {
		return err
	}
	changes := n.Changes()
	fields := changes[:0:0]
	for _, c := range changes {
		if c != "id" {
			fields = append(fields, c)
		}
	}
	updates, err := n.columnValues(fields)
	if err != nil {
		return err
	}
	rec, err := n.nodes.store.NodeUpdate(ctx, id, updates)
	if err != nil {
		return err
	}
	if err := n.nodes.hydrate(ctx, n, rec); err != nil {
		return err
	}
	n.nodes.notify(ctx, EventUpdate, n)
	return nil
}

// Destroy deletes the node from the store
func (n *ComputeNode) Destroy(ctx context.Context) error {
	id, ok := n.ID()
	if !ok {
		return exception.ObjectAction("destroy", "no id")
	}
	if err := n.bound("destroy"); err != nil {
		return err
	}
	if err := n.nodes.store.NodeDelete(ctx, id); err != nil {
		return err
	}
	n.nodes.notify(ctx, EventDelete, n)
	return nil
}

// Service returns the owning service. It is looked up once and cached on
// the node.
func (n *ComputeNode) Service(ctx context.Context) (*Service, error) {
	if n.service != nil {
		return n.service, nil
	}
	sid, ok := n.ServiceID()
	if !ok {
		return nil, exception.ObjectAction("service", "service_id is not set")
	}
	if n.nodes == nil || n.nodes.services == nil {
		return nil, exception.ObjectAction("service", "no service lookup configured")
	}
	svc, err := n.nodes.services.GetByID(ctx, sid)
	if err != nil {
		return nil, err
	}
	n.service = svc
	return svc, nil
}

func (n *ComputeNode) String() string {
	id, _ := n.ID()
	host, _ := n.Host()
	node, _ := n.HypervisorHostname()
	return fmt.Sprintf("ComputeNode(id=%d, host=%s, hypervisor_hostname=%s)", id, host, node)
}
