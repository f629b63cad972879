package models

// CreateComputeNodeRequest carries field values for a new compute node.
// Keys are field names; values are coerced by the field's type.
type CreateComputeNodeRequest map[string]interface{}

// UpdateResourcesRequest is a virt driver resource report. Known keys are
// vcpus, memory_mb, local_gb, cpu_info, vcpus_used, memory_mb_used,
// local_gb_used, numa_topology, hypervisor_type, hypervisor_version,
// hypervisor_hostname, disk_available_least, host_ip and
// supported_instances.
type UpdateResourcesRequest map[string]interface{}
