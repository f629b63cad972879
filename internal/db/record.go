// Package db implements the compute node store: the raw record CRUD the
// object layer hydrates from. Records are column-name keyed maps so that
// rows from schemas of different ages (for instance one without the host
// column) can be represented as-is.
package db

import (
	"fmt"
	"sort"
	"time"

	"github.com/nodeledger/nodeledger/internal/exception"
)

// Record is one compute_nodes row keyed by column name. A missing key and
// a nil value both mean the column carried no value.
type Record map[string]interface{}

// Clone returns a shallow copy of r
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether column is present with a non-nil value
func (r Record) Has(column string) bool {
	v, ok := r[column]
	return ok && v != nil
}

// Columns of the compute_nodes table in its current layout
var Columns = []string{
	"id", "service_id", "host",
	"vcpus", "memory_mb", "local_gb",
	"vcpus_used", "memory_mb_used", "local_gb_used",
	"hypervisor_type", "hypervisor_version", "hypervisor_hostname",
	"free_ram_mb", "free_disk_gb", "current_workload", "running_vms",
	"cpu_info", "disk_available_least", "metrics",
	"stats", "host_ip", "numa_topology", "supported_instances", "pci_stats",
	"created_at", "updated_at", "deleted_at", "deleted",
}

// systemColumns are maintained by the store and never accepted in writes
var systemColumns = map[string]bool{
	"id": true, "created_at": true, "updated_at": true, "deleted_at": true, "deleted": true,
}

var knownColumns = func() map[string]bool {
	m := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		m[c] = true
	}
	return m
}()

// writableColumns validates the keys of a create/update payload and returns
// them sorted so generated statements are deterministic. Store-managed
// columns fail with READ_ONLY_FIELD.
func writableColumns(values Record) ([]string, error) {
	cols := make([]string, 0, len(values))
	for k := range values {
		if !knownColumns[k] {
			return nil, fmt.Errorf("unknown compute_nodes column %q", k)
		}
		if systemColumns[k] {
			return nil, exception.ReadOnlyField(k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
