package objects

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
)

var fakeNow = time.Date(2015, 3, 4, 12, 0, 0, 0, time.UTC)

const (
	fakeStatsText      = `{"num_foo":"10"}`
	fakeHostIP         = "127.0.0.1"
	fakeSupportedText  = `[["x86_64","kvm","hvm"]]`
	fakePciStatsText   = `[{"product_id":"fake-product","vendor_id":"fake-vendor","numa_node":1,"t1":"v1","t2":"v2","count":2}]`
	fakeServiceID      = int64(456)
	fakeComputeNodeID  = int64(123)
	fakeHypervisorHost = "vm.danplanet.com"
)

func fakeNUMATopology() *NUMATopology {
	return &NUMATopology{Cells: []NUMACell{
		{ID: 0, CPUSet: []int64{1, 2}, Memory: 512, PinnedCPUs: []int64{}, Siblings: [][]int64{}, MemPages: []NUMAPages{}},
		{ID: 1, CPUSet: []int64{3, 4}, Memory: 512, PinnedCPUs: []int64{}, Siblings: [][]int64{}, MemPages: []NUMAPages{}},
	}}
}

func fakeNUMAText(t *testing.T) string {
	s, err := fakeNUMATopology().ToJSON()
	require.NoError(t, err)
	return s
}

func fakeHVSpecs() []HVSpec {
	return []HVSpec{NewHVSpec("x86_64", "kvm", "hvm")}
}

// fakeComputeNode is a complete compute_nodes row
func fakeComputeNode(t *testing.T) db.Record {
	return db.Record{
		"created_at":           fakeNow,
		"updated_at":           nil,
		"deleted_at":           nil,
		"deleted":              false,
		"id":                   fakeComputeNodeID,
		"service_id":           fakeServiceID,
		"host":                 "fake",
		"vcpus":                int64(4),
		"memory_mb":            int64(4096),
		"local_gb":             int64(1024),
		"vcpus_used":           int64(2),
		"memory_mb_used":       int64(2048),
		"local_gb_used":        int64(512),
		"hypervisor_type":      "Hyper-Dan-VM-ware",
		"hypervisor_version":   int64(1001),
		"hypervisor_hostname":  fakeHypervisorHost,
		"free_ram_mb":          int64(1024),
		"free_disk_gb":         int64(256),
		"current_workload":     int64(100),
		"running_vms":          int64(2013),
		"cpu_info":             "Schmintel i786",
		"disk_available_least": int64(256),
		"metrics":              "",
		"stats":                fakeStatsText,
		"host_ip":              fakeHostIP,
		"numa_topology":        fakeNUMAText(t),
		"supported_instances":  fakeSupportedText,
		"pci_stats":            fakePciStatsText,
	}
}

// fakeOldComputeNode is the same row written before the host column
func fakeOldComputeNode(t *testing.T) db.Record {
	rec := fakeComputeNode(t)
	delete(rec, "host")
	return rec
}

func fakeResources(t *testing.T) map[string]interface{} {
	return map[string]interface{}{
		"vcpus":                2,
		"memory_mb":            1024,
		"local_gb":             10,
		"cpu_info":             "fake-info",
		"vcpus_used":           1,
		"memory_mb_used":       512,
		"local_gb_used":        4,
		"numa_topology":        fakeNUMAText(t),
		"hypervisor_type":      "fake-type",
		"hypervisor_version":   1,
		"hypervisor_hostname":  "fake-host",
		"disk_available_least": 256,
		"host_ip":              fakeHostIP,
		"supported_instances":  [][]string{{"x86_64", "kvm", "hvm"}},
	}
}

// recordingStore records the payloads of writes
type recordingStore struct {
	*db.MemoryStore

	mu      sync.Mutex
	created []db.Record
	updated []db.Record
	deleted []int64
}

func newRecordingStore(opts ...db.MemoryOption) *recordingStore {
	return &recordingStore{MemoryStore: db.NewMemoryStore(opts...)}
}

func (s *recordingStore) NodeCreate(ctx context.Context, values db.Record) (db.Record, error) {
	s.mu.Lock()
	s.created = append(s.created, values.Clone())
	s.mu.Unlock()
	return s.MemoryStore.NodeCreate(ctx, values)
}

func (s *recordingStore) NodeUpdate(ctx context.Context, id int64, values db.Record) (db.Record, error) {
	s.mu.Lock()
	s.updated = append(s.updated, values.Clone())
	s.mu.Unlock()
	return s.MemoryStore.NodeUpdate(ctx, id, values)
}

func (s *recordingStore) NodeDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, id)
	s.mu.Unlock()
	return s.MemoryStore.NodeDelete(ctx, id)
}

// fakeServices is a ServiceLookup over fixed services that counts calls
type fakeServices struct {
	services []*Service
	err      error

	byIDCalls   int
	byHostCalls int
}

func newFakeServices(svcs ...*Service) *fakeServices {
	return &fakeServices{services: svcs}
}

func (f *fakeServices) GetByID(ctx context.Context, id int64) (*Service, error) {
	f.byIDCalls++
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.services {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, exception.ServiceNotFound(id)
}

func (f *fakeServices) GetByComputeHost(ctx context.Context, host string) (*Service, error) {
	f.byHostCalls++
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.services {
		if s.Host == host {
			return s, nil
		}
	}
	return nil, exception.ServiceHostNotFound(host)
}

type notification struct {
	event   string
	payload interface{}
}

type fakeNotifier struct {
	events []notification
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, event string, payload interface{}) error {
	f.events = append(f.events, notification{event: event, payload: payload})
	return f.err
}

func fakeService() *Service {
	return &Service{ID: fakeServiceID, Host: "fake", Binary: "nodeledger-agent", Topic: "compute"}
}

func newTestNodes(store db.Store, services ServiceLookup, opts ...Option) *Nodes {
	opts = append([]Option{WithLogger(logging.NewNop())}, opts...)
	return NewNodes(store, services, opts...)
}
