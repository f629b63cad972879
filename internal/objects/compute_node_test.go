package objects

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/exception"
)

// assertMatchesRecord compares a loaded node with the row it came from
func assertMatchesRecord(t *testing.T, rec db.Record, n *ComputeNode) {
	t.Helper()

	for _, key := range []string{
		"id", "service_id", "host", "vcpus", "memory_mb", "local_gb",
		"vcpus_used", "memory_mb_used", "local_gb_used",
		"hypervisor_type", "hypervisor_version", "hypervisor_hostname",
		"free_ram_mb", "free_disk_gb", "current_workload", "running_vms",
		"cpu_info", "disk_available_least", "metrics", "deleted",
	} {
		got, ok := n.Get(key)
		if !rec.Has(key) {
			assert.False(t, ok, "field %s should be unset", key)
			continue
		}
		require.True(t, ok, "field %s should be set", key)
		assert.Equal(t, rec[key], got, "field %s", key)
	}

	created, ok := n.CreatedAt()
	require.True(t, ok)
	assert.True(t, created.Equal(fakeNow))
	assert.False(t, n.IsSet("updated_at"))
	assert.False(t, n.IsSet("deleted_at"))

	stats, ok := n.Stats()
	require.True(t, ok)
	assert.Equal(t, map[string]string{"num_foo": "10"}, stats)

	ip, ok := n.HostIP()
	require.True(t, ok)
	assert.Equal(t, fakeHostIP, ip.String())

	specs, ok := n.SupportedHVSpecs()
	require.True(t, ok)
	assert.Equal(t, fakeHVSpecs(), specs)

	numa, ok := n.NUMATopology()
	require.True(t, ok)
	assert.Equal(t, fakeNUMATopology(), numa)

	pools, ok := n.PciDevicePools()
	require.True(t, ok)
	require.Len(t, pools.Pools, 1)
	pool := pools.Pools[0]
	assert.Equal(t, "fake-product", pool.ProductID)
	assert.Equal(t, "fake-vendor", pool.VendorID)
	assert.Equal(t, int64(2), pool.Count)
	require.NotNil(t, pool.NUMANode)
	assert.Equal(t, int64(1), *pool.NUMANode)
	assert.Equal(t, map[string]string{"t1": "v1", "t2": "v2"}, pool.Tags)

	assert.Empty(t, n.Changes())
}

func TestGetByID(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	services := newFakeServices(fakeService())
	nodes := newTestNodes(store, services)

	n, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	require.NoError(t, err)
	assertMatchesRecord(t, fakeComputeNode(t), n)
	assert.Equal(t, 0, services.byIDCalls)
}

func TestGetByID_HostFieldNotInDB(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeOldComputeNode(t))
	services := newFakeServices(fakeService())
	nodes := newTestNodes(store, services)

	n, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	require.NoError(t, err)
	assertMatchesRecord(t, fakeComputeNode(t), n)
	assert.Equal(t, 1, services.byIDCalls)
}

func TestGetByID_OwningServiceGone(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeOldComputeNode(t))
	nodes := newTestNodes(store, newFakeServices())

	n, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	assert.ErrorIs(t, err, exception.ErrServiceNotFound)
	assert.Nil(t, n)
}

func TestGetAll_OwningServiceGone(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	orphan := fakeOldComputeNode(t)
	orphan["id"] = int64(124)
	orphan["service_id"] = int64(99)
	store.Seed(orphan)
	nodes := newTestNodes(store, newFakeServices(fakeService()))

	_, err := nodes.GetAll(context.Background())
	assert.ErrorIs(t, err, exception.ErrServiceNotFound)
}

func TestGetByID_ServiceLookupFails(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeOldComputeNode(t))
	services := newFakeServices()
	services.err = errors.New("etcd unavailable")
	nodes := newTestNodes(store, services)

	_, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	assert.EqualError(t, err, "etcd unavailable")
}

func TestGetByID_NotFound(t *testing.T) {
	nodes := newTestNodes(newRecordingStore(), newFakeServices())
	_, err := nodes.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, exception.ErrComputeNodeNotFound)
}

func TestGetByID_BadValue(t *testing.T) {
	store := newRecordingStore()
	rec := fakeComputeNode(t)
	rec["vcpus"] = "wrongtype"
	store.Seed(rec)
	nodes := newTestNodes(store, newFakeServices(fakeService()))

	_, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	assert.ErrorIs(t, err, exception.ErrValueConversion)
}

func TestHydrate_PartialOnBadValue(t *testing.T) {
	nodes := newTestNodes(newRecordingStore(), newFakeServices(fakeService()))
	rec := fakeComputeNode(t)
	rec["memory_mb"] = "lots"

	n := nodes.New()
	err := nodes.hydrate(context.Background(), n, rec)
	var convErr *exception.Error
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, exception.CodeValueConversion, convErr.Code)
	assert.Equal(t, "memory_mb", convErr.Details["field"])

	vcpus, ok := n.VCPUs()
	assert.True(t, ok)
	assert.Equal(t, int64(4), vcpus)
	assert.False(t, n.IsSet("memory_mb"))
	assert.False(t, n.IsSet("local_gb"))
}

func TestGetByServiceID(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	nodes := newTestNodes(store, newFakeServices(fakeService()))

	n, err := nodes.GetByServiceID(context.Background(), fakeServiceID)
	require.NoError(t, err)
	assertMatchesRecord(t, fakeComputeNode(t), n)

	_, err = nodes.GetByServiceID(context.Background(), 999)
	assert.ErrorIs(t, err, exception.ErrServiceNotFound)
}

func TestGetByServiceID_ReturnsFirst(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	second := fakeComputeNode(t)
	second["id"] = int64(124)
	second["hypervisor_hostname"] = "second"
	store.Seed(second)
	nodes := newTestNodes(store, newFakeServices(fakeService()))

	n, err := nodes.GetByServiceID(context.Background(), fakeServiceID)
	require.NoError(t, err)
	id, _ := n.ID()
	assert.Equal(t, fakeComputeNodeID, id)
}

func TestCreate(t *testing.T) {
	store := newRecordingStore()
	notifier := &fakeNotifier{}
	nodes := newTestNodes(store, newFakeServices(fakeService()), WithNotifier(notifier))

	n := nodes.New()
	n.SetServiceID(fakeServiceID)
	n.SetStats(map[string]string{"num_foo": "10"})
	require.NoError(t, n.Set("host_ip", fakeHostIP))
	n.SetSupportedHVSpecs(fakeHVSpecs())

	require.NoError(t, n.Create(context.Background()))

	require.Len(t, store.created, 1)
	assert.Equal(t, db.Record{
		"service_id":          fakeServiceID,
		"stats":               fakeStatsText,
		"host_ip":             fakeHostIP,
		"supported_instances": fakeSupportedText,
	}, store.created[0])

	id, ok := n.ID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Empty(t, n.Changes())

	// the record carries no host, it comes from the owning service
	host, ok := n.Host()
	require.True(t, ok)
	assert.Equal(t, "fake", host)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, EventCreate, notifier.events[0].event)
	p, ok := notifier.events[0].payload.(Primitive)
	require.True(t, ok)
	assert.Equal(t, int64(1), p.Data["id"])
}

func TestRecreateFails(t *testing.T) {
	store := newRecordingStore()
	nodes := newTestNodes(store, newFakeServices(fakeService()))

	n := nodes.New()
	n.SetServiceID(fakeServiceID)
	require.NoError(t, n.Create(context.Background()))

	err := n.Create(context.Background())
	assert.ErrorIs(t, err, exception.ErrObjectAction)
	assert.Len(t, store.created, 1)
}

func TestSetIDTwice(t *testing.T) {
	nodes := newTestNodes(newRecordingStore(), newFakeServices(fakeService()))

	n := nodes.New()
	n.SetServiceID(fakeServiceID)
	require.NoError(t, n.Create(context.Background()))

	err := n.SetID(42)
	assert.ErrorIs(t, err, exception.ErrReadOnlyField)
	id, _ := n.ID()
	assert.Equal(t, int64(1), id)

	fresh := NewComputeNode()
	require.NoError(t, fresh.SetID(7))
	assert.ErrorIs(t, fresh.SetID(8), exception.ErrReadOnlyField)
	assert.ErrorIs(t, fresh.Set("id", 9), exception.ErrReadOnlyField)
}

func TestCreate_Unbound(t *testing.T) {
	err := NewComputeNode().Create(context.Background())
	assert.ErrorIs(t, err, exception.ErrObjectAction)
}

func TestSave(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	notifier := &fakeNotifier{}
	nodes := newTestNodes(store, newFakeServices(fakeService()), WithNotifier(notifier))

	n := nodes.New()
	require.NoError(t, n.SetID(fakeComputeNodeID))
	n.SetVCPUsUsed(3)
	n.SetStats(map[string]string{"num_foo": "10"})
	require.NoError(t, n.Set("host_ip", fakeHostIP))
	n.SetSupportedHVSpecs(fakeHVSpecs())

	require.NoError(t, n.Save(context.Background()))

	require.Len(t, store.updated, 1)
	assert.Equal(t, db.Record{
		"vcpus_used":          int64(3),
		"stats":               fakeStatsText,
		"host_ip":             fakeHostIP,
		"supported_instances": fakeSupportedText,
	}, store.updated[0])

	used, _ := n.VCPUsUsed()
	assert.Equal(t, int64(3), used)
	vcpus, ok := n.VCPUs()
	require.True(t, ok, "save reloads the full record")
	assert.Equal(t, int64(4), vcpus)
	assert.True(t, n.IsSet("updated_at"))
	assert.Empty(t, n.Changes())

	require.Len(t, notifier.events, 1)
	assert.Equal(t, EventUpdate, notifier.events[0].event)
}

func TestSave_RequiresID(t *testing.T) {
	nodes := newTestNodes(newRecordingStore(), newFakeServices())
	n := nodes.New()
	n.SetVCPUs(1)
	assert.ErrorIs(t, n.Save(context.Background()), exception.ErrObjectAction)
}

func TestDestroy(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	notifier := &fakeNotifier{}
	nodes := newTestNodes(store, newFakeServices(fakeService()), WithNotifier(notifier))

	n, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	require.NoError(t, err)
	require.NoError(t, n.Destroy(context.Background()))
	assert.Equal(t, []int64{fakeComputeNodeID}, store.deleted)

	_, err = nodes.GetByID(context.Background(), fakeComputeNodeID)
	assert.ErrorIs(t, err, exception.ErrComputeNodeNotFound)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, EventDelete, notifier.events[0].event)

	assert.ErrorIs(t, nodes.New().Destroy(context.Background()), exception.ErrObjectAction)
}

func TestNotifyFailureDoesNotFailSave(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	notifier := &fakeNotifier{err: errors.New("broker down")}
	nodes := newTestNodes(store, newFakeServices(fakeService()), WithNotifier(notifier))

	n, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	require.NoError(t, err)
	n.SetVCPUsUsed(1)
	assert.NoError(t, n.Save(context.Background()))
	assert.Len(t, notifier.events, 1)
}

func TestServiceIsCached(t *testing.T) {
	store := newRecordingStore()
	store.Seed(fakeComputeNode(t))
	services := newFakeServices(fakeService())
	nodes := newTestNodes(store, services)

	n, err := nodes.GetByID(context.Background(), fakeComputeNodeID)
	require.NoError(t, err)

	first, err := n.Service(context.Background())
	require.NoError(t, err)
	second, err := n.Service(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, services.byIDCalls)

	// mutating fields does not invalidate the cache
	n.SetServiceID(999)
	third, err := n.Service(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, third)
	assert.Equal(t, 1, services.byIDCalls)
}

func TestService_NoServiceID(t *testing.T) {
	nodes := newTestNodes(newRecordingStore(), newFakeServices())
	_, err := nodes.New().Service(context.Background())
	assert.ErrorIs(t, err, exception.ErrObjectAction)
}

func TestUpdateFromVirtDriver(t *testing.T) {
	n := NewComputeNode()
	require.NoError(t, n.UpdateFromVirtDriver(fakeResources(t)))

	expected := map[string]interface{}{
		"vcpus":                int64(2),
		"memory_mb":            int64(1024),
		"local_gb":             int64(10),
		"cpu_info":             "fake-info",
		"vcpus_used":           int64(1),
		"memory_mb_used":       int64(512),
		"local_gb_used":        int64(4),
		"hypervisor_type":      "fake-type",
		"hypervisor_version":   int64(1),
		"hypervisor_hostname":  "fake-host",
		"disk_available_least": int64(256),
		"host_ip":              netip.MustParseAddr(fakeHostIP),
		"supported_hv_specs":   fakeHVSpecs(),
		"numa_topology":        fakeNUMATopology(),
	}
	for k, want := range expected {
		got, ok := n.Get(k)
		require.True(t, ok, "field %s should be set", k)
		assert.Equal(t, want, got, "field %s", k)
	}
	assert.Len(t, n.Changes(), len(expected))
}

func TestUpdateFromVirtDriver_SupportedInstancesText(t *testing.T) {
	n := NewComputeNode()
	require.NoError(t, n.UpdateFromVirtDriver(map[string]interface{}{
		"supported_instances": fakeSupportedText,
		"not_a_field":         "ignored",
	}))
	specs, ok := n.SupportedHVSpecs()
	require.True(t, ok)
	assert.Equal(t, fakeHVSpecs(), specs)
	assert.Equal(t, []string{"supported_hv_specs"}, n.Changes())
}

func TestUpdateFromVirtDriver_MissingField(t *testing.T) {
	resources := fakeResources(t)
	delete(resources, "vcpus")

	n := NewComputeNode()
	require.NoError(t, n.UpdateFromVirtDriver(resources))
	assert.False(t, n.IsSet("vcpus"))
	_, ok := n.VCPUs()
	assert.False(t, ok)
	assert.True(t, n.IsSet("memory_mb"))
}

func TestUpdateFromVirtDriver_BadValue(t *testing.T) {
	resources := fakeResources(t)
	resources["vcpus"] = "wrongtype"

	n := NewComputeNode()
	n.SetMemoryMB(1)
	err := n.UpdateFromVirtDriver(resources)
	assert.ErrorIs(t, err, exception.ErrValueConversion)

	// nothing from the report is applied
	mem, _ := n.MemoryMB()
	assert.Equal(t, int64(1), mem)
	assert.False(t, n.IsSet("vcpus"))
	assert.False(t, n.IsSet("hypervisor_hostname"))
	assert.Equal(t, []string{"memory_mb"}, n.Changes())
}

func TestUpdateFromVirtDriver_BadSupportedInstances(t *testing.T) {
	n := NewComputeNode()
	err := n.UpdateFromVirtDriver(map[string]interface{}{
		"vcpus":               4,
		"supported_instances": [][]string{{"x86_64", "kvm"}},
	})
	assert.ErrorIs(t, err, exception.ErrValueConversion)
	assert.False(t, n.IsSet("vcpus"))
}

func TestSet_Coerces(t *testing.T) {
	n := NewComputeNode()
	require.NoError(t, n.Set("vcpus", "8"))
	v, _ := n.VCPUs()
	assert.Equal(t, int64(8), v)

	assert.ErrorIs(t, n.Set("vcpus", 1.5), exception.ErrValueConversion)
	assert.ErrorIs(t, n.Set("host_ip", "not-an-ip"), exception.ErrValueConversion)
	assert.Error(t, n.Set("no_such_field", 1))
}

func TestPrimitiveJSONRoundTrip(t *testing.T) {
	nodes := newTestNodes(newRecordingStore(), newFakeServices())
	n, err := nodes.load(context.Background(), fakeComputeNode(t))
	require.NoError(t, err)
	n.SetVCPUsUsed(3)

	p, err := n.ToPrimitive()
	require.NoError(t, err)
	assert.Equal(t, "1.11", p.Version)
	assert.Equal(t, []string{"vcpus_used"}, p.Changes)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))

	back, err := ComputeNodeFromPrimitive(decoded)
	require.NoError(t, err)

	rec := fakeComputeNode(t)
	rec["vcpus_used"] = int64(3)
	assertMatchesRecordIgnoringChanges(t, rec, back)
	assert.Equal(t, []string{"vcpus_used"}, back.Changes())
}

func assertMatchesRecordIgnoringChanges(t *testing.T, rec db.Record, n *ComputeNode) {
	t.Helper()
	changes := n.Changes()
	n.ResetChanges()
	assertMatchesRecord(t, rec, n)
	for _, c := range changes {
		n.changed[c] = struct{}{}
	}
}

func TestFromPrimitive_OldVersion(t *testing.T) {
	p := Primitive{
		Name:    "ComputeNode",
		Version: "1.2",
		Data: map[string]interface{}{
			"vcpus": float64(4),
			"stats": map[string]interface{}{"num_foo": "10"},
		},
	}
	n, err := ComputeNodeFromPrimitive(p)
	require.NoError(t, err)
	v, _ := n.VCPUs()
	assert.Equal(t, int64(4), v)
	// stats did not exist in 1.2
	assert.False(t, n.IsSet("stats"))
}

func TestFromPrimitive_Rejects(t *testing.T) {
	_, err := ComputeNodeFromPrimitive(Primitive{Name: "ComputeNode", Version: "1.12"})
	assert.ErrorIs(t, err, exception.ErrIncompatibleObjectVersion)

	_, err = ComputeNodeFromPrimitive(Primitive{Name: "ComputeNode", Version: "2.0"})
	assert.ErrorIs(t, err, exception.ErrIncompatibleObjectVersion)

	_, err = ComputeNodeFromPrimitive(Primitive{Name: "Service", Version: "1.0"})
	assert.Error(t, err)

	_, err = ComputeNodeFromPrimitive("nope")
	assert.Error(t, err)
}
