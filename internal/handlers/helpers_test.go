package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/middleware"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// fakeDirectory is an in-memory ServiceDirectory
type fakeDirectory struct {
	services []*objects.Service
	up       map[int64]bool
}

func (d *fakeDirectory) GetByID(ctx context.Context, id int64) (*objects.Service, error) {
	for _, s := range d.services {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, exception.ServiceNotFound(id)
}

func (d *fakeDirectory) GetByComputeHost(ctx context.Context, host string) (*objects.Service, error) {
	for _, s := range d.services {
		if s.Host == host && s.Topic == "compute" {
			return s, nil
		}
	}
	return nil, exception.ServiceHostNotFound(host)
}

func (d *fakeDirectory) List(ctx context.Context) ([]*objects.Service, error) {
	return d.services, nil
}

func (d *fakeDirectory) IsUp(ctx context.Context, id int64) (bool, error) {
	return d.up[id], nil
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		services: []*objects.Service{
			{ID: 1, Host: "fake", Binary: "nodeledger-agent", Topic: "compute"},
			{ID: 2, Host: "other", Binary: "nodeledger-agent", Topic: "compute"},
		},
		up: map[int64]bool{1: true},
	}
}

func nodeRecord(id, serviceID int64, host, nodename string) db.Record {
	return db.Record{
		"id":                  id,
		"service_id":          serviceID,
		"host":                host,
		"hypervisor_hostname": nodename,
		"vcpus":               int64(4),
		"memory_mb":           int64(4096),
		"local_gb":            int64(1024),
		"vcpus_used":          int64(2),
		"memory_mb_used":      int64(2048),
		"local_gb_used":       int64(512),
		"hypervisor_type":     "QEMU",
		"hypervisor_version":  int64(2004000),
		"cpu_info":            "{}",
		"host_ip":             "192.0.2.10",
		"stats":               `{"num_instances": "2"}`,
		"supported_instances": `[["x86_64", "kvm", "hvm"]]`,
		"deleted":             false,
	}
}

type testEnv struct {
	app   *fiber.App
	store *db.MemoryStore
	dir   *fakeDirectory
}

func newTestEnv(t *testing.T, opts ...db.MemoryOption) *testEnv {
	t.Helper()

	store := db.NewMemoryStore(opts...)
	dir := newDirectory()
	nodes := objects.NewNodes(store, dir, objects.WithLogger(logging.NewNop()))
	h := New(logging.NewNop(), nodes, dir)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.NewNop())})
	app.Get("/health", h.Health)
	app.Get("/v1/compute-nodes", h.ListComputeNodes)
	app.Post("/v1/compute-nodes", h.CreateComputeNode)
	app.Get("/v1/compute-nodes/:id", h.GetComputeNode)
	app.Patch("/v1/compute-nodes/:id", h.UpdateComputeNodeResources)
	app.Delete("/v1/compute-nodes/:id", h.DeleteComputeNode)
	app.Get("/v1/services", h.ListServices)
	app.Get("/v1/services/:service_id", h.GetService)
	app.Get("/v1/services/:service_id/compute-nodes", h.GetServiceComputeNodes)
	app.Get("/v1/hosts/:host/compute-nodes", h.GetHostComputeNodes)
	app.Get("/v1/hosts/:host/compute-nodes/first", h.GetFirstHostComputeNode)
	app.Get("/v1/hosts/:host/nodes/:nodename", h.GetHostNode)
	app.Use(h.NotFound)

	return &testEnv{app: app, store: store, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// listObjects returns the data maps of a ComputeNodeList primitive
func listObjects(t *testing.T, p objects.Primitive) []map[string]interface{} {
	t.Helper()
	require.Equal(t, "ComputeNodeList", p.Name)
	raw, ok := p.Data["objects"].([]interface{})
	require.True(t, ok)

	out := make([]map[string]interface{}, 0, len(raw))
	for _, o := range raw {
		obj := o.(map[string]interface{})
		out = append(out, obj["nodeledger_object.data"].(map[string]interface{}))
	}
	return out
}
