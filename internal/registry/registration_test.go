package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/client/pkg/v3/types"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// setupEmbeddedEtcd starts an embedded etcd server for testing
func setupEmbeddedEtcd(t *testing.T) (*clientv3.Client, func()) {
	t.Helper()

	cfg := embed.NewConfig()
	cfg.Dir = t.TempDir()
	cfg.LogLevel = "error"

	// Use random local ports for all URLs
	cfg.ListenClientUrls, _ = types.NewURLs([]string{"http://127.0.0.1:0"})
	cfg.ListenPeerUrls, _ = types.NewURLs([]string{"http://127.0.0.1:0"})

	e, err := embed.StartEtcd(cfg)
	if err != nil {
		t.Fatalf("Failed to start embedded etcd: %v", err)
	}

	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(10 * time.Second):
		e.Close()
		t.Fatal("Etcd server took too long to start")
	}

	endpoints := []string{}
	for _, listener := range e.Clients {
		endpoints = append(endpoints, "http://"+listener.Addr().String())
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		e.Close()
		t.Fatalf("Failed to create etcd client: %v", err)
	}

	cleanup := func() {
		_ = client.Close()
		e.Close()
	}

	return client, cleanup
}

func newTestRegistry(t *testing.T, cacheTTL time.Duration) (*EtcdServiceRegistry, *clientv3.Client) {
	t.Helper()
	client, cleanup := setupEmbeddedEtcd(t)
	t.Cleanup(cleanup)

	r := NewWithClient(client, config.EtcdConfig{
		Prefix:   "/nodeledger",
		LeaseTTL: 5,
		CacheTTL: cacheTTL,
	}, logging.NewNop())
	t.Cleanup(func() { _ = r.Close() })
	return r, client
}

func computeService(host string) objects.Service {
	return objects.Service{Host: host, Binary: "nodeledger-agent", Topic: ComputeTopic}
}

func TestServiceRegistration_Register(t *testing.T) {
	r, client := newTestRegistry(t, 0)
	ctx := context.Background()

	reg := NewServiceRegistration(r, computeService("fake"), logging.NewNop())
	assert.Nil(t, reg.Service())

	require.NoError(t, reg.Register(ctx))
	svc := reg.Service()
	require.NotNil(t, svc)
	assert.Equal(t, int64(1), svc.ID)

	up, err := r.IsUp(ctx, svc.ID)
	require.NoError(t, err)
	assert.True(t, up)

	resp, err := client.Get(ctx, "/nodeledger/services/alive/1")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	assert.NotZero(t, resp.Kvs[0].Lease)

	require.NoError(t, reg.Deregister(ctx))
	up, err = r.IsUp(ctx, svc.ID)
	require.NoError(t, err)
	assert.False(t, up)

	// the record outlives the heartbeat
	got, err := r.GetByComputeHost(ctx, "fake")
	require.NoError(t, err)
	assert.Equal(t, svc.ID, got.ID)
}

func TestServiceRegistration_ReusesExistingRecord(t *testing.T) {
	r, _ := newTestRegistry(t, 0)
	ctx := context.Background()

	first := NewServiceRegistration(r, computeService("fake"), logging.NewNop())
	require.NoError(t, first.Register(ctx))
	require.NoError(t, first.Deregister(ctx))

	second := NewServiceRegistration(r, computeService("fake"), logging.NewNop())
	require.NoError(t, second.Register(ctx))
	defer func() { _ = second.Deregister(ctx) }()

	assert.Equal(t, first.Service().ID, second.Service().ID)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestServiceRegistration_DeregisterWithoutRegister(t *testing.T) {
	r, _ := newTestRegistry(t, 0)
	reg := NewServiceRegistration(r, computeService("fake"), logging.NewNop())
	assert.NoError(t, reg.Deregister(context.Background()))
}

func TestServiceRegistration_KeepAliveHoldsLease(t *testing.T) {
	if testing.Short() {
		t.Skip("waits past the lease TTL")
	}
	client, cleanup := setupEmbeddedEtcd(t)
	defer cleanup()

	r := NewWithClient(client, config.EtcdConfig{Prefix: "/nodeledger", LeaseTTL: 2}, logging.NewNop())
	defer func() { _ = r.Close() }()
	ctx := context.Background()

	reg := NewServiceRegistration(r, computeService("fake"), logging.NewNop())
	require.NoError(t, reg.Register(ctx))
	defer func() { _ = reg.Deregister(ctx) }()

	time.Sleep(4 * time.Second)

	up, err := r.IsUp(ctx, reg.Service().ID)
	require.NoError(t, err)
	assert.True(t, up)
}
