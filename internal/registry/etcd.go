// Package registry keeps compute services in etcd. It is the service
// lookup behind compute node resolution and the place agents announce
// their liveness.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// ComputeTopic is the topic of the services that own compute nodes
const ComputeTopic = "compute"

const maxTxnRetries = 10

var errHostTaken = errors.New("service already registered for host and topic")

// EtcdServiceRegistry stores services under:
//
//	<prefix>/services/next_id                id counter
//	<prefix>/services/by-id/<id>             service JSON
//	<prefix>/services/by-host/<host>/<topic> service id
//	<prefix>/services/alive/<id>             leased heartbeat key
type EtcdServiceRegistry struct {
	client   *clientv3.Client
	prefix   string
	leaseTTL int64
	cache    *serviceCache
	logger   *logging.Logger
	ownsConn bool
}

// NewEtcdServiceRegistry connects to etcd
func NewEtcdServiceRegistry(cfg config.EtcdConfig, logger *logging.Logger) (*EtcdServiceRegistry, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	r := NewWithClient(client, cfg, logger)
	r.ownsConn = true
	return r, nil
}

// NewWithClient builds a registry on an existing client
func NewWithClient(client *clientv3.Client, cfg config.EtcdConfig, logger *logging.Logger) *EtcdServiceRegistry {
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 10
	}
	return &EtcdServiceRegistry{
		client:   client,
		prefix:   cfg.Key("services"),
		leaseTTL: ttl,
		cache:    newServiceCache(cfg.CacheTTL),
		logger:   logger,
	}
}

// Close stops the cache and, when the registry dialed it, the client
func (r *EtcdServiceRegistry) Close() error {
	r.cache.stop()
	if r.ownsConn {
		return r.client.Close()
	}
	return nil
}

func (r *EtcdServiceRegistry) counterKey() string { return path.Join(r.prefix, "next_id") }

func (r *EtcdServiceRegistry) byIDKey(id int64) string {
	return path.Join(r.prefix, "by-id", strconv.FormatInt(id, 10))
}

func (r *EtcdServiceRegistry) byHostKey(host, topic string) string {
	return path.Join(r.prefix, "by-host", host, topic)
}

func (r *EtcdServiceRegistry) aliveKey(id int64) string {
	return path.Join(r.prefix, "alive", strconv.FormatInt(id, 10))
}

// Create stores a new service and assigns its id. The (host, topic) pair
// must be unused.
func (r *EtcdServiceRegistry) Create(ctx context.Context, svc *objects.Service) (*objects.Service, error) {
	if svc.Host == "" || svc.Topic == "" {
		return nil, fmt.Errorf("service host and topic are required")
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		resp, err := r.client.Get(ctx, r.counterKey())
		if err != nil {
			return nil, fmt.Errorf("failed to read service id counter: %w", err)
		}

		next := int64(1)
		var rev int64
		if len(resp.Kvs) > 0 {
			rev = resp.Kvs[0].ModRevision
			next, err = strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt service id counter: %w", err)
			}
		}

		out := *svc
		out.ID = next
		now := time.Now().UTC()
		out.CreatedAt = now
		out.UpdatedAt = now
		data, err := json.Marshal(&out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal service: %w", err)
		}

		hostKey := r.byHostKey(svc.Host, svc.Topic)
		txn, err := r.client.Txn(ctx).
			If(
				clientv3.Compare(clientv3.ModRevision(r.counterKey()), "=", rev),
				clientv3.Compare(clientv3.CreateRevision(hostKey), "=", 0),
			).
			Then(
				clientv3.OpPut(r.counterKey(), strconv.FormatInt(next+1, 10)),
				clientv3.OpPut(r.byIDKey(next), string(data)),
				clientv3.OpPut(hostKey, strconv.FormatInt(next, 10)),
			).
			Commit()
		if err != nil {
			return nil, fmt.Errorf("failed to create service: %w", err)
		}
		if txn.Succeeded {
			r.logger.Info("Service created", "service_id", out.ID, "host", out.Host, "topic", out.Topic)
			r.cache.put(&out)
			return &out, nil
		}

		taken, err := r.client.Get(ctx, hostKey, clientv3.WithCountOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to check service host: %w", err)
		}
		if taken.Count > 0 {
			return nil, fmt.Errorf("%w: %s/%s", errHostTaken, svc.Host, svc.Topic)
		}
		r.logger.Debug("Service id allocation raced, retrying", "attempt", attempt+1)
	}
	return nil, fmt.Errorf("failed to allocate service id after %d attempts", maxTxnRetries)
}

// GetByID implements objects.ServiceLookup
func (r *EtcdServiceRegistry) GetByID(ctx context.Context, id int64) (*objects.Service, error) {
	if svc, ok := r.cache.get(idKey(id)); ok {
		return svc, nil
	}

	resp, err := r.client.Get(ctx, r.byIDKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get service %d from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, exception.ServiceNotFound(id)
	}

	var svc objects.Service
	if err := json.Unmarshal(resp.Kvs[0].Value, &svc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal service %d: %w", id, err)
	}
	r.cache.put(&svc)
	return &svc, nil
}

// GetByComputeHost implements objects.ServiceLookup: the compute topic
// service on host.
func (r *EtcdServiceRegistry) GetByComputeHost(ctx context.Context, host string) (*objects.Service, error) {
	return r.GetByHostAndTopic(ctx, host, ComputeTopic)
}

func (r *EtcdServiceRegistry) GetByHostAndTopic(ctx context.Context, host, topic string) (*objects.Service, error) {
	if svc, ok := r.cache.get(hostKey(host, topic)); ok {
		return svc, nil
	}

	resp, err := r.client.Get(ctx, r.byHostKey(host, topic))
	if err != nil {
		return nil, fmt.Errorf("failed to get service for host %s: %w", host, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, exception.ServiceHostNotFound(host)
	}
	id, err := strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt service index for host %s: %w", host, err)
	}

	svc, err := r.GetByID(ctx, id)
	if errors.Is(err, exception.ErrServiceNotFound) {
		return nil, exception.ServiceHostNotFound(host)
	}
	return svc, err
}

// List returns every service ordered by id
func (r *EtcdServiceRegistry) List(ctx context.Context) ([]*objects.Service, error) {
	resp, err := r.client.Get(ctx, path.Join(r.prefix, "by-id")+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	services := make([]*objects.Service, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var svc objects.Service
		if err := json.Unmarshal(kv.Value, &svc); err != nil {
			r.logger.Warn("Skipping unreadable service", "key", string(kv.Key), "error", err)
			continue
		}
		services = append(services, &svc)
	}
	sortServices(services)
	return services, nil
}

// Delete removes a service and its indexes
func (r *EtcdServiceRegistry) Delete(ctx context.Context, id int64) error {
	svc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.client.Txn(ctx).Then(
		clientv3.OpDelete(r.byIDKey(id)),
		clientv3.OpDelete(r.byHostKey(svc.Host, svc.Topic)),
		clientv3.OpDelete(r.aliveKey(id)),
	).Commit()
	if err != nil {
		return fmt.Errorf("failed to delete service %d: %w", id, err)
	}
	r.cache.invalidate(svc)
	r.logger.Info("Service deleted", "service_id", id, "host", svc.Host)
	return nil
}

// IsUp reports whether the service currently holds a live heartbeat lease
func (r *EtcdServiceRegistry) IsUp(ctx context.Context, id int64) (bool, error) {
	resp, err := r.client.Get(ctx, r.aliveKey(id), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("failed to check service %d: %w", id, err)
	}
	return resp.Count > 0, nil
}

func sortServices(s []*objects.Service) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].ID < s[j-1].ID; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
