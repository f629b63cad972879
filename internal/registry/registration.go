package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// ServiceRegistration announces a running service in etcd: the service
// record is created once and a leased heartbeat key marks it alive.
type ServiceRegistration struct {
	registry *EtcdServiceRegistry
	leaseID  clientv3.LeaseID
	service  *objects.Service
	logger   *logging.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServiceRegistration creates a registration for svc. Only Host,
// Binary and Topic need to be filled in.
func NewServiceRegistration(registry *EtcdServiceRegistry, svc objects.Service, logger *logging.Logger) *ServiceRegistration {
	return &ServiceRegistration{
		registry: registry,
		service:  &svc,
		logger:   logger,
	}
}

// Service returns the registered service, nil before Register
func (r *ServiceRegistration) Service() *objects.Service {
	if r.service.ID == 0 {
		return nil
	}
	return r.service
}

// Register finds or creates the service record and starts the heartbeat
func (r *ServiceRegistration) Register(ctx context.Context) error {
	r.logger.Info("Starting service registration", "host", r.service.Host, "topic", r.service.Topic)

	svc, err := r.registry.GetByHostAndTopic(ctx, r.service.Host, r.service.Topic)
	if errors.Is(err, exception.ErrServiceNotFound) {
		svc, err = r.registry.Create(ctx, r.service)
		if errors.Is(err, errHostTaken) {
			// another process created it between the two calls
			svc, err = r.registry.GetByHostAndTopic(ctx, r.service.Host, r.service.Topic)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to resolve service record: %w", err)
	}
	r.service = svc

	if err := r.grant(ctx); err != nil {
		return err
	}

	r.logger.Info("Service registered successfully",
		"service_id", svc.ID,
		"host", svc.Host,
		"binary", svc.Binary,
		"lease_id", int64(r.leaseID))

	kaCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.keepAlive(kaCtx)

	return nil
}

func (r *ServiceRegistration) grant(ctx context.Context) error {
	lease, err := r.registry.client.Grant(ctx, r.registry.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	r.leaseID = lease.ID

	_, err = r.registry.client.Put(ctx, r.registry.aliveKey(r.service.ID),
		time.Now().UTC().Format(time.RFC3339), clientv3.WithLease(r.leaseID))
	if err != nil {
		return fmt.Errorf("failed to register heartbeat: %w", err)
	}
	return nil
}

// keepAlive maintains the lease by sending heartbeats
func (r *ServiceRegistration) keepAlive(ctx context.Context) {
	defer close(r.done)

	for {
		ch, err := r.registry.client.KeepAlive(ctx, r.leaseID)
		if err != nil {
			r.logger.Error("Failed to start keep-alive", "error", err)
			return
		}

		if !r.drain(ctx, ch) {
			return
		}

		r.logger.Warn("Keep-alive channel closed, re-granting lease", "service_id", r.service.ID)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
		if err := r.grant(ctx); err != nil {
			r.logger.Error("Failed to re-register", "error", err)
			return
		}
	}
}

// drain consumes keep-alive responses until the channel closes (true) or
// ctx is done (false)
func (r *ServiceRegistration) drain(ctx context.Context, ch <-chan *clientv3.LeaseKeepAliveResponse) bool {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Keep-alive stopped (context done)")
			return false
		case ka, ok := <-ch:
			if !ok {
				return ctx.Err() == nil
			}
			if ka == nil {
				continue
			}
			r.logger.Debug("Heartbeat sent", "lease_id", int64(r.leaseID), "ttl", ka.TTL)
		}
	}
}

// Deregister stops the heartbeat and revokes the lease. The service
// record stays so nodes keep their owner.
func (r *ServiceRegistration) Deregister(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}
	if r.leaseID == 0 {
		return nil
	}

	if _, err := r.registry.client.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	r.leaseID = 0

	r.logger.Info("Service deregistered", "service_id", r.service.ID)
	return nil
}
