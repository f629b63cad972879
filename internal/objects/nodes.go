package objects

import (
	"context"
	"errors"

	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
)

// Nodes resolves compute nodes from the store. Lookups by host tolerate
// stores that predate the host column by going through the owning
// service instead.
type Nodes struct {
	store    db.Store
	services ServiceLookup
	notifier Notifier
	logger   *logging.Logger
}

// Option configures Nodes
type Option func(*Nodes)

// WithNotifier publishes create/update/delete events to notifier
func WithNotifier(notifier Notifier) Option {
	return func(r *Nodes) { r.notifier = notifier }
}

func WithLogger(logger *logging.Logger) Option {
	return func(r *Nodes) { r.logger = logger }
}

// NewNodes creates a resolver over store and services
func NewNodes(store db.Store, services ServiceLookup, opts ...Option) *Nodes {
	r := &Nodes{
		store:    store,
		services: services,
		logger:   logging.Global(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// New returns an empty node bound to this resolver's store
func (r *Nodes) New() *ComputeNode {
	n := NewComputeNode()
	n.nodes = r
	return n
}

func (r *Nodes) GetByID(ctx context.Context, id int64) (*ComputeNode, error) {
	rec, err := r.store.NodeGet(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, rec)
}

// GetByServiceID returns the first node the service owns
func (r *Nodes) GetByServiceID(ctx context.Context, serviceID int64) (*ComputeNode, error) {
	recs, err := r.store.NodesGetByServiceID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, exception.ServiceNotFound(serviceID)
	}
	return r.load(ctx, recs[0])
}

// lookupResult is the outcome of a direct host-keyed lookup: either a
// record, or the host-not-found case that old stores always produce.
type lookupResult struct {
	record       db.Record
	hostNotFound bool
}

func (r *Nodes) lookupByHostAndNodename(ctx context.Context, host, nodename string) (lookupResult, error) {
	rec, err := r.store.NodeGetByHostAndNodename(ctx, host, nodename)
	switch {
	case err == nil:
		return lookupResult{record: rec}, nil
	case errors.Is(err, exception.ErrComputeHostNotFound):
		return lookupResult{hostNotFound: true}, nil
	default:
		return lookupResult{}, err
	}
}

// GetByHostAndNodename returns the node named nodename on host
func (r *Nodes) GetByHostAndNodename(ctx context.Context, host, nodename string) (*ComputeNode, error) {
	res, err := r.lookupByHostAndNodename(ctx, host, nodename)
	if err != nil {
		return nil, err
	}
	if !res.hostNotFound {
		return r.load(ctx, res.record)
	}
	return r.legacyByHostAndNodename(ctx, host, nodename)
}

// legacyByHostAndNodename loads the nodes of the service running on host
// and returns the first whose hypervisor_hostname matches exactly.
func (r *Nodes) legacyByHostAndNodename(ctx context.Context, host, nodename string) (*ComputeNode, error) {
	r.logger.Debug("Falling back to service lookup for compute node",
		"host", host, "nodename", nodename)

	svc, recs, err := r.serviceNodes(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		n, err := r.load(ctx, withHost(rec, svc))
		if err != nil {
			return nil, err
		}
		if name, ok := n.HypervisorHostname(); ok && name == nodename {
			return n, nil
		}
	}
	return nil, exception.ComputeHostNotFound(host)
}

// serviceNodes returns the compute service on host and the records it
// owns. A missing service surfaces as host-not-found.
func (r *Nodes) serviceNodes(ctx context.Context, host string) (*Service, []db.Record, error) {
	if r.services == nil {
		return nil, nil, exception.ComputeHostNotFound(host)
	}
	svc, err := r.services.GetByComputeHost(ctx, host)
	if errors.Is(err, exception.ErrServiceNotFound) {
		return nil, nil, exception.ComputeHostNotFound(host)
	}
	if err != nil {
		return nil, nil, err
	}
	recs, err := r.store.NodesGetByServiceID(ctx, svc.ID)
	if errors.Is(err, exception.ErrServiceNotFound) {
		return nil, nil, exception.ComputeHostNotFound(host)
	}
	if err != nil {
		return nil, nil, err
	}
	return svc, recs, nil
}

// GetFirstNodeByHostForOldCompat returns the first node on host
func (r *Nodes) GetFirstNodeByHostForOldCompat(ctx context.Context, host string) (*ComputeNode, error) {
	list, err := r.GetAllByHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if list.Len() == 0 {
		return nil, exception.ComputeHostNotFound(host)
	}
	return list.Index(0), nil
}

func (r *Nodes) notify(ctx context.Context, event string, n *ComputeNode) {
	if r.notifier == nil {
		return
	}
	p, err := n.ToPrimitive()
	if err != nil {
		r.logger.Error("Failed to render compute node event", "event", event, "error", err)
		return
	}
	if err := r.notifier.Notify(ctx, event, p); err != nil {
		r.logger.Warn("Failed to publish compute node event", "event", event, "node", n.String(), "error", err)
	}
}
