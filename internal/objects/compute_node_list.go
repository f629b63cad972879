package objects

import (
	"context"
	"errors"

	"github.com/nodeledger/nodeledger/internal/db"
	"github.com/nodeledger/nodeledger/internal/exception"
)

const computeNodeListName = "ComputeNodeList"

// ComputeNodeList holds the nodes of one query in store order
type ComputeNodeList struct {
	Objects []*ComputeNode
}

func (l *ComputeNodeList) Len() int { return len(l.Objects) }

func (l *ComputeNodeList) Index(i int) *ComputeNode { return l.Objects[i] }

// ToPrimitiveAt renders every node at target
func (l *ComputeNodeList) ToPrimitiveAt(target Version) (Primitive, error) {
	objs := make([]interface{}, len(l.Objects))
	for i, n := range l.Objects {
		p, err := n.ToPrimitiveAt(target)
		if err != nil {
			return Primitive{}, err
		}
		objs[i] = p
	}
	return Primitive{
		Name:      computeNodeListName,
		Namespace: objectNamespace,
		Version:   target.String(),
		Data:      map[string]interface{}{"objects": objs},
	}, nil
}

func (r *Nodes) loadList(ctx context.Context, recs []db.Record) (*ComputeNodeList, error) {
	l := &ComputeNodeList{Objects: make([]*ComputeNode, 0, len(recs))}
	for _, rec := range recs {
		n, err := r.load(ctx, rec)
		if err != nil {
			return nil, err
		}
		l.Objects = append(l.Objects, n)
	}
	return l, nil
}

func (r *Nodes) GetAll(ctx context.Context) (*ComputeNodeList, error) {
	recs, err := r.store.NodesGetAll(ctx)
	if err != nil {
		return nil, err
	}
	return r.loadList(ctx, recs)
}

// GetByHypervisor returns the nodes whose hypervisor_hostname contains
// pattern
func (r *Nodes) GetByHypervisor(ctx context.Context, pattern string) (*ComputeNodeList, error) {
	recs, err := r.store.NodesSearchByHypervisor(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return r.loadList(ctx, recs)
}

func (r *Nodes) GetByService(ctx context.Context, svc *Service) (*ComputeNodeList, error) {
	recs, err := r.store.NodesGetByServiceID(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	return r.loadList(ctx, recs)
}

// GetAllByHost returns every node on host. On a store without the host
// column the nodes of the compute service running on host are returned,
// with host filled in.
func (r *Nodes) GetAllByHost(ctx context.Context, host string) (*ComputeNodeList, error) {
	recs, err := r.store.NodesGetAllByHost(ctx, host)
	if err == nil {
		return r.loadList(ctx, recs)
	}
	if !errors.Is(err, exception.ErrComputeHostNotFound) {
		return nil, err
	}

	r.logger.Debug("Falling back to service lookup for host nodes", "host", host)
	svc, recs, err := r.serviceNodes(ctx, host)
	if err != nil {
		return nil, err
	}
	withHosts := make([]db.Record, len(recs))
	for i, rec := range recs {
		withHosts[i] = withHost(rec, svc)
	}
	return r.loadList(ctx, withHosts)
}
