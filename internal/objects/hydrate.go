package objects

import (
	"context"

	"github.com/nodeledger/nodeledger/internal/db"
)

// hydrate replaces the field values of n with the contents of rec and
// clears its pending changes. Columns that are missing or NULL leave the
// field unset. A conversion failure is returned as soon as it happens; the
// fields loaded before it stay loaded.
//
// Records written before the host column existed carry no host. It is then
// taken from the owning service; when that service is gone the load fails
// with SERVICE_NOT_FOUND.
func (r *Nodes) hydrate(ctx context.Context, n *ComputeNode, rec db.Record) error {
	n.nodes = r
	n.values = make(map[string]interface{}, len(rec))
	n.changed = make(map[string]struct{})

	for _, f := range computeNodeSchema.fields {
		raw, ok := rec[f.ColumnName()]
		if !ok || raw == nil {
			continue
		}
		val, err := f.coerce(raw)
		if err != nil {
			return err
		}
		n.values[f.Name] = val
	}

	if !n.IsSet("host") {
		if err := r.deriveHost(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (r *Nodes) deriveHost(ctx context.Context, n *ComputeNode) error {
	sid, ok := n.ServiceID()
	if !ok || r.services == nil {
		return nil
	}
	svc, err := r.services.GetByID(ctx, sid)
	if err != nil {
		return err
	}
	n.values["host"] = svc.Host
	if n.service == nil {
		n.service = svc
	}
	return nil
}

// load builds a bound node from a store record
func (r *Nodes) load(ctx context.Context, rec db.Record) (*ComputeNode, error) {
	n := r.New()
	if err := r.hydrate(ctx, n, rec); err != nil {
		return nil, err
	}
	return n, nil
}

// withHost returns rec with host filled from the service when it has none
func withHost(rec db.Record, svc *Service) db.Record {
	if rec.Has("host") {
		return rec
	}
	out := rec.Clone()
	out["host"] = svc.Host
	return out
}
