// Package agent runs on each compute host. It keeps the host's compute
// service registered and periodically writes the host's resource report
// to its compute node record.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// Registrar keeps the agent's service registered
type Registrar interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
	Service() *objects.Service
}

// Agent reports one compute node
type Agent struct {
	host      string
	nodename  string
	interval  time.Duration
	resources map[string]interface{}
	nodes     *objects.Nodes
	registrar Registrar
	logger    *logging.Logger
}

// New creates an agent for the configured host and nodename
func New(cfg config.AgentConfig, nodes *objects.Nodes, registrar Registrar, logger *logging.Logger) (*Agent, error) {
	host, err := cfg.ResolveHost()
	if err != nil {
		return nil, err
	}
	return &Agent{
		host:      host,
		nodename:  cfg.ResolveNodename(host),
		interval:  cfg.ReportInterval,
		resources: cfg.Resources,
		nodes:     nodes,
		registrar: registrar,
		logger:    logger.With("host", host),
	}, nil
}

// Run registers the service, reports immediately and then on every
// interval until ctx is done. The service is deregistered on return.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.registrar.Register(ctx); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.registrar.Deregister(dctx); err != nil {
			a.logger.Error("Failed to deregister service", "error", err)
		}
	}()

	a.logger.Info("Agent started", "nodename", a.nodename, "interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.Report(ctx); err != nil {
			a.logger.Error("Resource report failed", "error", err)
		}

		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Report resolves this host's compute node, creating it when missing, and
// saves the current resource report
func (a *Agent) Report(ctx context.Context) error {
	svc := a.registrar.Service()
	if svc == nil {
		return fmt.Errorf("service is not registered")
	}

	resources := a.report()

	n, err := a.nodes.GetByHostAndNodename(ctx, a.host, a.nodename)
	switch {
	case errors.Is(err, exception.ErrComputeHostNotFound):
		n = a.nodes.New()
		n.SetServiceID(svc.ID)
		n.SetHost(a.host)
		if err := n.UpdateFromVirtDriver(resources); err != nil {
			return err
		}
		if err := n.Create(ctx); err != nil {
			return fmt.Errorf("failed to create compute node: %w", err)
		}
		a.logger.Info("Compute node created", "node", n.String())
		return nil
	case err != nil:
		return fmt.Errorf("failed to resolve compute node: %w", err)
	}

	if err := n.UpdateFromVirtDriver(resources); err != nil {
		return err
	}
	if err := n.Save(ctx); err != nil {
		return fmt.Errorf("failed to save compute node: %w", err)
	}
	a.logger.Debug("Resource report saved", "node", n.String())
	return nil
}

// report is the configured static report with the identity fields and a
// vcpus fallback filled in
func (a *Agent) report() map[string]interface{} {
	out := make(map[string]interface{}, len(a.resources)+2)
	for k, v := range a.resources {
		out[k] = v
	}
	out["hypervisor_hostname"] = a.nodename
	if _, ok := out["vcpus"]; !ok {
		out["vcpus"] = runtime.NumCPU()
	}
	return out
}
