package handlers

import (
	"context"

	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// ServiceDirectory is the service registry as the API sees it
type ServiceDirectory interface {
	objects.ServiceLookup
	List(ctx context.Context) ([]*objects.Service, error)
	IsUp(ctx context.Context, id int64) (bool, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	logger   *logging.Logger
	nodes    *objects.Nodes
	services ServiceDirectory
}

// New creates a new handler instance
func New(logger *logging.Logger, nodes *objects.Nodes, services ServiceDirectory) *Handler {
	return &Handler{
		logger:   logger,
		nodes:    nodes,
		services: services,
	}
}
