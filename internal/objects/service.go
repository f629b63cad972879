package objects

import (
	"context"
	"time"
)

// Service is the compute service that owns compute nodes
type Service struct {
	ID             int64     `json:"id"`
	Host           string    `json:"host"`
	Binary         string    `json:"binary"`
	Topic          string    `json:"topic"`
	Disabled       bool      `json:"disabled"`
	DisabledReason string    `json:"disabled_reason,omitempty"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ServiceLookup resolves services. Both methods return a SERVICE_NOT_FOUND
// error when nothing matches.
type ServiceLookup interface {
	GetByID(ctx context.Context, id int64) (*Service, error)
	GetByComputeHost(ctx context.Context, host string) (*Service, error)
}

// Notifier receives compute node change events
type Notifier interface {
	Notify(ctx context.Context, event string, payload interface{}) error
}

// Compute node change events
const (
	EventCreate = "compute_node.create"
	EventUpdate = "compute_node.update"
	EventDelete = "compute_node.delete"
)
