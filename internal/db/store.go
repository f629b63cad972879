package db

import (
	"context"
	"fmt"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/logging"
)

// Store is the compute node persistence surface
type Store interface {
	NodeGet(ctx context.Context, id int64) (Record, error)
	NodeCreate(ctx context.Context, values Record) (Record, error)
	NodeUpdate(ctx context.Context, id int64, values Record) (Record, error)
	NodeDelete(ctx context.Context, id int64) error
	NodesGetByServiceID(ctx context.Context, serviceID int64) ([]Record, error)
	NodeGetByHostAndNodename(ctx context.Context, host, nodename string) (Record, error)
	NodesGetAll(ctx context.Context) ([]Record, error)
	NodesSearchByHypervisor(ctx context.Context, pattern string) ([]Record, error)
	NodesGetAllByHost(ctx context.Context, host string) ([]Record, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// New creates the store selected by cfg.Driver. The returned close func
// releases the store's resources.
func New(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		var opts []MemoryOption
		if cfg.LegacySchema {
			opts = append(opts, WithLegacySchema())
		}
		logger.Info("Using in-memory compute node store", "legacy_schema", cfg.LegacySchema)
		return NewMemoryStore(opts...), func() {}, nil

	case "postgres", "":
		s, err := Open(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, nil, err
			}
			logger.Info("Database schema migrated")
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
