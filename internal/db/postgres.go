package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
)

// pgUndefinedColumn is SQLSTATE 42703
const pgUndefinedColumn = "42703"

// PostgresStore implements the compute node store on PostgreSQL
type PostgresStore struct {
	pool    *pgxpool.Pool
	logger  *logging.Logger
	hasHost atomic.Bool
}

// Open connects to PostgreSQL and detects whether compute_nodes already
// has the host column.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.Schema != "" {
		poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.Schema
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.detectHostColumn(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Migrate creates or upgrades the compute_nodes table. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate compute_nodes: %w", err)
	}
	return s.detectHostColumn(ctx)
}

// HasHostColumn reports whether the table carries the host column
func (s *PostgresStore) HasHostColumn() bool {
	return s.hasHost.Load()
}

func (s *PostgresStore) detectHostColumn(ctx context.Context) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, hostColumnQuery).Scan(&exists); err != nil {
		return fmt.Errorf("failed to inspect compute_nodes: %w", err)
	}
	s.hasHost.Store(exists)
	if !exists {
		s.logger.Warn("compute_nodes has no host column, host lookups will use the service fallback")
	}
	return nil
}

func (s *PostgresStore) NodeGet(ctx context.Context, id int64) (Record, error) {
	rec, err := s.queryOne(ctx,
		`SELECT * FROM compute_nodes WHERE id = $1 AND deleted = false`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, exception.ComputeNodeNotFound(id)
	}
	return rec, err
}

func (s *PostgresStore) NodeCreate(ctx context.Context, values Record) (Record, error) {
	values = s.dropHostIfLegacy(values)
	cols, err := writableColumns(values)
	if err != nil {
		return nil, err
	}

	if len(cols) == 0 {
		return s.queryOne(ctx, `INSERT INTO compute_nodes DEFAULT VALUES RETURNING *`)
	}

	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
	}
	sql := fmt.Sprintf(`INSERT INTO compute_nodes (%s) VALUES (%s) RETURNING *`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	rec, err := s.queryOne(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute node: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) NodeUpdate(ctx context.Context, id int64, values Record) (Record, error) {
	values = s.dropHostIfLegacy(values)
	cols, err := writableColumns(values)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		args = append(args, values[c])
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	sql := fmt.Sprintf(`UPDATE compute_nodes SET %s WHERE id = $%d AND deleted = false RETURNING *`,
		strings.Join(sets, ", "), len(args))

	rec, err := s.queryOne(ctx, sql, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, exception.ComputeNodeNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update compute node %d: %w", id, err)
	}
	return rec, nil
}

// NodeDelete soft-deletes the record
func (s *PostgresStore) NodeDelete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE compute_nodes SET deleted = true, deleted_at = now() WHERE id = $1 AND deleted = false`, id)
	if err != nil {
		return fmt.Errorf("failed to delete compute node %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return exception.ComputeNodeNotFound(id)
	}
	return nil
}

func (s *PostgresStore) NodesGetByServiceID(ctx context.Context, serviceID int64) ([]Record, error) {
	recs, err := s.queryAll(ctx,
		`SELECT * FROM compute_nodes WHERE service_id = $1 AND deleted = false ORDER BY id`, serviceID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, exception.ServiceNotFound(serviceID)
	}
	return recs, nil
}

func (s *PostgresStore) NodeGetByHostAndNodename(ctx context.Context, host, nodename string) (Record, error) {
	if !s.HasHostColumn() {
		return nil, exception.ComputeHostNotFound(host)
	}
	rec, err := s.queryOne(ctx,
		`SELECT * FROM compute_nodes
		 WHERE host = $1 AND hypervisor_hostname = $2 AND deleted = false
		 ORDER BY id LIMIT 1`, host, nodename)
	if errors.Is(err, pgx.ErrNoRows) || isUndefinedColumn(err) {
		return nil, exception.ComputeHostNotFound(host)
	}
	return rec, err
}

func (s *PostgresStore) NodesGetAll(ctx context.Context) ([]Record, error) {
	return s.queryAll(ctx, `SELECT * FROM compute_nodes WHERE deleted = false ORDER BY id`)
}

func (s *PostgresStore) NodesSearchByHypervisor(ctx context.Context, pattern string) ([]Record, error) {
	return s.queryAll(ctx,
		`SELECT * FROM compute_nodes
		 WHERE hypervisor_hostname LIKE '%' || $1 || '%' AND deleted = false
		 ORDER BY id`, pattern)
}

func (s *PostgresStore) NodesGetAllByHost(ctx context.Context, host string) ([]Record, error) {
	if !s.HasHostColumn() {
		return nil, exception.ComputeHostNotFound(host)
	}
	recs, err := s.queryAll(ctx,
		`SELECT * FROM compute_nodes WHERE host = $1 AND deleted = false ORDER BY id`, host)
	if isUndefinedColumn(err) {
		return nil, exception.ComputeHostNotFound(host)
	}
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, exception.ComputeHostNotFound(host)
	}
	return recs, nil
}

func (s *PostgresStore) dropHostIfLegacy(values Record) Record {
	if s.HasHostColumn() {
		return values
	}
	if _, ok := values["host"]; !ok {
		return values
	}
	s.logger.Debug("Dropping host from write, compute_nodes predates the column")
	out := values.Clone()
	delete(out, "host")
	return out
}

func (s *PostgresStore) queryOne(ctx context.Context, sql string, args ...interface{}) (Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	return Record(m), nil
}

func (s *PostgresStore) queryAll(ctx context.Context, sql string, args ...interface{}) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(maps))
	for i, m := range maps {
		out[i] = Record(m)
	}
	return out, nil
}

func isUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedColumn
}
