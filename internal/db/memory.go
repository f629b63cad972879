package db

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nodeledger/nodeledger/internal/exception"
)

// MemoryStore implements the compute node store in memory.
// This is useful for testing and development without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Record
	nextID  int64
	legacy  bool
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithLegacySchema makes the store behave like a database that predates
// the host column: host is never stored and host-keyed lookups cannot
// match anything.
func WithLegacySchema() MemoryOption {
	return func(s *MemoryStore) { s.legacy = true }
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[int64]Record),
		nextID:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts a record verbatim, keeping its id if it has one. It is
// meant for fixtures that need rows a normal create could not produce,
// such as rows written before the host column existed.
func (s *MemoryStore) Seed(rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := rec.Clone()
	id, ok := r["id"].(int64)
	if !ok {
		id = s.nextID
		r["id"] = id
	}
	if id >= s.nextID {
		s.nextID = id + 1
	}
	if _, ok := r["deleted"]; !ok {
		r["deleted"] = false
	}
	if s.legacy {
		delete(r, "host")
	}
	s.records[id] = r
	return r.Clone()
}

func (s *MemoryStore) NodeGet(ctx context.Context, id int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.live(id)
	if !ok {
		return nil, exception.ComputeNodeNotFound(id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) NodeCreate(ctx context.Context, values Record) (Record, error) {
	if _, err := writableColumns(values); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := values.Clone()
	if s.legacy {
		delete(r, "host")
	}
	id := s.nextID
	s.nextID++
	r["id"] = id
	r["created_at"] = now()
	r["deleted"] = false
	s.records[id] = r
	return r.Clone(), nil
}

func (s *MemoryStore) NodeUpdate(ctx context.Context, id int64, values Record) (Record, error) {
	if _, err := writableColumns(values); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.live(id)
	if !ok {
		return nil, exception.ComputeNodeNotFound(id)
	}
	for k, v := range values {
		if s.legacy && k == "host" {
			continue
		}
		r[k] = v
	}
	r["updated_at"] = now()
	return r.Clone(), nil
}

// NodeDelete soft-deletes the record
func (s *MemoryStore) NodeDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.live(id)
	if !ok {
		return exception.ComputeNodeNotFound(id)
	}
	r["deleted"] = true
	r["deleted_at"] = now()
	return nil
}

func (s *MemoryStore) NodesGetByServiceID(ctx context.Context, serviceID int64) ([]Record, error) {
	out := s.filter(func(r Record) bool {
		v, ok := r["service_id"].(int64)
		return ok && v == serviceID
	})
	if len(out) == 0 {
		return nil, exception.ServiceNotFound(serviceID)
	}
	return out, nil
}

func (s *MemoryStore) NodeGetByHostAndNodename(ctx context.Context, host, nodename string) (Record, error) {
	out := s.filter(func(r Record) bool {
		return s.hostMatches(r, host) && r["hypervisor_hostname"] == nodename
	})
	if len(out) == 0 {
		return nil, exception.ComputeHostNotFound(host)
	}
	return out[0], nil
}

func (s *MemoryStore) NodesGetAll(ctx context.Context) ([]Record, error) {
	return s.filter(func(Record) bool { return true }), nil
}

// NodesSearchByHypervisor matches hypervisor_hostname by substring, like
// the SQL LIKE '%pattern%' of the postgres store.
func (s *MemoryStore) NodesSearchByHypervisor(ctx context.Context, pattern string) ([]Record, error) {
	return s.filter(func(r Record) bool {
		name, _ := r["hypervisor_hostname"].(string)
		return strings.Contains(name, pattern)
	}), nil
}

func (s *MemoryStore) NodesGetAllByHost(ctx context.Context, host string) ([]Record, error) {
	out := s.filter(func(r Record) bool { return s.hostMatches(r, host) })
	if len(out) == 0 {
		return nil, exception.ComputeHostNotFound(host)
	}
	return out, nil
}

// Len returns the number of live records
func (s *MemoryStore) Len() int {
	return len(s.filter(func(Record) bool { return true }))
}

func (s *MemoryStore) hostMatches(r Record, host string) bool {
	if s.legacy {
		return false
	}
	v, ok := r["host"].(string)
	return ok && v == host
}

// live must be called with the lock held
func (s *MemoryStore) live(id int64) (Record, bool) {
	r, ok := s.records[id]
	if !ok || r["deleted"] == true {
		return nil, false
	}
	return r, true
}

// filter returns clones of live records matching keep, ordered by id
func (s *MemoryStore) filter(keep func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Record, 0)
	for _, id := range ids {
		r, ok := s.live(id)
		if ok && keep(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}
