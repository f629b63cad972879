package registry

import (
	"strconv"
	"sync"
	"time"

	"github.com/nodeledger/nodeledger/internal/objects"
)

type cacheEntry struct {
	service   objects.Service
	expiresAt time.Time
}

// serviceCache keeps recently read services by id and by host/topic so
// repeated node lookups do not hit etcd every time.
type serviceCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	stopCh  chan struct{}
	once    sync.Once
}

func newServiceCache(ttl time.Duration) *serviceCache {
	c := &serviceCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	if ttl > 0 {
		go c.cleanup()
	}
	return c
}

func idKey(id int64) string { return "id/" + strconv.FormatInt(id, 10) }

func hostKey(host, topic string) string { return "host/" + host + "/" + topic }

func (c *serviceCache) get(key string) (*objects.Service, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	svc := e.service
	return &svc, true
}

func (c *serviceCache) put(svc *objects.Service) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &cacheEntry{service: *svc, expiresAt: time.Now().Add(c.ttl)}
	c.entries[idKey(svc.ID)] = e
	c.entries[hostKey(svc.Host, svc.Topic)] = e
}

func (c *serviceCache) invalidate(svc *objects.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, idKey(svc.ID))
	delete(c.entries, hostKey(svc.Host, svc.Topic))
}

func (c *serviceCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cleanup periodically removes expired entries
func (c *serviceCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

func (c *serviceCache) stop() {
	c.once.Do(func() { close(c.stopCh) })
}
