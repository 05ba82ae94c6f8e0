package credential

import (
	"context"
	"sync"
	"time"

	"crm_syncer/internal/domain"
)

// Cache stores access credentials keyed by tenant.
type Cache interface {
	Get(ctx context.Context, key string) (domain.Credential, bool, error)
	Set(ctx context.Context, key string, cred domain.Credential, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memItem struct {
	cred    domain.Credential
	expires time.Time
}

// MemoryCache keeps credentials for the lifetime of the process that owns it.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]memItem{}, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (domain.Credential, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return domain.Credential{}, false, nil
	}
	if !c.now().Before(it.expires) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return domain.Credential{}, false, nil
	}
	return it.cred, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, cred domain.Credential, ttl time.Duration) error {
	c.mu.Lock()
	c.items[key] = memItem{cred: cred, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Close drops every cached credential.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.items = map[string]memItem{}
	c.mu.Unlock()
	return nil
}
