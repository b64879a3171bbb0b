package inmemory

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	identitydomain "partner-sync-go/internal/domain/identity"
)

// InMemoryPrincipalCache keeps resolved bearer tokens for a short TTL so the
// identity service is not called on every request. Tokens are stored hashed.
type InMemoryPrincipalCache struct {
	mu    sync.RWMutex
	items map[string]principalItem
	now   func() time.Time
}

type principalItem struct {
	value     identitydomain.Principal
	expiresAt time.Time
}

func NewInMemoryPrincipalCache() *InMemoryPrincipalCache {
	return &InMemoryPrincipalCache{
		items: make(map[string]principalItem),
		now:   time.Now,
	}
}

func (c *InMemoryPrincipalCache) GetByToken(token string) (*identitydomain.Principal, bool) {
	key := tokenKey(token)
	now := c.now()

	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !item.expiresAt.After(now) {
		c.mu.Lock()
		item, ok = c.items[key]
		if ok && !item.expiresAt.After(now) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	value := item.value
	return &value, true
}

func (c *InMemoryPrincipalCache) SetByToken(token string, principal *identitydomain.Principal, ttl time.Duration) {
	if principal == nil || ttl <= 0 {
		c.DeleteByToken(token)
		return
	}

	c.mu.Lock()
	c.items[tokenKey(token)] = principalItem{
		value:     *principal,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

func (c *InMemoryPrincipalCache) DeleteByToken(token string) {
	c.mu.Lock()
	delete(c.items, tokenKey(token))
	c.mu.Unlock()
}

func (c *InMemoryPrincipalCache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]principalItem)
	c.mu.Unlock()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
