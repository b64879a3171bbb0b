package inmemory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitydomain "partner-sync-go/internal/domain/identity"
)

func TestPrincipalCacheExpires(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewInMemoryPrincipalCache()
	cache.now = func() time.Time { return now }

	cache.SetByToken("token-1", &identitydomain.Principal{PartnerID: "partner-1", DeviceID: "device-a"}, time.Minute)

	principal, ok := cache.GetByToken("token-1")
	require.True(t, ok)
	assert.Equal(t, "partner-1", principal.PartnerID)

	_, ok = cache.GetByToken("token-2")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	_, ok = cache.GetByToken("token-1")
	assert.False(t, ok, "entry must expire at its deadline")
}

func TestPrincipalCacheStoresCopiesAndHashedKeys(t *testing.T) {
	cache := NewInMemoryPrincipalCache()

	principal := &identitydomain.Principal{PartnerID: "partner-1"}
	cache.SetByToken("secret-token", principal, time.Minute)
	principal.PartnerID = "changed"

	got, ok := cache.GetByToken("secret-token")
	require.True(t, ok)
	assert.Equal(t, "partner-1", got.PartnerID)

	for key := range cache.items {
		assert.NotContains(t, key, "secret-token")
	}

	cache.SetByToken("secret-token", nil, time.Minute)
	_, ok = cache.GetByToken("secret-token")
	assert.False(t, ok, "nil principal deletes the entry")

	cache.SetByToken("a", &identitydomain.Principal{PartnerID: "p"}, time.Minute)
	cache.Clear()
	_, ok = cache.GetByToken("a")
	assert.False(t, ok)
}
