package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automatpos/backend/internal/domain"
)

func TestLookupKeyTrimsBarcode(t *testing.T) {
	assert.Equal(t, "automatpos:lookup:4000000000011", lookupKey(" 4000000000011\n"))
}

func TestNoopLookupCacheAlwaysMisses(t *testing.T) {
	var c LookupCache = NoopLookupCache{}
	require.NoError(t, c.Set(context.Background(), "1", &domain.LookupProduct{}, time.Minute))

	got, ok, err := c.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRedisSetSkipsEmptyValues(t *testing.T) {
	// Nothing listens here; both calls must return before dialing.
	c := NewRedisLookupCache("127.0.0.1:1", "", 0)
	t.Cleanup(func() { _ = c.Close() })

	assert.NoError(t, c.Set(context.Background(), "1", nil, time.Minute))
	assert.NoError(t, c.Set(context.Background(), "1", &domain.LookupProduct{}, 0))
}
