package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	prev := client
	SetClient(c)
	t.Cleanup(func() {
		_ = c.Close()
		SetClient(prev)
	})
	return mr
}

func TestLimiterStorage(t *testing.T) {
	mr := useMiniredis(t)

	storage := LimiterStorage(2)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })

	require.NoError(t, storage.Set("hits", []byte("1"), time.Minute))
	v, err := storage.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	mr.Select(2)
	assert.True(t, mr.Exists("hits"))
}

func TestLimiterStorage_CacheDown(t *testing.T) {
	mr := useMiniredis(t)
	mr.Close()
	assert.Nil(t, LimiterStorage(2))
}

func TestPing(t *testing.T) {
	mr := useMiniredis(t)
	assert.NoError(t, Ping(context.Background()))

	mr.Close()
	assert.Error(t, Ping(context.Background()))
}
