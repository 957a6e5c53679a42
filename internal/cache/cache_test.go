package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCacheSuite 对任意缓存实现跑一组通用断言
func runCacheSuite(t *testing.T, c Cache) {
	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, c.Set("answer:1", "向量数据库是存储向量的数据库。", time.Minute))

		value, found, err := c.Get("answer:1")
		require.NoError(t, err)
		assert.True(t, found, "Stored value should be found")
		assert.Equal(t, "向量数据库是存储向量的数据库。", value)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, found, err := c.Get("no-such-key")
		require.NoError(t, err)
		assert.False(t, found, "Missing key should report not found")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, c.Set("to-delete", "value", time.Minute))
		require.NoError(t, c.Delete("to-delete"))

		_, found, err := c.Get("to-delete")
		require.NoError(t, err)
		assert.False(t, found, "Deleted key should not be found")
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, c.Set("k1", "v1", time.Minute))
		require.NoError(t, c.Set("k2", "v2", time.Minute))
		require.NoError(t, c.Clear())

		_, found, err := c.Get("k1")
		require.NoError(t, err)
		assert.False(t, found, "Cache should be empty after clear")
	})
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(DefaultConfig())
	require.NoError(t, err, "Memory cache creation should succeed")

	runCacheSuite(t, c)
}

func TestMemoryCache_Expiration(t *testing.T) {
	c, err := NewMemoryCache(Config{
		DefaultTTL:      50 * time.Millisecond,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, c.Set("short-lived", "value", 50*time.Millisecond))
	time.Sleep(80 * time.Millisecond)

	_, found, err := c.Get("short-lived")
	require.NoError(t, err)
	assert.False(t, found, "Expired entry should not be found")
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(Config{
		Type:      "redis",
		RedisAddr: mr.Addr(),
	})
	require.NoError(t, err, "Redis cache creation should succeed")

	runCacheSuite(t, c)
}

func TestRedisCache_Expiration(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)

	require.NoError(t, c.Set("short-lived", "value", time.Second))

	// miniredis需要手动推进时间触发过期
	mr.FastForward(2 * time.Second)

	_, found, err := c.Get("short-lived")
	require.NoError(t, err)
	assert.False(t, found, "Expired entry should not be found")
}

func TestNewCache_Registry(t *testing.T) {
	c, err := NewCache(Config{Type: "memory"})
	require.NoError(t, err)
	_, ok := c.(*MemoryCache)
	assert.True(t, ok)

	// 未注册类型回退到内存缓存
	c, err = NewCache(Config{Type: "unknown"})
	require.NoError(t, err)
	_, ok = c.(*MemoryCache)
	assert.True(t, ok, "Unknown cache type should fall back to memory")
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "qa", GenerateCacheKey("qa"))
	assert.Equal(t, "qa:session-1:question", GenerateCacheKey("qa", "session-1", "question"))
}

func TestHashedKey(t *testing.T) {
	k1 := HashedKey("qa", "什么是向量数据库？")
	k2 := HashedKey("qa", "什么是向量数据库？")
	k3 := HashedKey("qa", "另一个问题")

	assert.Equal(t, k1, k2, "Same content should hash to the same key")
	assert.NotEqual(t, k1, k3, "Different content should hash to different keys")
	assert.Contains(t, k1, "qa:", "Key should keep its prefix")

	// 多部分拼接不应产生歧义
	assert.NotEqual(t, HashedKey("qa", "ab", "c"), HashedKey("qa", "a", "bc"))
}
