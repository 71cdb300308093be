// Package mapcache は観測地図用の派生インデックス（年別項目・樣站別年別項目）を管理します。
package mapcache

import (
	"context"
	"errors"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache は期限なしの key/value ストアです。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// FilterKey は年別項目インデックスのキーです。
func FilterKey() string {
	return "location_map_filter"
}

// LocationListKey は樣站一覧インデックスのキーです。空の条件は all になります。
func LocationListKey(year, item string) string {
	if year == "" {
		year = "all"
	}
	if item == "" {
		item = "all"
	}
	return fmt.Sprintf("location_map_list:%s:%s", year, item)
}

// RedisCache は Redis に保存します。複数プロセスで共有する場合に使います。
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache は redisURL に接続する RedisCache を作成します。
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache redis url: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set は期限なしで上書きします。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, key, value, 0).Err()
}

// Ping は接続を確認します。
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// MemoryCache はプロセス内のキャッシュです。単一プロセス構成とテスト用です。
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	data := v.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)
	m.c.Set(key, data, gocache.NoExpiration)
	return nil
}
