package subsearch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"streamplayer/internal/mediaserver"
)

const redisCachePrefix = "player:subs:"

// RedisCacheBackend stores subtitle search results in Redis with JSON
// serialization.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) ([]mediaserver.RemoteSubtitle, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var results []mediaserver.RemoteSubtitle
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, results []mediaserver.RemoteSubtitle, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
