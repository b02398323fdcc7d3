package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "chartpulse"
	redisOpTimeout = 2 * time.Second
	redisScanCount = 200
)

// redisStore is the shared-blob alternative to the disk store. Expiry is
// delegated to redis TTLs, so sweep and size-cap passes are no-ops here.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(addr string, db int) *redisStore {
	return &redisStore{client: redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})}
}

// newRedisStoreWithClient wires an existing client, used by tests.
func newRedisStoreWithClient(client *redis.Client) *redisStore {
	return &redisStore{client: client}
}

func (r *redisStore) key(bucket Bucket, key string) string {
	return redisKeyPrefix + ":" + string(bucket) + ":" + key
}

func (r *redisStore) Get(bucket Bucket, key string, _ time.Duration) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	payload, err := r.client.Get(ctx, r.key(bucket, key)).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (r *redisStore) Set(bucket Bucket, key string, payload []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	return r.client.Set(ctx, r.key(bucket, key), payload, ttl).Err()
}

func (r *redisStore) Delete(bucket Bucket, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_ = r.client.Del(ctx, r.key(bucket, key)).Err()
}

func (r *redisStore) SweepExpired(Bucket, time.Duration) int { return 0 }

func (r *redisStore) EnforceSizeCap(int64) int { return 0 }

func (r *redisStore) Stats() BlobStats {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var stats BlobStats
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+":*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		stats.Files++
		if n, err := r.client.StrLen(ctx, iter.Val()).Result(); err == nil {
			stats.SizeBytes += n
		}
	}
	return stats
}

func (r *redisStore) ClearAll() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	removed := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+":*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		if r.client.Del(ctx, iter.Val()).Err() == nil {
			removed++
		}
	}
	return removed
}

func (r *redisStore) Close() error { return r.client.Close() }
