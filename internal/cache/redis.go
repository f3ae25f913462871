package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "regdesk:cache:"

// getAndTouch increments hit_count and returns the hash only if the key
// exists. HINCRBY alone would recreate an evicted key.
var getAndTouch = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return nil
end
redis.call("HINCRBY", KEYS[1], "hit_count", 1)
return redis.call("HGETALL", KEYS[1])
`)

// RedisStore keeps entries as Redis hashes that expire with the entry.
// Expiry is native, so DeleteExpired has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix uses the default.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(hash string) string {
	return s.prefix + hash
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) (*domain.CacheEntry, error) {
	res, err := getAndTouch.Run(ctx, s.client, []string{s.key(key)}).StringSlice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}

	entry, err := entryFromHash(key, fields)
	if err != nil {
		return nil, err
	}
	// Clocks may differ between Redis and this process.
	if entry.IsExpired(now) {
		return nil, nil
	}
	return entry, nil
}

func (s *RedisStore) Set(ctx context.Context, entry domain.CacheEntry) error {
	filters := ""
	if len(entry.Filters) > 0 {
		raw, err := json.Marshal(entry.Filters)
		if err != nil {
			return err
		}
		filters = string(raw)
	}

	k := s.key(entry.QueryHash)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"query", entry.Query,
			"filters", filters,
			"results", string(entry.Results),
			"created_at", entry.CreatedAt.Format(time.RFC3339Nano),
			"expires_at", entry.ExpiresAt.Format(time.RFC3339Nano),
			"hit_count", 0,
		)
		pipe.PExpireAt(ctx, k, entry.ExpiresAt)
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Stats scans every cache key. Expired entries are already gone, so
// Expired is always zero.
func (s *RedisStore) Stats(ctx context.Context, now time.Time) (domain.CacheStats, error) {
	var stats domain.CacheStats

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		hits, err := s.client.HGet(ctx, iter.Val(), "hit_count").Int64()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return domain.CacheStats{}, err
		}
		stats.Entries++
		stats.TotalHits += hits
	}
	if err := iter.Err(); err != nil {
		return domain.CacheStats{}, err
	}
	return stats, nil
}

func entryFromHash(key string, fields map[string]string) (*domain.CacheEntry, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}
	hits, err := strconv.ParseInt(fields["hit_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode hit_count: %w", err)
	}

	entry := &domain.CacheEntry{
		QueryHash: key,
		Query:     fields["query"],
		Results:   json.RawMessage(fields["results"]),
		CreatedAt: createdAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
		HitCount:  hits,
	}
	if f := fields["filters"]; f != "" {
		if err := json.Unmarshal([]byte(f), &entry.Filters); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
	}
	return entry, nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
