package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/bookingflow/config"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("timed out waiting for booking lock")

// releaseScript deletes the key only if it still carries our token, so a
// lease that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client          redis.UniversalClient
	availabilityTTL time.Duration
	lockLease       time.Duration
	retryInterval   time.Duration
}

func NewRedisCache(cfg config.RedisConfig, availabilityTTL, lockLease time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		availabilityTTL,
		lockLease,
	)
}

func NewRedisCacheWithClient(client redis.UniversalClient, availabilityTTL, lockLease time.Duration) *RedisCache {
	return &RedisCache{
		client:          client,
		availabilityTTL: availabilityTTL,
		lockLease:       lockLease,
		retryInterval:   25 * time.Millisecond,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) GetAvailability(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.Availability, error) {
	data, err := c.client.Get(ctx, availabilityKey(flightID, cabin)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var a domain.Availability
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAvailability caches a for the configured TTL, or for maxAge when that is
// shorter and positive.
func (c *RedisCache) SetAvailability(ctx context.Context, a domain.Availability, maxAge time.Duration) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, availabilityKey(a.FlightID, a.CabinClass), payload, c.entryTTL(maxAge)).Err()
}

func (c *RedisCache) entryTTL(maxAge time.Duration) time.Duration {
	if maxAge > 0 && maxAge < c.availabilityTTL {
		return maxAge
	}
	return c.availabilityTTL
}

func (c *RedisCache) InvalidateAvailability(ctx context.Context, flightID int64, cabin domain.CabinClass) error {
	return c.client.Del(ctx, availabilityKey(flightID, cabin)).Err()
}

// Lock takes a lease on key, polling until it is free or ctx ends. The lease
// outlives a crashed holder by at most the configured lease time.
func (c *RedisCache) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := lockKey(key)

	for {
		ok, err := c.client.SetNX(ctx, redisKey, token, c.lockLease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// The caller's ctx may already be done; release must still run.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, c.client, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-time.After(c.retryInterval):
		}
	}
}

func availabilityKey(flightID int64, cabin domain.CabinClass) string {
	return fmt.Sprintf("cache:availability:%d:%s", flightID, cabin)
}

func lockKey(key string) string {
	return "lock:" + key
}
