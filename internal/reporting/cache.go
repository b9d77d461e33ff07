package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatsCache holds computed dashboard stats per dealership. A miss is reported as
// ok=false with a nil error.
type StatsCache interface {
	Get(ctx context.Context, dealershipID int64) (stats DashboardStats, ok bool, err error)
	Set(ctx context.Context, dealershipID int64, stats DashboardStats) error
	Invalidate(ctx context.Context, dealershipID int64) error
}

const statsKeyPrefix = "dashboard:stats:"

func statsKey(dealershipID int64) string {
	return statsKeyPrefix + strconv.FormatInt(dealershipID, 10)
}

type RedisStatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatsCache(rdb *redis.Client, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisStatsCache{rdb: rdb, ttl: ttl}
}

func (c *RedisStatsCache) Get(ctx context.Context, dealershipID int64) (DashboardStats, bool, error) {
	b, err := c.rdb.Get(ctx, statsKey(dealershipID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DashboardStats{}, false, nil
	}
	if err != nil {
		return DashboardStats{}, false, err
	}
	var s DashboardStats
	if err := json.Unmarshal(b, &s); err != nil {
		// a corrupt entry is treated as a miss and overwritten on the next Set
		return DashboardStats{}, false, nil
	}
	return s, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, dealershipID int64, s DashboardStats) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey(dealershipID), b, c.ttl).Err()
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, dealershipID int64) error {
	return c.rdb.Del(ctx, statsKey(dealershipID)).Err()
}

// NoopStatsCache always misses. Used when Redis is not configured.
type NoopStatsCache struct{}

func (NoopStatsCache) Get(context.Context, int64) (DashboardStats, bool, error) {
	return DashboardStats{}, false, nil
}
func (NoopStatsCache) Set(context.Context, int64, DashboardStats) error { return nil }
func (NoopStatsCache) Invalidate(context.Context, int64) error          { return nil }
