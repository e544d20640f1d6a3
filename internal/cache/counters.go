package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinship/backend/internal/logging"
)

// Counters caches per-member friend counts in front of the users table.
//
// A miss returns a stamp that must be handed back to SetFriendCount. Counts
// filled under a stamp that an Invalidate has since superseded are never
// served.
type Counters interface {
	FriendCount(ctx context.Context, userID string) (count int, stamp int64, ok bool)
	SetFriendCount(ctx context.Context, userID string, count int, stamp int64)
	Invalidate(ctx context.Context, userIDs ...string)
}

// KV is the subset of the Redis client the counter cache uses.
type KV interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

const (
	friendCountPrefix   = "kinship:friend_count:"
	friendVersionPrefix = "kinship:friend_count_version:"
)

// RedisCounters stores counters as "stamp:count" strings next to a per-member
// version that Invalidate bumps. Redis failures are logged and treated as
// misses so the database stays authoritative.
type RedisCounters struct {
	kv  KV
	ttl time.Duration
}

// NewRedisCounters constructs a Redis-backed counter cache.
func NewRedisCounters(kv KV, ttl time.Duration) *RedisCounters {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCounters{kv: kv, ttl: ttl}
}

// FriendCount returns the cached count when it was stored under the current
// version.
func (c *RedisCounters) FriendCount(ctx context.Context, userID string) (int, int64, bool) {
	values, err := c.kv.MGet(ctx, friendCountPrefix+userID, friendVersionPrefix+userID).Result()
	if err != nil {
		logging.FromContext(ctx).Warn("friend count cache read failed", "userId", userID, "error", err)
		return 0, -1, false
	}

	var version int64
	if len(values) > 1 && values[1] != nil {
		version, err = strconv.ParseInt(fmt.Sprint(values[1]), 10, 64)
		if err != nil {
			logging.FromContext(ctx).Warn("friend count version holds garbage", "userId", userID, "value", values[1])
			return 0, -1, false
		}
	}
	if len(values) == 0 || values[0] == nil {
		return 0, version, false
	}

	raw := fmt.Sprint(values[0])
	stamp, count, err := parseEntry(raw)
	if err != nil {
		logging.FromContext(ctx).Warn("friend count cache holds garbage", "userId", userID, "value", raw)
		return 0, version, false
	}
	if stamp != version {
		return 0, version, false
	}
	return count, version, true
}

// SetFriendCount stores a count under stamp. A negative stamp skips the write.
func (c *RedisCounters) SetFriendCount(ctx context.Context, userID string, count int, stamp int64) {
	if stamp < 0 {
		return
	}
	entry := strconv.FormatInt(stamp, 10) + ":" + strconv.Itoa(count)
	if err := c.kv.Set(ctx, friendCountPrefix+userID, entry, c.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("friend count cache write failed", "userId", userID, "error", err)
	}
}

// Invalidate bumps the members' versions so in-flight fills are ignored, then
// drops their counts.
func (c *RedisCounters) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = friendCountPrefix + id
		versionKey := friendVersionPrefix + id
		if err := c.kv.Incr(ctx, versionKey).Err(); err != nil {
			logging.FromContext(ctx).Warn("friend count version bump failed", "userId", id, "error", err)
			continue
		}
		if err := c.kv.Expire(ctx, versionKey, 2*c.ttl).Err(); err != nil {
			logging.FromContext(ctx).Warn("friend count version expiry failed", "userId", id, "error", err)
		}
	}
	if err := c.kv.Del(ctx, keys...).Err(); err != nil {
		logging.FromContext(ctx).Warn("friend count cache invalidate failed", "userIds", userIDs, "error", err)
	}
}

func parseEntry(raw string) (int64, int, error) {
	stampPart, countPart, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, errors.New("missing stamp")
	}
	stamp, err := strconv.ParseInt(stampPart, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	count, err := strconv.Atoi(countPart)
	if err != nil {
		return 0, 0, err
	}
	return stamp, count, nil
}

// Noop never caches. It is used when Redis is not configured.
type Noop struct{}

func (Noop) FriendCount(context.Context, string) (int, int64, bool) { return 0, -1, false }
func (Noop) SetFriendCount(context.Context, string, int, int64)     {}
func (Noop) Invalidate(context.Context, ...string)                  {}

var (
	_ Counters = (*RedisCounters)(nil)
	_ Counters = Noop{}
)
