package rate_limiter

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateKeyPrefix       = "ratelimit:"
	redisScriptTimeout  = 2 * time.Second
	fixedWindowResultSz = 2
)

//go:embed redis_lua/fixed_window.lua
var fixedWindowScriptSource string

var fixedWindowScript = redis.NewScript(fixedWindowScriptSource)

// RedisStorage keeps fixed windows in redis so that several gateway instances
// share one budget per client key. The window starts with the first request
// and the counter key expires with it.
type RedisStorage struct {
	dB  *redis.Client
	now func() time.Time
}

func NewRedisStorage(db *redis.Client) *RedisStorage {
	return &RedisStorage{dB: db, now: time.Now}
}

func (r *RedisStorage) CheckAndUpdateFixedWindow(key string, maxRequests int, window time.Duration) (Decision, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisScriptTimeout)
	defer cancel()

	res, err := fixedWindowScript.Run(ctx, r.dB, []string{rateKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("fixed window script: %w", err)
	}
	if len(res) != fixedWindowResultSz {
		return Decision{}, fmt.Errorf("fixed window script: unexpected result %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	d := Decision{
		Allowed:   count <= maxRequests,
		Limit:     maxRequests,
		Remaining: max(0, maxRequests-count),
		ResetAt:   r.now().Add(ttl),
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}
