package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS: ledger zset.
// ARGV: now ms, exclusive prune bound, max, member, window ms.
// Returns {allowed, count, oldest ms}.
const recordScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
local max = tonumber(ARGV[3])
if count >= max then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  local at = 0
  if oldest[2] then
    at = tonumber(oldest[2])
  end
  return {0, count, at}
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {1, count + 1, tonumber(first[2])}
`

var recordLua = redis.NewScript(recordScript)

var _ Ledger = (*RedisLedger)(nil)

// RedisLedger keeps one sorted set per identifier, scored by attempt time in
// milliseconds.
type RedisLedger struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLedger returns a ledger. prefix defaults to "rl".
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLedger{redis: client, prefix: prefix}
}

func (r *RedisLedger) key(identifier string) string {
	return r.prefix + ":" + identifier
}

// Record runs the prune, count and add script for identifier.
func (r *RedisLedger) Record(ctx context.Context, identifier string, now time.Time, window time.Duration, max int) (Decision, error) {
	nowMS := now.UnixMilli()
	bound := "(" + strconv.FormatInt(nowMS-window.Milliseconds(), 10)
	member := strconv.FormatInt(nowMS, 10) + "-" + uuid.NewString()

	res, err := recordLua.Run(ctx, r.redis, []string{r.key(identifier)},
		nowMS, bound, max, member, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrLedgerUnavailable)
	}

	d := Decision{Allowed: res[0] == 1, Count: int(res[1])}
	if res[2] > 0 {
		d.Oldest = time.UnixMilli(res[2])
	}
	return d, nil
}
