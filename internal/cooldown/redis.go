package cooldown

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// idleTTL is how long an entry recorded with a zero window is kept
const idleTTL = 24 * time.Hour

// allowScript applies the cooldown rule atomically on the hash at KEYS[1].
// ARGV: region, item, now (ms), window (ms), ttl (ms).
var allowScript = redis.NewScript(`
local prev = redis.call('HMGET', KEYS[1], 'region', 'item', 'sent_at')
local window = tonumber(ARGV[4])
if window > 0 and prev[1] == ARGV[1] and prev[2] == ARGV[2] and prev[3] then
	if tonumber(ARGV[3]) - tonumber(prev[3]) < window then
		return 0
	end
end
redis.call('HSET', KEYS[1], 'region', ARGV[1], 'item', ARGV[2], 'sent_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// entryTTL keeps an entry for twice its window; past the window it can no longer suppress anything
func entryTTL(window time.Duration) time.Duration {
	if window <= 0 {
		return idleTTL
	}
	return 2 * window
}

// Redis keeps entries in hashes named dive:cooldown:<kind>, shared by every relay instance
type Redis struct {
	client *redis.Client
}

// NewRedis wraps a connected client
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(kind string) string {
	return fmt.Sprintf("dive:cooldown:%s", kind)
}

func (r *Redis) Allow(ctx context.Context, kind, region, item string, window time.Duration, now time.Time) (bool, error) {
	res, err := allowScript.Run(ctx, r.client, []string{redisKey(kind)},
		region, item, now.UnixMilli(), window.Milliseconds(), entryTTL(window).Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis cooldown failed: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) Last(ctx context.Context, kind string) (Entry, bool, error) {
	vals, err := r.client.HGetAll(ctx, redisKey(kind)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis cooldown read failed: %w", err)
	}
	sentAt, err := strconv.ParseInt(vals["sent_at"], 10, 64)
	if err != nil {
		return Entry{}, false, nil
	}
	return Entry{Region: vals["region"], Item: vals["item"], At: time.UnixMilli(sentAt)}, true, nil
}
