package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLimiterUnavailable = errors.New("rate_limiter_unavailable")
	ErrInvalidBucket      = errors.New("invalid_bucket")
)

// Tokens are stored in thousandths so the script works on integers only.
// Replies are {allowed, remaining_milli, retry_after_ms}.
const takeTokenScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "at")
local milli = tonumber(state[1])
local at = tonumber(state[2])
if milli == nil or at == nil then
  milli = capacity
else
  local elapsed = math.max(0, now - at)
  milli = math.min(capacity, milli + math.floor(elapsed * rate))
end

local allowed = 0
local retry = 0
if milli >= 1000 then
  allowed = 1
  milli = milli - 1000
else
  retry = math.ceil((1000 - milli) / rate)
end

redis.call("HSET", KEYS[1], "milli", milli, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, milli, retry}
`

// Bucket refills at Rate tokens per second and holds at most Burst tokens.
type Bucket struct {
	Rate  float64
	Burst int
}

func (b Bucket) validate() error {
	if b.Rate <= 0 || b.Burst <= 0 {
		return ErrInvalidBucket
	}
	return nil
}

// ttl keeps idle state around for twice the time a drained bucket needs to refill.
func (b Bucket) ttl() time.Duration {
	seconds := math.Ceil(float64(b.Burst) / b.Rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// TokenBucket keeps bucket state in redis so every replica draws from the
// same bucket for a key.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(takeTokenScript)}
}

// Take removes one token from the bucket stored under key.
func (t *TokenBucket) Take(ctx context.Context, key string, bucket Bucket) (Decision, error) {
	if t == nil || t.client == nil {
		return Decision{}, ErrLimiterUnavailable
	}
	if key == "" {
		return Decision{}, ErrInvalidBucket
	}
	if err := bucket.validate(); err != nil {
		return Decision{}, err
	}

	// The script refills per millisecond: rate/1000 tokens, i.e. rate milli-tokens.
	reply, err := t.script.Run(ctx, t.client, []string{key},
		bucket.Rate,
		bucket.Burst,
		bucket.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	return decodeDecision(reply)
}

func decodeDecision(reply []int64) (Decision, error) {
	if len(reply) != 3 {
		return Decision{}, errors.New("unexpected token bucket reply")
	}
	return Decision{
		Allowed:    reply[0] == 1,
		Remaining:  int(reply[1] / 1000),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}
