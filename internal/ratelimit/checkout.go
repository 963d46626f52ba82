package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/printdesk/internal/config"
)

const (
	keyCheckoutOwner = "checkout:owner:%s"
	keyIntentLock    = "checkout:intent:lock:%s"
)

// CheckoutLimiter throttles payment intent creation per owner and serializes
// concurrent intent creation for one idempotency fingerprint. A nil or
// disabled limiter allows everything.
type CheckoutLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	owner   Bucket
	lockTTL time.Duration
}

func NewCheckoutLimiter(client *redis.Client, cfg config.Config) (*CheckoutLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil, nil
	}
	if limitCfg.CheckoutRate <= 0 || limitCfg.CheckoutBurst <= 0 {
		return nil, errors.New("checkout rate limit must be positive")
	}
	ttl := time.Duration(limitCfg.IntentLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Second
	}

	return &CheckoutLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		owner:   Bucket{Rate: limitCfg.CheckoutRate, Burst: limitCfg.CheckoutBurst},
		lockTTL: ttl,
	}, nil
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CheckoutLimiter) AllowOwner(ctx context.Context, ownerID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyCheckoutOwner, strings.TrimSpace(ownerID)), l.owner)
}

// LockIntent reports ok without a token when locking is disabled.
func (l *CheckoutLimiter) LockIntent(ctx context.Context, fingerprint string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyIntentLock, strings.TrimSpace(fingerprint)), l.lockTTL)
}

func (l *CheckoutLimiter) ReleaseIntent(ctx context.Context, fingerprint, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyIntentLock, strings.TrimSpace(fingerprint)), token)
}
