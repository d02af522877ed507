// Package pinguard throttles PIN guesses per card using Redis counters.
package pinguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "giftcard:pin_failures:"

// Client is the subset of *redis.Client the guard uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Guard counts consecutive PIN failures per card. Once MaxAttempts failures
// accumulate inside Window the card is locked until the window lapses.
type Guard struct {
	client      Client
	maxAttempts int64
	window      time.Duration
}

// New creates a Guard. maxAttempts <= 0 disables locking while still
// counting failures.
func New(client Client, maxAttempts int, window time.Duration) *Guard {
	return &Guard{
		client:      client,
		maxAttempts: int64(maxAttempts),
		window:      window,
	}
}

func key(cardID uuid.UUID) string {
	return keyPrefix + cardID.String()
}

// Locked reports whether the card has exhausted its attempts. A locked
// counter that lost its expiry gets the window back, so a lock always lapses.
func (g *Guard) Locked(ctx context.Context, cardID uuid.UUID) (bool, error) {
	if g.maxAttempts <= 0 {
		return false, nil
	}
	k := key(cardID)
	n, err := g.client.Get(ctx, k).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get pin failures: %w", err)
	}
	if n < g.maxAttempts {
		return false, nil
	}
	if err := g.ensureWindow(ctx, k); err != nil {
		log.Warn().Err(err).Str("card_id", cardID.String()).Msg("failed to restore pin lock window")
	}
	return true, nil
}

// RecordFailure increments the card's failure counter. The window starts
// at the first failure; any counter found without an expiry is given one.
func (g *Guard) RecordFailure(ctx context.Context, cardID uuid.UUID) error {
	k := key(cardID)
	n, err := g.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("incr pin failures: %w", err)
	}
	if n == 1 {
		err = g.client.Expire(ctx, k, g.window).Err()
	} else {
		err = g.ensureWindow(ctx, k)
	}
	if err != nil {
		return fmt.Errorf("expire pin failures: %w", err)
	}
	if g.maxAttempts > 0 && n == g.maxAttempts {
		log.Warn().
			Str("card_id", cardID.String()).
			Int64("failures", n).
			Dur("window", g.window).
			Msg("card locked after repeated pin failures")
	}
	return nil
}

// ensureWindow sets the window on k when the key exists without an expiry.
func (g *Guard) ensureWindow(ctx context.Context, k string) error {
	ttl, err := g.client.TTL(ctx, k).Result()
	if err != nil {
		return err
	}
	// -1 means the key exists and never expires.
	if ttl != -1 {
		return nil
	}
	return g.client.Expire(ctx, k, g.window).Err()
}

// Reset clears the counter after a successful PIN check.
func (g *Guard) Reset(ctx context.Context, cardID uuid.UUID) error {
	if err := g.client.Del(ctx, key(cardID)).Err(); err != nil {
		return fmt.Errorf("reset pin failures: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (g *Guard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
