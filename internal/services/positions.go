package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueuePosition is a user's place in an event's line.
type QueuePosition struct {
	UserID   string `json:"user_id"`
	Position int    `json:"position"`
}

// PositionCache keeps recently computed queue positions in Redis so clients can poll
// their place without touching the database.
type PositionCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewPositionCache(client *redis.Client, ttl time.Duration) *PositionCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &PositionCache{redis: client, ttl: ttl}
}

func positionKey(eventID, userID string) string {
	return fmt.Sprintf("queue:position:%s:%s", eventID, userID)
}

// Store writes every position of the event in one round trip.
func (c *PositionCache) Store(ctx context.Context, eventID string, positions []QueuePosition) error {
	if len(positions) == 0 {
		return nil
	}

	pipe := c.redis.Pipeline()
	for _, p := range positions {
		pipe.Set(ctx, positionKey(eventID, p.UserID), p.Position, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache positions for %s: %w", eventID, err)
	}
	return nil
}

// Lookup returns the cached position and whether one was found.
func (c *PositionCache) Lookup(ctx context.Context, eventID, userID string) (int, bool, error) {
	position, err := c.redis.Get(ctx, positionKey(eventID, userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cached position: %w", err)
	}
	return position, true, nil
}

func (c *PositionCache) Forget(ctx context.Context, eventID, userID string) error {
	if err := c.redis.Del(ctx, positionKey(eventID, userID)).Err(); err != nil {
		return fmt.Errorf("forget cached position: %w", err)
	}
	return nil
}
