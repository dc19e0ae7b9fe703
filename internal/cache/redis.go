// Package cache remembers attachment outcomes so a redelivered message does
// not repeat side effects for attachments that already finished.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/redis/go-redis/v9"
)

type OutcomeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOutcomeCache connects to addr and verifies the connection.
func NewOutcomeCache(ctx context.Context, addr string, ttl time.Duration) (*OutcomeCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &OutcomeCache{client: client, ttl: ttl}, nil
}

func (c *OutcomeCache) Close() error {
	return c.client.Close()
}

func outcomeKey(processID, attachmentID models.ID) string {
	return fmt.Sprintf("outcome:%s:%s", processID, attachmentID)
}

// Outcome returns the recorded terminal state, or "" when none is recorded.
func (c *OutcomeCache) Outcome(ctx context.Context, processID, attachmentID models.ID) (models.AttachmentState, error) {
	state, err := c.client.Get(ctx, outcomeKey(processID, attachmentID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get attachment outcome from Redis: %w", err)
	}
	return models.AttachmentState(state), nil
}

// Remember records a terminal state for the configured TTL.
func (c *OutcomeCache) Remember(ctx context.Context, processID, attachmentID models.ID, state models.AttachmentState) error {
	if err := c.client.Set(ctx, outcomeKey(processID, attachmentID), string(state), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set attachment outcome in Redis: %w", err)
	}
	return nil
}
