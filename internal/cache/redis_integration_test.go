//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestOutcomeCacheRedis(t *testing.T) {
	ctx := context.Background()

	container, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := NewOutcomeCache(ctx, fmt.Sprintf("%s:%s", host, port.Port()), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	state, err := c.Outcome(ctx, "p-1", "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentState(""), state)

	require.NoError(t, c.Remember(ctx, "p-1", "a-1", models.StateSucceeded))
	state, err = c.Outcome(ctx, "p-1", "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, state)
}
