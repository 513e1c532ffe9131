// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache stored as Redis strings at "<prefix>:<stream>:<id>"
// and grown with APPEND.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a cache using client with keys under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (c *Redis) key(buildID string, stream Stream) string {
	return c.prefix + ":" + string(stream) + ":" + buildID
}

func (c *Redis) Append(ctx context.Context, buildID string, stream Stream, text string) error {
	if err := c.client.Append(ctx, c.key(buildID, stream), text).Err(); err != nil {
		return fmt.Errorf("livelog: appending %s of %s: %w", stream, buildID, err)
	}
	return nil
}

func (c *Redis) Read(ctx context.Context, buildID string, stream Stream) (string, error) {
	text, err := c.client.Get(ctx, c.key(buildID, stream)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("livelog: reading %s of %s: %w", stream, buildID, err)
	}
	return text, nil
}

func (c *Redis) Expire(ctx context.Context, buildID string, ttl time.Duration) error {
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, c.key(buildID, Stdout), ttl)
		pipe.Expire(ctx, c.key(buildID, Stderr), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("livelog: expiring %s: %w", buildID, err)
	}
	return nil
}
