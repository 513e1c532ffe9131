// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

// defaultPopTimeout bounds each blocking pop so the loop can observe
// context cancellation.
const defaultPopTimeout = 5 * time.Second

// RedisConfig configures a Redis-backed queue.
type RedisConfig struct {
	// Client is the shared Redis connection. Required.
	Client *redis.Client

	// Key is the Redis list holding waiting instructions. In-flight
	// instructions live in "<Key>:processing" and undecodable payloads
	// are parked in "<Key>:dead". Required.
	Key string

	// PopTimeout bounds each blocking pop. Defaults to 5 seconds.
	PopTimeout time.Duration

	Logger *slog.Logger
}

// Redis is a Queue stored in Redis lists. Instructions are pushed on
// the left and popped from the right with BRPOPLPUSH, which atomically
// parks the payload in the processing list.
type Redis struct {
	client     *redis.Client
	key        string
	processing string
	dead       string
	popTimeout time.Duration
	logger     *slog.Logger
}

// NewRedis creates a queue over the configured Redis list.
func NewRedis(config RedisConfig) *Redis {
	if config.Client == nil {
		panic("queue.NewRedis: Client is required")
	}
	if config.Key == "" {
		panic("queue.NewRedis: Key is required")
	}
	popTimeout := config.PopTimeout
	if popTimeout <= 0 {
		popTimeout = defaultPopTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:     config.Client,
		key:        config.Key,
		processing: config.Key + ":processing",
		dead:       config.Key + ":dead",
		popTimeout: popTimeout,
		logger:     logger,
	}
}

func (q *Redis) Name() string { return q.key }

func (q *Redis) Push(ctx context.Context, instruction *schema.Instruction) error {
	payload, err := schema.EncodeInstruction(instruction)
	if err != nil {
		return fmt.Errorf("queue %s: %w", q.key, err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("queue %s: push: %w", q.key, err)
	}
	return nil
}

func (q *Redis) Pop(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload, err := q.client.BRPopLPush(ctx, q.key, q.processing, q.popTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("queue %s: pop: %w", q.key, err)
		}

		instruction, err := schema.DecodeInstruction([]byte(payload))
		if err != nil {
			q.logger.Error("parking undecodable queue payload",
				"queue", q.key,
				"error", err,
			)
			if err := q.park(ctx, payload); err != nil {
				return nil, err
			}
			continue
		}

		return &Delivery{
			Instruction: instruction,
			ack: func(ctx context.Context) error {
				if err := q.client.LRem(ctx, q.processing, 1, payload).Err(); err != nil {
					return fmt.Errorf("queue %s: ack: %w", q.key, err)
				}
				return nil
			},
		}, nil
	}
}

// park moves a payload from the processing list to the dead list.
func (q *Redis) park(ctx context.Context, payload string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, payload)
		pipe.LPush(ctx, q.dead, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue %s: parking payload: %w", q.key, err)
	}
	return nil
}

func (q *Redis) Len(ctx context.Context) (int64, error) {
	length, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue %s: len: %w", q.key, err)
	}
	return length, nil
}

func (q *Redis) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		// Newest in-flight first, appended at the pop end, so the
		// oldest in-flight instruction is redelivered first.
		err := q.client.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("queue %s: recover: %w", q.key, err)
		}
		moved++
	}
}
