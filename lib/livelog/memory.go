// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livelog

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Cache. Expire drops the entries immediately
// rather than after ttl.
type Memory struct {
	mu      sync.Mutex
	streams map[string]*strings.Builder
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{streams: make(map[string]*strings.Builder)}
}

func memoryKey(buildID string, stream Stream) string {
	return string(stream) + ":" + buildID
}

func (c *Memory) Append(_ context.Context, buildID string, stream Stream, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := memoryKey(buildID, stream)
	builder, ok := c.streams[key]
	if !ok {
		builder = &strings.Builder{}
		c.streams[key] = builder
	}
	builder.WriteString(text)
	return nil
}

func (c *Memory) Read(_ context.Context, buildID string, stream Stream) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if builder, ok := c.streams[memoryKey(buildID, stream)]; ok {
		return builder.String(), nil
	}
	return "", nil
}

func (c *Memory) Expire(_ context.Context, buildID string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, memoryKey(buildID, Stdout))
	delete(c.streams, memoryKey(buildID, Stderr))
	return nil
}
