// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

// Memory is a process-local Queue for tests and single-process
// development runs. It is not durable: Recover has nothing to return
// after a restart. Payloads are still JSON-encoded so that a stage
// never shares an Instruction pointer with the stage that pushed it.
type Memory struct {
	name string

	mu      sync.Mutex
	items   [][]byte
	closed  bool
	notify  chan struct{}
	pending int
}

// NewMemory creates an empty in-memory queue.
func NewMemory(name string) *Memory {
	return &Memory{name: name, notify: make(chan struct{})}
}

func (q *Memory) Name() string { return q.name }

func (q *Memory) Push(_ context.Context, instruction *schema.Instruction) error {
	payload, err := schema.EncodeInstruction(instruction)
	if err != nil {
		return fmt.Errorf("queue %s: %w", q.name, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, payload)
	q.wakeLocked()
	return nil
}

func (q *Memory) Pop(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.items) > 0 {
			payload := q.items[0]
			q.items = q.items[1:]
			q.pending++
			q.mu.Unlock()

			instruction, err := schema.DecodeInstruction(payload)
			if err != nil {
				return nil, fmt.Errorf("queue %s: %w", q.name, err)
			}
			return &Delivery{
				Instruction: instruction,
				ack: func(context.Context) error {
					q.mu.Lock()
					q.pending--
					q.mu.Unlock()
					return nil
				},
			}, nil
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Memory) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// InFlight returns the number of popped but unacknowledged deliveries.
func (q *Memory) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *Memory) Recover(context.Context) (int, error) { return 0, nil }

// Close wakes blocked Pop calls with ErrClosed.
func (q *Memory) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.wakeLocked()
	}
}

func (q *Memory) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
