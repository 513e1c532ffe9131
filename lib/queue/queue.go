// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the durable FIFO that connects consecutive
// pipeline stages.
//
// Delivery is at-least-once. Pop hands out a Delivery that stays
// in-flight until Ack; a worker that dies between Pop and Ack leaves
// the message in flight, and Recover returns every in-flight message
// to the head of the queue on the next start. Stages must therefore
// tolerate seeing an instruction twice, which they do by recreating
// their outputs (build directory, key files, containers) from scratch.
package queue

import (
	"context"
	"errors"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

// ErrClosed is returned by Pop and Push after the queue was closed.
var ErrClosed = errors.New("queue closed")

// Queue is one named durable stage queue.
type Queue interface {
	// Name identifies the queue in logs and metrics.
	Name() string

	// Push appends an instruction to the tail.
	Push(ctx context.Context, instruction *schema.Instruction) error

	// Pop blocks until an instruction is available or ctx is done.
	// The returned delivery must be acknowledged once the instruction
	// has been forwarded or its failure recorded.
	Pop(ctx context.Context) (*Delivery, error)

	// Len returns the number of instructions waiting (not in flight).
	Len(ctx context.Context) (int64, error)

	// Recover moves unacknowledged in-flight instructions back to the
	// head of the queue. Returns how many were moved.
	Recover(ctx context.Context) (int, error)
}

// Delivery is one popped instruction. The worker that popped it is its
// only owner until Ack.
type Delivery struct {
	Instruction *schema.Instruction

	ack func(ctx context.Context) error
}

// Ack removes the delivery from the in-flight set.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}
