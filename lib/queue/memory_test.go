// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/testutil"
)

func TestMemoryPopBlocksUntilPush(t *testing.T) {
	q := NewMemory("test")
	ctx := context.Background()

	popped := make(chan *Delivery, 1)
	go func() {
		delivery, err := q.Pop(ctx)
		if err != nil {
			t.Errorf("Pop: %v", err)
			return
		}
		popped <- delivery
	}()

	if err := q.Push(ctx, &schema.Instruction{BuildID: "b1", PrivateKey: multiLineKey}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	delivery := testutil.RequireReceive(t, popped, 5*time.Second, "waiting for pop")
	if delivery.Instruction.PrivateKey != multiLineKey {
		t.Errorf("PrivateKey = %q", delivery.Instruction.PrivateKey)
	}
	if q.InFlight() != 1 {
		t.Errorf("InFlight = %d before ack, want 1", q.InFlight())
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if q.InFlight() != 0 {
		t.Errorf("InFlight = %d after ack, want 0", q.InFlight())
	}
}

func TestMemoryDoesNotShareInstructions(t *testing.T) {
	q := NewMemory("test")
	ctx := context.Background()

	original := &schema.Instruction{BuildID: "b1"}
	if err := q.Push(ctx, original); err != nil {
		t.Fatalf("Push: %v", err)
	}
	original.BuildID = "mutated-after-push"

	delivery, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if delivery.Instruction.BuildID != "b1" {
		t.Errorf("popped BuildID = %q, want b1", delivery.Instruction.BuildID)
	}
}

func TestMemoryClose(t *testing.T) {
	q := NewMemory("test")
	result := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		result <- err
	}()
	q.Close()
	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Pop after Close")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Pop after Close = %v, want ErrClosed", err)
	}
	if err := q.Push(context.Background(), &schema.Instruction{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Push after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryPopCancelled(t *testing.T) {
	q := NewMemory("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Pop with cancelled context = %v, want context.Canceled", err)
	}
}
