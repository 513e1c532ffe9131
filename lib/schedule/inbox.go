// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/buildwright/lib/queue"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

// InboxKey returns the key of the trigger inbox for a queue prefix.
// The inbox lets processes that cannot open the store (the operator
// CLI while a worker holds it) request builds.
func InboxKey(prefix string) string {
	return prefix + ":trigger"
}

// Submit puts request on inbox. Only the trigger fields of the
// instruction are set; Serve fills in the rest from the builder.
func Submit(ctx context.Context, inbox queue.Queue, request Request) error {
	if request.BuilderID == "" {
		return errors.New("builder id is required")
	}
	return inbox.Push(ctx, &schema.Instruction{
		BuilderID:   request.BuilderID,
		Branch:      request.Branch,
		Commit:      request.Commit,
		AccessToken: request.AccessToken,
	})
}

// Serve triggers a build for every request on inbox until ctx is
// cancelled. A request that cannot be scheduled is logged and dropped.
// A shutdown mid-trigger leaves the request unacknowledged, so a crash
// between the push and the acknowledgement can schedule it twice.
func (s *Scheduler) Serve(ctx context.Context, inbox queue.Queue) error {
	s.logger.Info("trigger inbox started", "queue", inbox.Name())
	for {
		delivery, err := inbox.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				s.logger.Info("trigger inbox stopped")
				return nil
			}
			return fmt.Errorf("trigger inbox: %w", err)
		}

		request := delivery.Instruction
		_, err = s.Trigger(ctx, Request{
			BuilderID:   request.BuilderID,
			Branch:      request.Branch,
			Commit:      request.Commit,
			AccessToken: request.AccessToken,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("dropping trigger", "builder_id", request.BuilderID, "error", err)
		}
		if err := delivery.Ack(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("trigger inbox: %w", err)
		}
	}
}
