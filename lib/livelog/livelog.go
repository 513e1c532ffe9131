// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package livelog mirrors build output into a key/value cache so it
// can be tailed while a build runs, independently of the chunked
// persistence of the Build record.
//
// This is a separate concern from the stage queue even when both are
// backed by the same Redis server.
package livelog

import (
	"context"
	"time"
)

// Stream names one of a build's output streams.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Cache holds live output per build and stream.
type Cache interface {
	// Append adds text to the end of a build's stream.
	Append(ctx context.Context, buildID string, stream Stream, text string) error

	// Read returns everything appended to a build's stream so far.
	Read(ctx context.Context, buildID string, stream Stream) (string, error)

	// Expire schedules both streams of a build for deletion after ttl.
	Expire(ctx context.Context, buildID string, ttl time.Duration) error
}
