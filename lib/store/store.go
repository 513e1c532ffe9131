// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists Build and Builder records. The pipeline only
// depends on the Store interface; the badger-backed implementation is
// what the worker and CLI open.
package store

import (
	"context"
	"errors"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store reads and writes pipeline records.
type Store interface {
	Build(ctx context.Context, id string) (*schema.Build, error)
	SaveBuild(ctx context.Context, build *schema.Build) error

	Builder(ctx context.Context, id string) (*schema.Builder, error)
	SaveBuilder(ctx context.Context, builder *schema.Builder) error

	// BuildsForBuilder returns every build of a builder, oldest first.
	BuildsForBuilder(ctx context.Context, builderID string) ([]*schema.Build, error)
}
