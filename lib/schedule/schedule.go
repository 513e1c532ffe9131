// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule turns a trigger (a push, a pull request, an operator
// command) into a scheduled build and its first instruction.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/buildwright/lib/clock"
	"github.com/bureau-foundation/buildwright/lib/queue"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/store"
)

// DefaultBranch is built when neither the trigger nor the builder
// names a branch.
const DefaultBranch = "master"

// ErrNoRepository is returned for a builder without a git URI.
var ErrNoRepository = errors.New("builder has no git uri")

// Config configures a Scheduler.
type Config struct {
	Store store.Store

	// Queue is the first stage's input.
	Queue queue.Queue

	Clock  clock.Clock
	Logger *slog.Logger

	// NewID generates build IDs. Defaults to random UUIDs.
	NewID func() string
}

// Scheduler creates builds.
type Scheduler struct {
	store  store.Store
	queue  queue.Queue
	clock  clock.Clock
	logger *slog.Logger
	newID  func() string
}

// New creates a Scheduler.
func New(config Config) *Scheduler {
	scheduler := &Scheduler{
		store:  config.Store,
		queue:  config.Queue,
		clock:  config.Clock,
		logger: config.Logger,
		newID:  config.NewID,
	}
	if scheduler.clock == nil {
		scheduler.clock = clock.Real()
	}
	if scheduler.logger == nil {
		scheduler.logger = slog.Default()
	}
	if scheduler.newID == nil {
		scheduler.newID = uuid.NewString
	}
	return scheduler
}

// Request describes one trigger.
type Request struct {
	BuilderID string

	// Branch overrides the builder's branch.
	Branch string

	// Commit, when set, is checked out after the clone.
	Commit string

	// AccessToken is the triggering user's GitHub token. Deploy key
	// and commit status calls are skipped without one.
	AccessToken string
}

// Trigger creates a scheduled build of the requested builder and
// enqueues its instruction. If the push fails, the build is saved as
// failed with the reason in its stdout, and the error is returned.
func (s *Scheduler) Trigger(ctx context.Context, request Request) (*schema.Build, error) {
	builder, err := s.store.Builder(ctx, request.BuilderID)
	if err != nil {
		return nil, fmt.Errorf("loading builder %s: %w", request.BuilderID, err)
	}
	if builder.GitURI == "" {
		return nil, fmt.Errorf("builder %s: %w", builder.ID, ErrNoRepository)
	}

	branch := request.Branch
	if branch == "" {
		branch = builder.Branch
	}
	if branch == "" {
		branch = DefaultBranch
	}

	build := &schema.Build{
		ID:        s.newID(),
		BuilderID: builder.ID,
		Status:    schema.StatusReady,
		GitURI:    builder.GitURI,
		Branch:    branch,
		Commit:    request.Commit,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := build.SetStatus(schema.StatusScheduled); err != nil {
		return nil, err
	}
	if err := s.store.SaveBuild(ctx, build); err != nil {
		return nil, fmt.Errorf("saving build: %w", err)
	}
	builder.Status = build.Status
	if err := s.store.SaveBuilder(ctx, builder); err != nil {
		return nil, fmt.Errorf("saving builder %s: %w", builder.ID, err)
	}

	instruction := &schema.Instruction{
		BuildID:      build.ID,
		BuilderID:    builder.ID,
		Name:         builder.Name,
		Slug:         builder.Slug(),
		GitURI:       builder.GitURI,
		Branch:       branch,
		Commit:       request.Commit,
		ShellScript:  builder.ShellScript,
		PrivateKey:   builder.PrivateKey,
		PublicKey:    builder.PublicKey,
		AccessToken:  request.AccessToken,
		CloneTimeout: builder.CloneTimeout,
		BuildTimeout: builder.BuildTimeout,
	}
	if err := s.queue.Push(ctx, instruction); err != nil {
		build.SetStatus(schema.StatusFailed)
		build.AppendStdout(fmt.Sprintf("could not schedule build: %v\n", err))
		build.FinishedAt = s.clock.Now().UTC()
		if saveErr := s.store.SaveBuild(ctx, build); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
		return build, fmt.Errorf("enqueueing build %s: %w", build.ID, err)
	}

	s.logger.Info("build scheduled",
		"build_id", build.ID,
		"builder_id", builder.ID,
		"branch", branch,
		"commit", request.Commit,
	)
	return build, nil
}
