// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/buildwright/lib/livelog"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/store"
)

// Record is a build loaded by the stage currently running it. Text
// appended to it is buffered for the live-log cache until the next
// Persist. Record implements stream.Sink and docker.Output, so streamed
// output and container status land in the same narrative.
//
// A Record is owned by one goroutine.
type Record struct {
	Build *schema.Build

	env           *Env
	pendingStdout strings.Builder
	pendingStderr strings.Builder
	mirrored      schema.BuildStatus
}

// openRecord loads the build with the given ID.
func (env *Env) openRecord(ctx context.Context, buildID string) (*Record, error) {
	build, err := env.Store.Build(ctx, buildID)
	if err != nil {
		return nil, fmt.Errorf("loading build %s: %w", buildID, err)
	}
	return &Record{Build: build, env: env, mirrored: build.Status}, nil
}

// AppendStdout appends text to the build's stdout.
func (r *Record) AppendStdout(text string) {
	r.Build.AppendStdout(text)
	r.pendingStdout.WriteString(text)
}

// AppendStderr appends text to the build's stderr.
func (r *Record) AppendStderr(text string) {
	r.Build.AppendStderr(text)
	r.pendingStderr.WriteString(text)
}

// Println appends one formatted line to stdout.
func (r *Record) Println(format string, args ...any) {
	r.AppendStdout(fmt.Sprintf(format, args...) + "\n")
}

// RegisterDockerStatus records a line of engine output on the build.
// Whatever the build appends to stdout is mirrored live as well.
func (r *Record) RegisterDockerStatus(line string) {
	before := len(r.Build.Stdout)
	r.Build.RegisterDockerStatus(line)
	if len(r.Build.Stdout) > before {
		r.pendingStdout.WriteString(r.Build.Stdout[before:])
	}
}

// SetStatus moves the build to status.
func (r *Record) SetStatus(status schema.BuildStatus) error {
	return r.Build.SetStatus(status)
}

// Persist saves the build, mirrors its status onto the builder, and
// flushes buffered output to the live-log cache. Live-log failures
// are logged; the stored build is the record of truth.
func (r *Record) Persist(ctx context.Context) error {
	if err := r.env.Store.SaveBuild(ctx, r.Build); err != nil {
		return fmt.Errorf("saving build %s: %w", r.Build.ID, err)
	}
	r.flushLive(ctx)

	if r.Build.Status == r.mirrored {
		return nil
	}
	builder, err := r.env.Store.Builder(ctx, r.Build.BuilderID)
	if errors.Is(err, store.ErrNotFound) {
		r.env.logger().Warn("build has no builder to mirror status onto",
			"build_id", r.Build.ID,
			"builder_id", r.Build.BuilderID,
		)
		r.mirrored = r.Build.Status
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading builder %s: %w", r.Build.BuilderID, err)
	}
	builder.Status = r.Build.Status
	if err := r.env.Store.SaveBuilder(ctx, builder); err != nil {
		return fmt.Errorf("saving builder %s: %w", builder.ID, err)
	}
	r.mirrored = r.Build.Status
	return nil
}

func (r *Record) flushLive(ctx context.Context) {
	if r.env.LiveLog == nil {
		r.pendingStdout.Reset()
		r.pendingStderr.Reset()
		return
	}
	for _, pending := range []struct {
		stream  livelog.Stream
		builder *strings.Builder
	}{
		{livelog.Stdout, &r.pendingStdout},
		{livelog.Stderr, &r.pendingStderr},
	} {
		if pending.builder.Len() == 0 {
			continue
		}
		if err := r.env.LiveLog.Append(ctx, r.Build.ID, pending.stream, pending.builder.String()); err != nil {
			r.env.logger().Warn("live log append failed",
				"build_id", r.Build.ID,
				"stream", string(pending.stream),
				"error", err,
			)
		}
		pending.builder.Reset()
	}
}

// expireLive schedules the build's live log for deletion.
func (env *Env) expireLive(ctx context.Context, buildID string) {
	if env.LiveLog == nil {
		return
	}
	if err := env.LiveLog.Expire(ctx, buildID, env.Config.Redis.LiveLogTTL); err != nil {
		env.logger().Warn("live log expiry failed", "build_id", buildID, "error", err)
	}
}

// persist saves record, classifying a failure as infrastructure.
func persist(ctx context.Context, stage string, record *Record) error {
	if err := record.Persist(ctx); err != nil {
		return infrastructure(stage, err)
	}
	return nil
}

// attrs returns the usual log attributes for a stage and build.
func attrs(stage string, instruction *schema.Instruction) []any {
	return []any{slog.String("stage", stage), slog.String("build_id", instruction.BuildID)}
}
