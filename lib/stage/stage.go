// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/bureau-foundation/buildwright/lib/clock"
	"github.com/bureau-foundation/buildwright/lib/config"
	"github.com/bureau-foundation/buildwright/lib/docker"
	"github.com/bureau-foundation/buildwright/lib/github"
	"github.com/bureau-foundation/buildwright/lib/livelog"
	"github.com/bureau-foundation/buildwright/lib/proc"
	"github.com/bureau-foundation/buildwright/lib/report"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/sshkey"
	"github.com/bureau-foundation/buildwright/lib/store"
	"github.com/bureau-foundation/buildwright/lib/stream"
)

// Stage is one step of a build.
type Stage interface {
	// Name identifies the stage in queue keys, logs, and metrics.
	Name() string

	// Process runs the stage. It may modify instruction in place: on
	// error, the instruction as the stage left it goes to the failure
	// handler, so containers recorded before the failure are torn
	// down.
	Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error)
}

// Env is what every stage needs from the process. Built once at
// startup.
type Env struct {
	Config  *config.Config
	Store   store.Store
	LiveLog livelog.Cache
	Docker  *docker.Manager

	// GitHub creates API clients for each build's access token.
	GitHub github.Factory

	// Reporter sends commit statuses. Nil disables reporting.
	Reporter *report.Reporter

	// Agent receives each build's private key. Nil skips the agent.
	Agent sshkey.Agent

	Clock  clock.Clock
	Logger *slog.Logger
}

// Chain returns the stages of a build in order.
func Chain(env *Env) []Stage {
	return []Stage{
		NewProvisionKeys(env),
		NewPushDeployKey(env),
		NewRetrieve(env),
		NewLoadManifest(env),
		NewMaterializeScript(env),
		NewStartDependencies(env),
		NewRunBuild(env),
		NewStopDependencies(env),
	}
}

// Names returns the stage names in order. They key the stage queues.
func Names() []string {
	stages := Chain(&Env{})
	names := make([]string, len(stages))
	for index, stage := range stages {
		names[index] = stage.Name()
	}
	return names
}

func (env *Env) now() time.Time {
	if env.Clock == nil {
		return time.Now()
	}
	return env.Clock.Now()
}

func (env *Env) logger() *slog.Logger {
	if env.Logger == nil {
		return slog.Default()
	}
	return env.Logger
}

// report sends the build's commit status if a reporter is configured.
// The response is cached on the build, so callers persist afterwards.
func (env *Env) report(ctx context.Context, build *schema.Build, accessToken string) {
	if env.Reporter == nil {
		return
	}
	env.Reporter.Report(ctx, build, accessToken)
}

// streamOptions returns the streamer settings for a run bounded by
// timeout.
func (env *Env) streamOptions(timeout time.Duration) stream.Options {
	return stream.Options{
		ChunkSize: env.Config.Stream.ChunkSize,
		Timeout:   timeout,
		Clock:     env.Clock,
	}
}

// run starts command and streams its output into record until it
// exits or timeout elapses.
func (env *Env) run(ctx context.Context, record *Record, command *exec.Cmd, timeout time.Duration) (stream.Result, error) {
	process, err := proc.Start(command, proc.Options{})
	if err != nil {
		return stream.Result{ExitCode: -1}, err
	}
	return stream.Run(ctx, process, record, env.streamOptions(timeout))
}

// Kind classifies a JobError.
type Kind int

const (
	// Fatal errors are properties of the job: missing credentials, a
	// bad manifest, a failed clone. Retrying the job changes nothing.
	Fatal Kind = iota

	// Infrastructure errors come from the worker's surroundings: the
	// store or the filesystem.
	Infrastructure
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Infrastructure:
		return "infrastructure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// JobError is a stage failure that ends the build.
type JobError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *JobError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a JobError of kind Fatal.
func IsFatal(err error) bool {
	var jobError *JobError
	return errors.As(err, &jobError) && jobError.Kind == Fatal
}

// PanicError is a panic recovered from a stage.
type PanicError struct {
	Stage string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Stage, e.Value)
}

func fatal(stage string, err error) error {
	return &JobError{Stage: stage, Kind: Fatal, Err: err}
}

func infrastructure(stage string, err error) error {
	return &JobError{Stage: stage, Kind: Infrastructure, Err: err}
}

// require checks instruction fields on stage entry. A missing field is
// a broken job, not a broken worker.
func require(stage string, instruction *schema.Instruction, fields ...string) error {
	if err := schema.Require(instruction, fields...); err != nil {
		return fatal(stage, err)
	}
	return nil
}
