// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

// FailureHandler records a stage failure on the build and tears down
// whatever containers the build still owns.
type FailureHandler struct {
	env *Env
}

// NewFailureHandler creates a FailureHandler.
func NewFailureHandler(env *Env) *FailureHandler {
	return &FailureHandler{env: env}
}

// Handle marks the build failed, appends the error to its stdout, and
// tears down the instruction's containers. A teardown failure is
// appended as a second line and never replaces the original error.
// Handle does not return errors and does not panic: the worker must go
// on to the next job whatever happened here.
func (h *FailureHandler) Handle(ctx context.Context, instruction *schema.Instruction, failure error) {
	logger := h.env.logger()
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("failure handler panicked",
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
		}
	}()
	if instruction == nil {
		logger.Error("stage failed without an instruction", "error", failure)
		return
	}

	stageName, message := describe(failure)
	logger = logger.With("build_id", instruction.BuildID, "stage", stageName)
	logger.Error("stage failed", "error", failure, "fatal", IsFatal(failure))

	record, err := h.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		logger.Error("cannot record failure", "error", err)
		// Containers are torn down even when the build is gone.
		record = &Record{
			Build: &schema.Build{ID: instruction.BuildID, BuilderID: instruction.BuilderID},
			env:   h.env,
		}
		h.teardown(ctx, record, instruction)
		return
	}

	if err := record.SetStatus(schema.StatusFailed); err != nil && !errors.Is(err, schema.ErrTerminalStatus) {
		logger.Error("cannot mark build failed", "error", err)
	}
	if record.Build.FinishedAt.IsZero() {
		record.Build.FinishedAt = h.env.now()
	}
	record.Println("%s failed: %s", stageName, message)
	var panicError *PanicError
	if errors.As(failure, &panicError) {
		record.AppendStdout(string(panicError.Stack))
	}

	h.teardown(ctx, record, instruction)

	h.env.report(ctx, record.Build, instruction.AccessToken)
	if err := record.Persist(ctx); err != nil {
		logger.Error("cannot persist failed build", "error", err)
	}
	h.env.expireLive(ctx, instruction.BuildID)
}

func (h *FailureHandler) teardown(ctx context.Context, record *Record, instruction *schema.Instruction) {
	owned := containers(instruction)
	if len(owned) == 0 || h.env.Docker == nil {
		return
	}
	if err := h.env.Docker.Teardown(ctx, owned, record); err != nil {
		record.Println("cleanup after failure also failed: %v", err)
		h.env.logger().Warn("teardown after failure incomplete",
			"build_id", instruction.BuildID,
			"error", err,
		)
	}
}

// describe splits a stage failure into the stage name and the message
// shown to operators.
func describe(failure error) (stageName, message string) {
	var jobError *JobError
	if errors.As(failure, &jobError) {
		return jobError.Stage, jobError.Err.Error()
	}
	var panicError *PanicError
	if errors.As(failure, &panicError) {
		return panicError.Stage, fmt.Sprintf("panic: %v", panicError.Value)
	}
	if failure == nil {
		return "build", "unknown error"
	}
	return "build", failure.Error()
}
