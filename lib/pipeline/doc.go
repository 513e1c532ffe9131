// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline connects build stages with durable queues and runs
// one worker per stage.
//
// For N stages there are N queues. Queue i feeds stage i; a stage's
// result is pushed onto queue i+1, and the last stage's result is
// dropped. A delivery is acknowledged only after its result has been
// pushed downstream or its failure has been handed to the failure
// handler, so a worker that dies mid-stage leaves the instruction in
// the queue's processing list for [Orchestrator.Recover] to put back.
//
// Every stage invocation is counted, timed, and traced:
//
//   - buildwright_stage_jobs_total{stage,outcome}
//   - buildwright_stage_duration_seconds{stage}
//   - buildwright_stage_in_flight{stage}
//   - one span per invocation, "stage.<name>", with a build.id attribute
//
// A panic in a stage is recovered into a [stage.PanicError] and handled
// like any other failure. Queue errors are not: they stop the worker
// and make [Orchestrator.Run] return.
package pipeline
