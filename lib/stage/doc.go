// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stage implements the eight steps of a build and the failure
// handler that cleans up after any of them.
//
// A build moves through the stages in a fixed order:
//
//	ProvisionKeys → PushDeployKey → Retrieve → LoadManifest →
//	MaterializeScript → StartDependencies → RunBuild → StopDependencies
//
// Each stage takes the [schema.Instruction] produced by its
// predecessor, checks the fields it needs with [schema.Require], does
// its work, and returns the instruction for the next stage. A stage
// never forwards anything itself; the orchestrator in lib/pipeline
// owns the queues.
//
// Stages share one [Env] built at process start. Nothing in this
// package reads process-wide state.
//
// Failures come back as [*JobError]. The orchestrator hands every
// failure, along with the instruction as the stage left it, to
// [FailureHandler.Handle], which marks the build failed and tears down
// any containers the instruction recorded.
//
// The build record is the operator-facing narrative of the build.
// [Record] wraps it so that every line a stage writes is also mirrored
// to the live-log cache and every persist mirrors the build status
// onto its builder.
package stage
