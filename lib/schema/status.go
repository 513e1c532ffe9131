// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
)

// BuildStatus is the lifecycle state of a Build.
type BuildStatus string

const (
	// StatusReady is the initial state of a freshly created Build.
	StatusReady BuildStatus = "ready"

	// StatusScheduled means the Instruction is on the first stage queue.
	StatusScheduled BuildStatus = "scheduled"

	// StatusRetrieving covers cloning and checking out the source.
	StatusRetrieving BuildStatus = "retrieving"

	// StatusChecking covers locating and parsing the build manifest.
	StatusChecking BuildStatus = "checking"

	// StatusPreparing covers writing the build script.
	StatusPreparing BuildStatus = "preparing"

	// StatusRunning covers dependency start and the build itself.
	StatusRunning BuildStatus = "running"

	// StatusSucceeded is terminal: the build script exited 0.
	StatusSucceeded BuildStatus = "succeeded"

	// StatusFailed is terminal: a stage failed or the script exited
	// nonzero.
	StatusFailed BuildStatus = "failed"
)

// ErrTerminalStatus is returned by Build.SetStatus when the build has
// already reached succeeded or failed.
var ErrTerminalStatus = errors.New("build status is terminal")

// ErrBackwardStatus is returned by Build.SetStatus for a move to an
// earlier status than the current one.
var ErrBackwardStatus = errors.New("build status cannot move backward")

type transition struct{ from, to BuildStatus }

// backwardEdges are the backward moves that are allowed. Key
// provisioning announces running before the source is retrieved.
var backwardEdges = map[transition]bool{
	{StatusRunning, StatusRetrieving}: true,
}

// statusOrder is the expected forward order of build statuses.
var statusOrder = map[BuildStatus]int{
	StatusReady:      0,
	StatusScheduled:  1,
	StatusRetrieving: 2,
	StatusChecking:   3,
	StatusPreparing:  4,
	StatusRunning:    5,
	StatusSucceeded:  6,
	StatusFailed:     6,
}

// Valid reports whether s is one of the known statuses.
func (s BuildStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Terminal reports whether s is succeeded or failed.
func (s BuildStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Rank returns the position of s in the forward status order, or -1
// for an unknown status.
func (s BuildStatus) Rank() int {
	rank, ok := statusOrder[s]
	if !ok {
		return -1
	}
	return rank
}

// checkTransition validates a status change. Terminal statuses are
// absorbing; setting the current status again is a no-op. Failed is
// reachable from every non-terminal status, and otherwise the rank must
// not decrease outside backwardEdges.
func checkTransition(from, to BuildStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown build status %q", to)
	}
	if from == to {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrTerminalStatus, from, to)
	}
	if to == StatusFailed || backwardEdges[transition{from, to}] {
		return nil
	}
	if to.Rank() < from.Rank() {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrBackwardStatus, from, to)
	}
	return nil
}
