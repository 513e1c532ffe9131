// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

func TestFailureHandlerRecordsStageError(t *testing.T) {
	h := newHarness(t)
	instruction := h.seed(t, "git@github.com:acme/widget.git")

	h.handler.Handle(context.Background(), instruction, fatal("retrieve", errors.New("git clone exited with status 128")))

	build := h.build(t)
	if build.Status != schema.StatusFailed {
		t.Errorf("status = %s, want failed", build.Status)
	}
	if !strings.HasSuffix(build.Stdout, "retrieve failed: git clone exited with status 128\n") {
		t.Errorf("stdout = %q", build.Stdout)
	}
	if build.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestFailureHandlerAppendsPanicStack(t *testing.T) {
	h := newHarness(t)
	instruction := h.seed(t, "git@github.com:acme/widget.git")

	h.handler.Handle(context.Background(), instruction, &PanicError{
		Stage: "load_manifest",
		Value: "index out of range",
		Stack: []byte("goroutine 7 [running]:\nmain.explode()\n"),
	})

	stdout := h.build(t).Stdout
	if !strings.Contains(stdout, "load_manifest failed: panic: index out of range\ngoroutine 7 [running]:") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestFailureHandlerTeardownFailureIsSecondary(t *testing.T) {
	h := newHarness(t)
	h.engine.failRemove = true
	instruction := h.seed(t, "git@github.com:acme/widget.git")
	id, err := h.engine.CreateContainer(context.Background(), dockerSpec("cache"))
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	instruction.Dependencies = []schema.DependencyContainer{{Image: "redis:alpine", Hostname: "cache", ContainerID: id, Name: "cache"}}

	h.handler.Handle(context.Background(), instruction, fatal("run_build", errors.New("daemon unreachable")))

	build := h.build(t)
	if build.Status != schema.StatusFailed {
		t.Errorf("status = %s, want failed", build.Status)
	}
	first := strings.Index(build.Stdout, "run_build failed: daemon unreachable")
	second := strings.Index(build.Stdout, "cleanup after failure also failed: ")
	if first < 0 || second < 0 || second < first {
		t.Errorf("original error must come first, then the cleanup error:\n%s", build.Stdout)
	}
	if !strings.Contains(build.Stdout, "failed to remove container cache") {
		t.Errorf("stdout = %q", build.Stdout)
	}
	if build.DockerStatus == "" {
		t.Error("teardown failure not registered as docker status")
	}
}

func TestFailureHandlerKeepsTerminalStatus(t *testing.T) {
	h := newHarness(t)
	instruction := h.seed(t, "git@github.com:acme/widget.git")
	build := h.build(t)
	build.Status = schema.StatusSucceeded
	if err := h.store.SaveBuild(context.Background(), build); err != nil {
		t.Fatalf("SaveBuild: %v", err)
	}

	h.handler.Handle(context.Background(), instruction, infrastructure("stop_dependencies", errors.New("store unavailable")))

	build = h.build(t)
	if build.Status != schema.StatusSucceeded {
		t.Errorf("status = %s, want succeeded to stand", build.Status)
	}
	if !strings.Contains(build.Stdout, "stop_dependencies failed: store unavailable") {
		t.Errorf("stdout = %q", build.Stdout)
	}
}

func TestFailureHandlerWithoutBuildStillTearsDown(t *testing.T) {
	h := newHarness(t)
	id, err := h.engine.CreateContainer(context.Background(), dockerSpec("cache"))
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	instruction := &schema.Instruction{
		BuildID:      "missing",
		Dependencies: []schema.DependencyContainer{{ContainerID: id, Name: "cache"}},
	}

	h.handler.Handle(context.Background(), instruction, errors.New("boom"))

	if count := h.engine.count(); count != 0 {
		t.Errorf("%d containers left", count)
	}
}

func TestFailureHandlerNilInstruction(t *testing.T) {
	h := newHarness(t)
	h.handler.Handle(context.Background(), nil, errors.New("boom"))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err     error
		stage   string
		message string
	}{
		{fatal("retrieve", errors.New("clone failed")), "retrieve", "clone failed"},
		{&PanicError{Stage: "run_build", Value: "nil map"}, "run_build", "panic: nil map"},
		{errors.New("plain"), "build", "plain"},
	}
	for _, test := range tests {
		stage, message := describe(test.err)
		if stage != test.stage || message != test.message {
			t.Errorf("describe(%v) = %q, %q; want %q, %q", test.err, stage, message, test.stage, test.message)
		}
	}
}
