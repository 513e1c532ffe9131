// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/buildwright/lib/clock"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/stream"
	"github.com/bureau-foundation/buildwright/lib/testutil"
)

func TestImageName(t *testing.T) {
	if got := ImageName("widget", "0123456789abcdef"); got != "widget_01234567" {
		t.Errorf("ImageName = %q", got)
	}
	if got := ImageName("widget", "abc"); got != "widget_abc" {
		t.Errorf("ImageName with short commit = %q", got)
	}
}

func TestDockerfile(t *testing.T) {
	want := "FROM golang:1.25\nCOPY . /workspace\nWORKDIR /workspace\nCMD [\"sh\", \".buildwright.widget.shell.sh\"]\n"
	if got := Dockerfile("golang:1.25", ".buildwright.widget.shell.sh"); got != want {
		t.Errorf("Dockerfile =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteContextIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "main.go", "package main\n")
	testutil.WriteFile(t, dir, "sub/data.txt", "data\n")

	var first, second bytes.Buffer
	digest1, err := writeContext(&first, dir)
	if err != nil {
		t.Fatalf("writeContext: %v", err)
	}
	// Touching a file changes its mtime but not the digest.
	now := time.Now().Add(time.Hour)
	os.Chtimes(filepath.Join(dir, "main.go"), now, now)
	digest2, err := writeContext(&second, dir)
	if err != nil {
		t.Fatalf("writeContext: %v", err)
	}
	if digest1 != digest2 {
		t.Errorf("digest changed with mtime: %s vs %s", digest1, digest2)
	}
	if len(digest1) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(digest1))
	}

	files, err := readContext(&first)
	if err != nil {
		t.Fatalf("readContext: %v", err)
	}
	if files["sub/data.txt"] != "data\n" || files["main.go"] != "package main\n" {
		t.Errorf("context files = %v", files)
	}

	testutil.WriteFile(t, dir, "main.go", "package other\n")
	digest3, err := writeContext(&bytes.Buffer{}, dir)
	if err != nil {
		t.Fatalf("writeContext: %v", err)
	}
	if digest3 == digest1 {
		t.Error("digest did not change with content")
	}
}

func TestBuildImage(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "main.go", "package main\n")
	engine := newFakeEngine()
	engine.buildOutput = `{"stream":"Step 1/4 : FROM golang:1.25\n"}` + "\n" + `{"aux":{"ID":"sha256:abc"}}` + "\n"
	manager := newTestManager(engine, clock.Real())
	out := &recordingOutput{}

	digest, err := manager.BuildImage(context.Background(), ImageRequest{
		Dir:       dir,
		BaseImage: "golang:1.25",
		Script:    "build.sh",
		Tag:       "widget_01234567",
	}, out)
	if err != nil {
		t.Fatalf("BuildImage: %v", err)
	}
	if engine.buildSpec.Labels[ContextDigestLabel] != digest {
		t.Errorf("label = %q, want %q", engine.buildSpec.Labels[ContextDigestLabel], digest)
	}
	if engine.buildSpec.Dockerfile != DockerfileName || engine.buildSpec.Tags[0] != "widget_01234567" {
		t.Errorf("build spec = %+v", engine.buildSpec)
	}
	if !strings.Contains(engine.builtContext[DockerfileName], "FROM golang:1.25") {
		t.Errorf("context Dockerfile = %q", engine.builtContext[DockerfileName])
	}
	if !strings.Contains(out.Stdout(), "Step 1/4 : FROM golang:1.25\n") {
		t.Errorf("stdout = %q", out.Stdout())
	}
}

func TestBuildImageReportsError(t *testing.T) {
	dir := t.TempDir()
	engine := newFakeEngine()
	engine.buildOutput = `{"errorDetail":{"message":"no such image"},"error":"no such image"}` + "\n"
	manager := newTestManager(engine, clock.Real())

	_, err := manager.BuildImage(context.Background(), ImageRequest{Dir: dir, BaseImage: "nope", Script: "s.sh", Tag: "t"}, &recordingOutput{})
	if err == nil || !strings.Contains(err.Error(), "no such image") {
		t.Fatalf("BuildImage error = %v", err)
	}
}

func TestRunBuild(t *testing.T) {
	engine := newFakeEngine()
	engine.logs = "compiling\nok\n"
	engine.exitCode = 2
	manager := newTestManager(engine, clock.Real())
	out := &recordingOutput{}

	handle, result, err := manager.RunBuild(context.Background(), RunRequest{
		Name:  "widget_01234567",
		Image: "widget_01234567",
		Dir:   "/builds/widget",
		Env:   map[string]string{"CI": "true"},
		Dependencies: []schema.DependencyContainer{
			{Name: "cache", Hostname: "cache", ContainerID: "c9"},
		},
	}, out, out, stream.Options{Timeout: time.Minute})
	if err != nil {
		t.Fatalf("RunBuild: %v", err)
	}
	if handle == nil || handle.Name != "widget_01234567" {
		t.Fatalf("handle = %+v", handle)
	}
	if result.ExitCode != 2 || result.Output != "compiling\nok\n" {
		t.Errorf("result = %+v", result)
	}
	spec := engine.created[0]
	if spec.Binds[0] != "/builds/widget:/workspace:rw" {
		t.Errorf("binds = %v", spec.Binds)
	}
	if len(spec.Links) != 1 || spec.Links[0] != "cache:cache" {
		t.Errorf("links = %v", spec.Links)
	}
	if spec.Env["CI"] != "true" {
		t.Errorf("env = %v", spec.Env)
	}
}

func TestRunBuildTimeoutStopsContainer(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	engine := newFakeEngine()
	engine.logs = "still going\n"
	engine.blockLogs = true
	manager := newTestManager(engine, fake)
	out := &recordingOutput{}

	type run struct {
		handle *schema.DependencyContainer
		result stream.Result
		err    error
	}
	done := make(chan run, 1)
	go func() {
		handle, result, err := manager.RunBuild(context.Background(), RunRequest{Name: "widget_0123", Image: "widget_0123", Dir: "/b"},
			out, out, stream.Options{Timeout: 5 * time.Minute})
		done <- run{handle, result, err}
	}()
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Minute)

	finished := testutil.RequireReceive(t, done, 5*time.Second, "waiting for timed-out build")
	if finished.err != nil {
		t.Fatalf("RunBuild: %v", finished.err)
	}
	if finished.result.ExitCode != stream.TimeoutExitCode {
		t.Errorf("ExitCode = %d, want %d", finished.result.ExitCode, stream.TimeoutExitCode)
	}
	if !strings.Contains(out.Stdout(), "Build timed out after 5m0s") {
		t.Errorf("stdout = %q", out.Stdout())
	}
	if !strings.Contains(strings.Join(engine.callLog(), "|"), "stop "+finished.handle.ContainerID) {
		t.Errorf("container was not stopped: %v", engine.callLog())
	}
}
