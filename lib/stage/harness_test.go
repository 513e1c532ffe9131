// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/bureau-foundation/buildwright/lib/clock"
	"github.com/bureau-foundation/buildwright/lib/config"
	"github.com/bureau-foundation/buildwright/lib/docker"
	"github.com/bureau-foundation/buildwright/lib/livelog"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/store"
)

type harness struct {
	env     *Env
	store   *store.Badger
	live    *livelog.Memory
	engine  *fakeEngine
	handler *FailureHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	badgerStore, err := store.OpenBadger(store.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { badgerStore.Close() })

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		Root:    root,
		Builds:  filepath.Join(root, "builds"),
		SSHKeys: filepath.Join(root, "keys"),
		Data:    filepath.Join(root, "data"),
	}
	cfg.Timeouts.Default = time.Minute

	engine := newFakeEngine()
	live := livelog.NewMemory()
	env := &Env{
		Config:  cfg,
		Store:   badgerStore,
		LiveLog: live,
		Docker: docker.NewManager(docker.ManagerConfig{
			Engine:            engine,
			ReadinessInterval: time.Millisecond,
			Clock:             clock.Real(),
		}),
		Clock: clock.Real(),
	}
	return &harness{
		env:     env,
		store:   badgerStore,
		live:    live,
		engine:  engine,
		handler: NewFailureHandler(env),
	}
}

// seed stores a builder and a scheduled build of it and returns the
// instruction a trigger would enqueue.
func (h *harness) seed(t *testing.T, gitURI string) *schema.Instruction {
	t.Helper()
	ctx := context.Background()
	private, public := generateKeyPair(t)
	builder := &schema.Builder{
		ID:          "builder-1",
		Name:        "Widget",
		GitURI:      gitURI,
		Branch:      "main",
		ShellScript: "echo from-builder",
		PrivateKey:  private,
		PublicKey:   public,
		Status:      schema.StatusScheduled,
	}
	if err := h.store.SaveBuilder(ctx, builder); err != nil {
		t.Fatalf("SaveBuilder: %v", err)
	}
	build := &schema.Build{
		ID:        "build-1",
		BuilderID: builder.ID,
		Status:    schema.StatusScheduled,
		GitURI:    gitURI,
		Branch:    "main",
	}
	if err := h.store.SaveBuild(ctx, build); err != nil {
		t.Fatalf("SaveBuild: %v", err)
	}
	return &schema.Instruction{
		BuildID:     build.ID,
		BuilderID:   builder.ID,
		Name:        builder.Name,
		Slug:        builder.Slug(),
		GitURI:      gitURI,
		Branch:      "main",
		ShellScript: builder.ShellScript,
		PrivateKey:  private,
		PublicKey:   public,
	}
}

// run drives the instruction through stages the way the orchestrator
// does: in order, stopping at the first failure and handing it to the
// failure handler. Returns the names of the stages that completed.
func (h *harness) run(t *testing.T, instruction *schema.Instruction, stages []Stage) []string {
	t.Helper()
	ctx := context.Background()
	var completed []string
	for _, stage := range stages {
		next, err := stage.Process(ctx, instruction)
		if err != nil {
			h.handler.Handle(ctx, instruction, err)
			return completed
		}
		completed = append(completed, stage.Name())
		instruction = next
	}
	return completed
}

func (h *harness) build(t *testing.T) *schema.Build {
	t.Helper()
	build, err := h.store.Build(context.Background(), "build-1")
	if err != nil {
		t.Fatalf("loading build: %v", err)
	}
	return build
}

func (h *harness) builder(t *testing.T) *schema.Builder {
	t.Helper()
	builder, err := h.store.Builder(context.Background(), "builder-1")
	if err != nil {
		t.Fatalf("loading builder: %v", err)
	}
	return builder
}

func generateKeyPair(t *testing.T) (string, string) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(private, "test")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	return string(pem.EncodeToMemory(block)), string(ssh.MarshalAuthorizedKey(sshPublic))
}

// sourceRepo creates a repository on branch "main" whose single commit
// holds files.
func sourceRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "source")
	gitEnv := append(os.Environ(),
		"GIT_AUTHOR_NAME=Ada Lovelace",
		"GIT_AUTHOR_EMAIL=ada@example.com",
		"GIT_COMMITTER_NAME=Ada Lovelace",
		"GIT_COMMITTER_EMAIL=ada@example.com",
	)
	run := func(args ...string) {
		t.Helper()
		command := exec.Command("git", args...)
		command.Env = gitEnv
		if output, err := command.CombinedOutput(); err != nil {
			t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
		}
	}

	run("init", "-b", "main", dir)
	files["README"] = "widget\n"
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	run("-C", dir, "add", ".")
	run("-C", dir, "commit", "-m", "add widget")
	return dir
}

func requireKind(t *testing.T, err error, kind Kind) *JobError {
	t.Helper()
	var jobError *JobError
	if !errors.As(err, &jobError) {
		t.Fatalf("error = %v, want *JobError", err)
	}
	if jobError.Kind != kind {
		t.Fatalf("error kind = %s, want %s (%v)", jobError.Kind, kind, err)
	}
	return jobError
}
