// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for source
// retrieval. All commands against an existing checkout target it via
// the -C flag, which is automatically injected by Repository methods.
//
// Clone and checkout are returned as unstarted commands rather than
// run here, so the caller can stream their output under a timeout.
// Both authenticate over SSH with the builder's deploy key through
// GIT_SSH_COMMAND.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Repository represents a git checkout at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory; callers must always specify which repository
// they mean.
type Repository struct {
	dir       string
	binary    string
	sshBinary string
	keyPath   string
}

// Option configures a Repository.
type Option func(*Repository)

// WithBinary selects the git executable. Defaults to "git" on PATH.
func WithBinary(path string) Option {
	return func(r *Repository) {
		if path != "" {
			r.binary = path
		}
	}
}

// WithSSHKey authenticates remote operations with the private key at
// keyPath, using sshBinary (default "ssh") as the transport. Host key
// checking is disabled: build workers clone from hosts they have never
// seen and have no known_hosts to maintain.
func WithSSHKey(sshBinary, keyPath string) Option {
	return func(r *Repository) {
		if sshBinary != "" {
			r.sshBinary = sshBinary
		}
		r.keyPath = keyPath
	}
}

// NewRepository returns a Repository targeting the given directory.
// The directory need not exist yet when the first operation is a
// clone.
func NewRepository(dir string, options ...Option) *Repository {
	repository := &Repository{dir: dir, binary: "git", sshBinary: "ssh"}
	for _, option := range options {
		option(repository)
	}
	return repository
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Environ returns the environment for git subprocesses: the current
// environment plus GIT_SSH_COMMAND when an SSH key is configured.
func (r *Repository) Environ() []string {
	environ := os.Environ()
	if r.keyPath == "" {
		return environ
	}
	return append(environ, fmt.Sprintf("GIT_SSH_COMMAND=%s -o StrictHostKeyChecking=no -i %s", r.sshBinary, r.keyPath))
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := r.Command(ctx, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, Stderr, and
// SysProcAttr before starting the process. The -C flag targeting
// this repository is automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	command := exec.CommandContext(ctx, r.binary, fullArgs...)
	command.Env = r.Environ()
	return command
}

// CloneCommand returns "git clone -b <branch> <uri> <dir>". It does not
// use -C: the target directory is the clone's destination.
func (r *Repository) CloneCommand(ctx context.Context, uri, branch string) *exec.Cmd {
	command := exec.CommandContext(ctx, r.binary, "clone", "-b", branch, uri, r.dir)
	command.Env = r.Environ()
	return command
}

// CheckoutCommand returns "git checkout <commit>" in this repository.
func (r *Repository) CheckoutCommand(ctx context.Context, commit string) *exec.Cmd {
	return r.Command(ctx, "checkout", commit)
}

// ShowHead returns the output of "git show HEAD": the header, message,
// and diff of the checked-out commit.
func (r *Repository) ShowHead(ctx context.Context) (string, error) {
	return r.Run(ctx, "show", "HEAD")
}
