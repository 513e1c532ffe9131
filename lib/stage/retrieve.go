// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/buildwright/lib/git"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

// Retrieve clones the repository into the builder's build directory,
// checks out the requested commit, and records the commit's metadata
// on the build.
//
// The build directory is per builder, not per build: two builds of
// one builder running at once share it.
type Retrieve struct {
	env *Env
}

// NewRetrieve creates the source retrieval stage.
func NewRetrieve(env *Env) *Retrieve {
	return &Retrieve{env: env}
}

func (*Retrieve) Name() string { return "retrieve" }

func (s *Retrieve) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID", "Slug", "GitURI", "Branch", "PrivateKeyPath"); err != nil {
		return nil, err
	}
	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	if err := record.SetStatus(schema.StatusRetrieving); err != nil {
		return nil, fatal(s.Name(), err)
	}
	record.Println("retrieving repo...")
	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.env.Config.Paths.Builds, instruction.Slug)
	if err := os.RemoveAll(dir); err != nil {
		return nil, infrastructure(s.Name(), fmt.Errorf("clearing %s: %w", dir, err))
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	instruction.BuildDir = dir

	repository := git.NewRepository(dir,
		git.WithBinary(s.env.Config.Git.Binary),
		git.WithSSHKey(s.env.Config.Git.SSHBinary, instruction.PrivateKeyPath),
	)
	timeout := s.env.Config.Timeout(instruction.CloneTimeout)

	if err := s.runGit(ctx, record, "clone", repository.CloneCommand(ctx, instruction.GitURI, instruction.Branch), timeout); err != nil {
		return nil, err
	}
	if instruction.Commit != "" {
		if err := s.runGit(ctx, record, "checkout", repository.CheckoutCommand(ctx, instruction.Commit), timeout); err != nil {
			return nil, err
		}
	}

	show, err := repository.ShowHead(ctx)
	if err != nil {
		record.Println("%v", err)
		if persistErr := persist(ctx, s.Name(), record); persistErr != nil {
			return nil, persistErr
		}
		return nil, fatal(s.Name(), err)
	}
	record.AppendStdout(show)
	if !strings.HasSuffix(show, "\n") {
		record.AppendStdout("\n")
	}

	commit := git.ParseCommit(show)
	if commit.Hash == "" {
		commit.Hash = instruction.Commit
	}
	instruction.CommitInfo = &commit
	if instruction.Commit == "" {
		instruction.Commit = commit.Hash
	}
	record.Build.Commit = commit.Hash
	record.Build.AuthorName = commit.AuthorName
	record.Build.AuthorEmail = commit.AuthorEmail
	record.Build.CommitMessage = commit.Message

	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}

// runGit streams a git command into the build. A nonzero exit,
// including a timeout, fails the build.
func (s *Retrieve) runGit(ctx context.Context, record *Record, operation string, command *exec.Cmd, timeout time.Duration) error {
	result, err := s.env.run(ctx, record, command, timeout)
	if err != nil {
		return fatal(s.Name(), fmt.Errorf("git %s: %w", operation, err))
	}
	if result.ExitCode != 0 {
		return fatal(s.Name(), fmt.Errorf("git %s exited with status %d", operation, result.ExitCode))
	}
	return nil
}
