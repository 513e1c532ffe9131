// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/buildwright/lib/docker"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/stream"
)

// RunBuild runs the build script, natively when the manifest names no
// image and in a container built from the image otherwise. A script
// that fails is a failed build, not a failed stage: the instruction
// still moves on to teardown.
type RunBuild struct {
	env *Env
}

// NewRunBuild creates the build execution stage.
func NewRunBuild(env *Env) *RunBuild {
	return &RunBuild{env: env}
}

func (*RunBuild) Name() string { return "run_build" }

func (s *RunBuild) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID", "Slug", "BuildDir", "ScriptPath", "Manifest"); err != nil {
		return nil, err
	}
	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	if err := record.SetStatus(schema.StatusRunning); err != nil {
		return nil, fatal(s.Name(), err)
	}
	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}

	options := s.env.streamOptions(s.env.Config.Timeout(instruction.BuildTimeout))
	containerized := instruction.Manifest.Image != ""

	var result stream.Result
	if containerized {
		result, err = s.runContainer(ctx, record, instruction, options)
	} else {
		result, err = s.runNative(ctx, record, instruction, options)
	}
	if err != nil {
		return nil, err
	}

	status := schema.StatusSucceeded
	if result.ExitCode != 0 {
		status = schema.StatusFailed
	}
	record.Build.SetExitCode(result.ExitCode)
	if err := record.SetStatus(status); err != nil {
		return nil, fatal(s.Name(), err)
	}
	record.Build.FinishedAt = s.env.now()

	switch {
	case !containerized:
		record.Println("build %s at %s UTC", status, record.Build.FinishedAt.UTC().Format(timestampLayout))
	case status == schema.StatusSucceeded:
		record.Println("build succeeded :)")
	default:
		record.Println("build failed :'(")
	}

	s.env.logger().Info("build finished", append(attrs(s.Name(), instruction),
		"status", string(status),
		"exit_code", result.ExitCode,
		"timed_out", result.TimedOut,
	)...)
	s.env.report(ctx, record.Build, instruction.AccessToken)
	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}

func (s *RunBuild) runNative(ctx context.Context, record *Record, instruction *schema.Instruction, options stream.Options) (stream.Result, error) {
	command := exec.Command(instruction.ScriptPath)
	command.Dir = instruction.BuildDir
	command.Env = append(os.Environ(), environ(instruction.Manifest.Environment)...)

	result, err := s.env.run(ctx, record, command, options.Timeout)
	if err != nil {
		record.Println("%v", err)
		if persistErr := persist(ctx, s.Name(), record); persistErr != nil {
			return result, persistErr
		}
		return result, fatal(s.Name(), err)
	}
	return result, nil
}

func (s *RunBuild) runContainer(ctx context.Context, record *Record, instruction *schema.Instruction, options stream.Options) (stream.Result, error) {
	manifest := instruction.Manifest
	commit := instruction.Commit
	if commit == "" && instruction.CommitInfo != nil {
		commit = instruction.CommitInfo.Hash
	}
	name := docker.ImageName(instruction.Slug, commit)

	digest, err := s.env.Docker.BuildImage(ctx, docker.ImageRequest{
		Dir:       instruction.BuildDir,
		BaseImage: manifest.Image,
		Script:    filepath.Base(instruction.ScriptPath),
		Tag:       name,
	}, record)
	if err != nil {
		return stream.Result{}, s.containerFailure(ctx, record, "building image "+name, err)
	}
	instruction.ImageDigest = digest
	if err := persist(ctx, s.Name(), record); err != nil {
		return stream.Result{}, err
	}

	handle, result, err := s.env.Docker.RunBuild(ctx, docker.RunRequest{
		Name:         name,
		Image:        name,
		Dir:          instruction.BuildDir,
		Env:          manifest.Environment,
		Dependencies: instruction.Dependencies,
	}, record, record, options)
	if handle != nil {
		instruction.BuildContainer = handle
	}
	if err != nil {
		return result, s.containerFailure(ctx, record, "running container "+name, err)
	}
	return result, nil
}

func (s *RunBuild) containerFailure(ctx context.Context, record *Record, operation string, err error) error {
	err = fmt.Errorf("%s: %w", operation, err)
	record.Println("%v", err)
	if persistErr := persist(ctx, s.Name(), record); persistErr != nil {
		return persistErr
	}
	return fatal(s.Name(), err)
}

// environ formats a manifest environment as sorted KEY=value pairs.
func environ(environment map[string]string) []string {
	pairs := make([]string, 0, len(environment))
	for key, value := range environment {
		pairs = append(pairs, key+"="+value)
	}
	slices.Sort(pairs)
	return pairs
}
