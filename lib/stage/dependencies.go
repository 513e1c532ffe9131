// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

// StartDependencies starts the manifest's sidecar containers. Each
// container is recorded on the instruction as soon as it exists, so a
// failure partway through still tears down what was started.
type StartDependencies struct {
	env *Env
}

// NewStartDependencies creates the dependency start stage.
func NewStartDependencies(env *Env) *StartDependencies {
	return &StartDependencies{env: env}
}

func (*StartDependencies) Name() string { return "start_dependencies" }

func (s *StartDependencies) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID", "Manifest"); err != nil {
		return nil, err
	}
	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	if err := record.SetStatus(schema.StatusRunning); err != nil {
		return nil, fatal(s.Name(), err)
	}

	dependencies := instruction.Manifest.Dependencies
	if len(dependencies) == 0 {
		record.Println("no dependencies to start")
		if err := persist(ctx, s.Name(), record); err != nil {
			return nil, err
		}
		return instruction, nil
	}

	logger := s.env.logger().With(attrs(s.Name(), instruction)...)
	for _, dependency := range dependencies {
		record.Println("starting dependency %s (%s)", dependency.Hostname, dependency.Image)
		handle, err := s.env.Docker.StartDependency(ctx, dependency, record)
		if handle != nil {
			instruction.Dependencies = append(instruction.Dependencies, *handle)
		}
		if err != nil {
			record.Println("failed to start dependency %s: %v", dependency.Hostname, err)
			if persistErr := persist(ctx, s.Name(), record); persistErr != nil {
				return nil, persistErr
			}
			return nil, fatal(s.Name(), fmt.Errorf("starting dependency %s: %w", dependency.Hostname, err))
		}
		logger.Info("dependency running", "container", handle.Name, "image", handle.Image)
		record.Println("successfully running as %s", handle.Name)
		if err := persist(ctx, s.Name(), record); err != nil {
			return nil, err
		}
	}

	record.Println("waiting for next step...")
	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}

// containers returns every container the instruction owns.
func containers(instruction *schema.Instruction) []schema.DependencyContainer {
	owned := append([]schema.DependencyContainer(nil), instruction.Dependencies...)
	if instruction.BuildContainer != nil {
		owned = append(owned, *instruction.BuildContainer)
	}
	return owned
}

// StopDependencies stops and removes the build's containers. Removal
// failures are recorded on the build and otherwise ignored. With
// nothing to stop, the instruction passes through untouched.
type StopDependencies struct {
	env *Env
}

// NewStopDependencies creates the teardown stage.
func NewStopDependencies(env *Env) *StopDependencies {
	return &StopDependencies{env: env}
}

func (*StopDependencies) Name() string { return "stop_dependencies" }

func (s *StopDependencies) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID"); err != nil {
		return nil, err
	}
	defer s.env.expireLive(ctx, instruction.BuildID)

	owned := containers(instruction)
	if len(owned) == 0 {
		return instruction, nil
	}

	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	record.Println("stopping %d container(s)...", len(owned))
	if err := s.env.Docker.Teardown(ctx, owned, record); err != nil {
		s.env.logger().Warn("teardown incomplete", append(attrs(s.Name(), instruction), "error", err)...)
	}
	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}
