// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/buildwright/lib/schema"
)

// LoadManifest reads the build manifest from the checkout. A
// repository without one is built with the builder's own script.
type LoadManifest struct {
	env *Env
}

// NewLoadManifest creates the manifest stage.
func NewLoadManifest(env *Env) *LoadManifest {
	return &LoadManifest{env: env}
}

func (*LoadManifest) Name() string { return "load_manifest" }

func (s *LoadManifest) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID", "BuilderID", "BuildDir"); err != nil {
		return nil, err
	}
	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	if err := record.SetStatus(schema.StatusChecking); err != nil {
		return nil, fatal(s.Name(), err)
	}

	filename := s.env.Config.Manifest.Filename
	manifest, found, err := readManifest(filepath.Join(instruction.BuildDir, filename))
	switch {
	case err != nil:
		record.Println("%v", err)
		if persistErr := persist(ctx, s.Name(), record); persistErr != nil {
			return nil, persistErr
		}
		return nil, fatal(s.Name(), err)
	case !found:
		record.Println("no %s found, using the builder's shell script", filename)
		manifest = &schema.Manifest{Shell: instruction.ShellScript}
	case manifest.Shell == "":
		manifest.Shell = instruction.ShellScript
	}

	if strings.TrimSpace(manifest.Shell) == "" {
		err := fmt.Errorf("nothing to run: %s has no shell and the builder has no script", filename)
		record.Println("%v", err)
		if persistErr := persist(ctx, s.Name(), record); persistErr != nil {
			return nil, persistErr
		}
		return nil, fatal(s.Name(), err)
	}

	if found {
		if err := s.saveScript(ctx, instruction.BuilderID, manifest.Shell); err != nil {
			return nil, infrastructure(s.Name(), err)
		}
	}
	instruction.Manifest = manifest

	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}

// saveScript records the manifest's script on the builder.
func (s *LoadManifest) saveScript(ctx context.Context, builderID, script string) error {
	builder, err := s.env.Store.Builder(ctx, builderID)
	if err != nil {
		return fmt.Errorf("loading builder %s: %w", builderID, err)
	}
	if builder.ShellScript == script {
		return nil
	}
	builder.ShellScript = script
	return s.env.Store.SaveBuilder(ctx, builder)
}

// readManifest parses the manifest at path. found is false when the
// file does not exist.
func readManifest(path string) (manifest *schema.Manifest, found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	manifest = &schema.Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, true, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	for index, dependency := range manifest.Dependencies {
		if dependency.Image == "" || dependency.Hostname == "" {
			return nil, true, fmt.Errorf("parsing %s: dependency %d needs both image and hostname", filepath.Base(path), index)
		}
	}
	return manifest, true, nil
}

// scriptName is the file the build script is written to.
func scriptName(slug string) string {
	return ".buildwright." + slug + ".shell.sh"
}

// MaterializeScript writes the manifest's shell body as an executable
// script in the build directory.
type MaterializeScript struct {
	env *Env
}

// NewMaterializeScript creates the script stage.
func NewMaterializeScript(env *Env) *MaterializeScript {
	return &MaterializeScript{env: env}
}

func (*MaterializeScript) Name() string { return "materialize_script" }

func (s *MaterializeScript) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID", "Slug", "BuildDir", "Manifest"); err != nil {
		return nil, err
	}
	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	if err := record.SetStatus(schema.StatusPreparing); err != nil {
		return nil, fatal(s.Name(), err)
	}

	script := "#!/bin/sh\nset -e\n" + strings.TrimRight(instruction.Manifest.Shell, "\n") + "\n"
	path := filepath.Join(instruction.BuildDir, scriptName(instruction.Slug))
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return nil, infrastructure(s.Name(), fmt.Errorf("writing build script: %w", err))
	}
	// WriteFile honors the umask; the script must be executable.
	if err := os.Chmod(path, 0o755); err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	instruction.ScriptPath = path

	record.Println("build script:")
	record.Println(rule)
	record.AppendStdout(script)
	record.Println(rule)

	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}
