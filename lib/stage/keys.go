// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/buildwright/lib/git"
	"github.com/bureau-foundation/buildwright/lib/github"
	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/sshkey"
)

// timestampLayout formats the start and finish banners.
const timestampLayout = "2006/01/02 15:04:05"

// ProvisionKeys writes the builder's SSH key pair to disk and loads the
// private key into the SSH agent. It is the first stage, so it also
// announces the build as running.
type ProvisionKeys struct {
	env *Env
}

// NewProvisionKeys creates the key provisioning stage.
func NewProvisionKeys(env *Env) *ProvisionKeys {
	return &ProvisionKeys{env: env}
}

func (*ProvisionKeys) Name() string { return "provision_keys" }

func (s *ProvisionKeys) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID", "BuilderID", "Slug"); err != nil {
		return nil, err
	}
	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}

	for _, key := range []struct {
		value string
		kind  string
	}{
		{instruction.PrivateKey, "private"},
		{instruction.PublicKey, "public"},
	} {
		if key.value != "" {
			continue
		}
		message := fmt.Sprintf("the builder %s does not have a %s key set", instruction.BuilderID, key.kind)
		record.Println("%s", message)
		if err := persist(ctx, s.Name(), record); err != nil {
			return nil, err
		}
		return nil, fatal(s.Name(), errors.New(message))
	}

	paths, err := sshkey.Write(s.env.Config.Paths.SSHKeys, instruction.Slug, instruction.PrivateKey, instruction.PublicKey)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	instruction.PrivateKeyPath = paths.Private
	instruction.PublicKeyPath = paths.Public

	logger := s.env.logger().With(attrs(s.Name(), instruction)...)
	if fingerprint, err := sshkey.Fingerprint(instruction.PublicKey); err != nil {
		logger.Warn("public key does not parse", "error", err)
	} else {
		logger.Info("provisioned deploy key", "fingerprint", fingerprint, "path", paths.Private)
	}
	s.addToAgent(record, instruction, logger)

	if err := record.SetStatus(schema.StatusRunning); err != nil {
		return nil, fatal(s.Name(), err)
	}
	record.Println("build started at %s UTC", s.env.now().UTC().Format(timestampLayout))
	s.env.report(ctx, record.Build, instruction.AccessToken)
	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}

// addToAgent loads the private key into the agent. A missing agent
// degrades to GIT_SSH_COMMAND with the key file, which the clone uses
// anyway.
func (s *ProvisionKeys) addToAgent(record *Record, instruction *schema.Instruction, logger *slog.Logger) {
	if s.env.Agent == nil {
		return
	}
	if err := s.env.Agent.Add(instruction.PrivateKey, "buildwright "+instruction.Slug); err != nil {
		logger.Warn("adding key to ssh agent failed", "error", err)
		record.Println("could not add the deploy key to the ssh agent: %v", err)
	}
}

// PushDeployKey registers the builder's public key as a read-only
// deploy key on the GitHub repository. Every failure here is degraded:
// the clone may still succeed if the key was registered earlier.
type PushDeployKey struct {
	env *Env
}

// NewPushDeployKey creates the deploy key stage.
func NewPushDeployKey(env *Env) *PushDeployKey {
	return &PushDeployKey{env: env}
}

func (*PushDeployKey) Name() string { return "push_deploy_key" }

func (s *PushDeployKey) Process(ctx context.Context, instruction *schema.Instruction) (*schema.Instruction, error) {
	if err := require(s.Name(), instruction, "BuildID", "GitURI", "PublicKey"); err != nil {
		return nil, err
	}
	record, err := s.env.openRecord(ctx, instruction.BuildID)
	if err != nil {
		return nil, infrastructure(s.Name(), err)
	}
	logger := s.env.logger().With(attrs(s.Name(), instruction)...)

	owner, repository, ok := git.ParseRepository(instruction.GitURI)
	switch {
	case !ok:
		logger.Info("not a github repository, skipping deploy key", "git_uri", instruction.GitURI)
		record.Println("%s is not a github repository, skipping deploy key", instruction.GitURI)
	case instruction.AccessToken == "":
		logger.Info("no access token, skipping deploy key")
		record.Println("no github access token, skipping deploy key")
	default:
		record.AppendStdout("pushing deploy key to github... ")
		key, err := s.push(ctx, instruction, owner, repository)
		if err != nil {
			record.AppendStdout(deployKeyFailure(err))
			if keyAlreadyRegistered(err) {
				logger.Info("deploy key already registered", "repository", owner+"/"+repository)
				record.Println("the key is already registered on github, continuing with it")
			} else {
				logger.Warn("deploy key push failed", "repository", owner+"/"+repository, "error", err)
			}
		} else {
			instruction.DeployKey = key.Raw
			record.Println("deploy key pushed to github successfully")
		}
	}

	if err := persist(ctx, s.Name(), record); err != nil {
		return nil, err
	}
	return instruction, nil
}

func (s *PushDeployKey) push(ctx context.Context, instruction *schema.Instruction, owner, repository string) (*github.DeployKey, error) {
	client, err := s.env.GitHub.Client(instruction.AccessToken)
	if err != nil {
		return nil, err
	}
	return client.CreateDeployKey(ctx, owner, repository, github.CreateDeployKeyRequest{
		Title:    "buildwright " + instruction.Name,
		Key:      strings.TrimSpace(instruction.PublicKey),
		ReadOnly: true,
	})
}

// keyAlreadyRegistered reports whether GitHub rejected the key because
// it is already a deploy key, typically from an earlier build.
func keyAlreadyRegistered(err error) bool {
	var apiError *github.APIError
	if !github.IsValidationFailed(err) || !errors.As(err, &apiError) {
		return false
	}
	return strings.Contains(apiError.Message+" "+apiError.Body, "already in use")
}

const rule = "--------------------"

// deployKeyFailure formats a failed push for the build's stdout,
// including GitHub's response when there was one.
func deployKeyFailure(err error) string {
	response := err.Error()
	var apiError *github.APIError
	if errors.As(err, &apiError) {
		response = fmt.Sprintf("%d\n%s", apiError.StatusCode, apiError.Body)
	}
	var text strings.Builder
	text.WriteString("failed\n")
	text.WriteString(rule + "\n")
	text.WriteString("Failed to push deploy key\n")
	text.WriteString("RESPONSE:\n\n")
	text.WriteString(strings.TrimRight(response, "\n") + "\n")
	text.WriteString(rule + "\n")
	return text.String()
}
