// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Build is the persisted record of one execution attempt of a Builder.
//
// Stdout is the operator-facing narrative of the build: every stage
// appends to it, and after a failure it must still explain what
// happened. Nothing ever rewrites earlier output.
type Build struct {
	ID        string `json:"id"`
	BuilderID string `json:"builder_id"`

	Status BuildStatus `json:"status"`

	// Stdout and Stderr accumulate text in the order it was produced.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// DockerStatus is the most recent structured status line reported
	// by the Docker engine (pull progress, build output, stop/remove
	// errors). Always valid JSON when non-empty.
	DockerStatus string `json:"docker_status,omitempty"`

	// ExitCode is the build script's exit code, or 420 when the build
	// timed out. Nil until the build execution stage finishes.
	ExitCode *int `json:"exit_code,omitempty"`

	GitURI string `json:"git_uri"`
	Branch string `json:"branch"`

	// Commit metadata extracted from "git show HEAD" after checkout.
	Commit        string `json:"commit,omitempty"`
	AuthorName    string `json:"author_name,omitempty"`
	AuthorEmail   string `json:"author_email,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`

	// GitHubStatusData caches the raw response of the last commit
	// status report.
	GitHubStatusData string `json:"github_status_data,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// AppendStdout appends text to the build's stdout.
func (b *Build) AppendStdout(text string) {
	b.Stdout += text
}

// AppendStderr appends text to the build's stderr.
func (b *Build) AppendStderr(text string) {
	b.Stderr += text
}

// SetStatus moves the build to status. Returns ErrTerminalStatus
// (wrapped) if the build already succeeded or failed.
func (b *Build) SetStatus(status BuildStatus) error {
	if err := checkTransition(b.Status, status); err != nil {
		return err
	}
	b.Status = status
	return nil
}

// SetExitCode records the build script's exit code.
func (b *Build) SetExitCode(code int) {
	b.ExitCode = &code
}

// RegisterDockerStatus records one line of Docker engine output. Valid
// JSON replaces DockerStatus; anything else is appended to stdout so
// plain-text engine output is not lost.
func (b *Build) RegisterDockerStatus(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if json.Valid([]byte(trimmed)) {
		b.DockerStatus = trimmed
		return
	}
	b.AppendStdout(line)
}

// Builder is the job template a Build is created from. The pipeline
// treats it as read-only except for Status, which mirrors the latest
// build, and ShellScript, which records the script discovered in the
// repository's manifest.
type Builder struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	GitURI string `json:"git_uri"`
	Branch string `json:"branch,omitempty"`

	ShellScript string `json:"shell_script,omitempty"`

	// PrivateKey and PublicKey are the SSH deploy key pair, in
	// OpenSSH text form.
	PrivateKey string `json:"id_rsa_private,omitempty"`
	PublicKey  string `json:"id_rsa_public,omitempty"`

	// Per-operation timeouts in seconds. Zero selects the configured
	// default.
	CloneTimeout int `json:"git_clone_timeout,omitempty"`
	BuildTimeout int `json:"build_timeout,omitempty"`

	CreatorID string `json:"creator_id,omitempty"`

	Status BuildStatus `json:"status,omitempty"`

	// HookData caches the response from the last webhook creation.
	HookData string `json:"github_hook_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Slug returns the filesystem-safe name of the builder.
func (b *Builder) Slug() string {
	return Slugify(b.Name)
}

var nonWord = regexp.MustCompile(`\W+`)

// Slugify strips every non-word character from name and lowercases it.
// "My App (v2)" becomes "myappv2".
func Slugify(name string) string {
	return strings.ToLower(nonWord.ReplaceAllString(name, ""))
}

// BuildURL returns the link to a build's detail page on the web
// front-end served at serverURL.
func BuildURL(serverURL, builderID, buildID string) string {
	return strings.TrimRight(serverURL, "/") + "/#/builder/" + builderID + "/build/" + buildID
}
