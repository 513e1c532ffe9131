// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// InstructionVersion is the current schema version of Instruction.
// Increment when adding fields that an older worker must not silently
// drop while forwarding an instruction to the next stage.
const InstructionVersion = 1

// Instruction is the job payload carried through the pipeline. The
// trigger fills in the job fields; each stage adds its results before
// handing the instruction to the next stage's queue.
//
// Fields tagged validate:"required" can be demanded by a stage with
// Require. Which ones a stage needs is a property of the stage, not of
// the type.
type Instruction struct {
	Version int `json:"version"`

	BuildID   string `json:"build_id" validate:"required"`
	BuilderID string `json:"builder_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Slug      string `json:"slug" validate:"required"`

	GitURI string `json:"git_uri" validate:"required"`
	Branch string `json:"branch" validate:"required"`

	// Commit, when set, is checked out after the clone.
	Commit string `json:"commit,omitempty"`

	// ShellScript is the job's script, used when the repository has
	// no manifest.
	ShellScript string `json:"shell_script,omitempty"`

	PrivateKey  string `json:"id_rsa_private,omitempty" validate:"required"`
	PublicKey   string `json:"id_rsa_public,omitempty" validate:"required"`
	AccessToken string `json:"access_token,omitempty"`

	// Timeouts in seconds. Zero selects the configured default.
	CloneTimeout int `json:"git_clone_timeout,omitempty"`
	BuildTimeout int `json:"build_timeout,omitempty"`

	// Paths derived by the stages.
	PrivateKeyPath string `json:"private_key_path,omitempty" validate:"required"`
	PublicKeyPath  string `json:"public_key_path,omitempty" validate:"required"`
	BuildDir       string `json:"build_dir,omitempty" validate:"required"`
	ScriptPath     string `json:"script_path,omitempty" validate:"required"`

	// Stage results.
	Manifest       *Manifest             `json:"manifest,omitempty" validate:"required"`
	CommitInfo     *CommitInfo           `json:"commit_info,omitempty"`
	DeployKey      json.RawMessage       `json:"deploy_key,omitempty"`
	Dependencies   []DependencyContainer `json:"dependencies,omitempty"`
	BuildContainer *DependencyContainer  `json:"build_container,omitempty"`
	ImageDigest    string                `json:"image_digest,omitempty"`
}

// Manifest is the in-repository build description. An absent Image
// selects native execution on the worker host.
type Manifest struct {
	Shell        string            `yaml:"shell" json:"shell"`
	Image        string            `yaml:"image,omitempty" json:"image,omitempty"`
	Environment  map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	Dependencies []Dependency      `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// Dependency is a sidecar service container declared by the manifest.
type Dependency struct {
	Image       string            `yaml:"image" json:"image"`
	Hostname    string            `yaml:"hostname" json:"hostname"`
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
}

// DependencyContainer is a started container owned by one build
// attempt. ContainerID is set as soon as the engine created it, so a
// container that failed to start can still be removed.
type DependencyContainer struct {
	Image       string            `json:"image"`
	Hostname    string            `json:"hostname"`
	Environment map[string]string `json:"environment,omitempty"`
	ContainerID string            `json:"container_id"`
	Name        string            `json:"name"`
}

// CommitInfo is the metadata of the checked-out HEAD commit. Any
// field may be empty when "git show" output did not match.
type CommitInfo struct {
	Hash        string `json:"hash,omitempty"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
	Message     string `json:"message,omitempty"`
}

// EncodeInstruction serializes an instruction for a queue. The version
// is stamped if unset.
func EncodeInstruction(instruction *Instruction) ([]byte, error) {
	if instruction.Version == 0 {
		instruction.Version = InstructionVersion
	}
	return json.Marshal(instruction)
}

// DecodeInstruction parses a queue payload. Payloads from a newer
// schema version are rejected rather than forwarded with fields lost.
func DecodeInstruction(data []byte) (*Instruction, error) {
	var instruction Instruction
	if err := json.Unmarshal(data, &instruction); err != nil {
		return nil, fmt.Errorf("decoding instruction: %w", err)
	}
	if instruction.Version > InstructionVersion {
		return nil, fmt.Errorf("instruction version %d is newer than supported version %d",
			instruction.Version, InstructionVersion)
	}
	return &instruction, nil
}

// MissingFieldsError lists the required instruction fields that were
// empty when a stage started.
type MissingFieldsError struct {
	Fields []string
}

func (err *MissingFieldsError) Error() string {
	return "instruction is missing required fields: " + strings.Join(err.Fields, ", ")
}

var instructionValidator = newInstructionValidator()

func newInstructionValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names so errors match queue payloads.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// Require checks that every named Go field of instruction is set.
// Returns *MissingFieldsError listing the empty ones by wire name.
func Require(instruction *Instruction, fields ...string) error {
	if instruction == nil {
		return errors.New("instruction is nil")
	}
	err := instructionValidator.StructPartial(instruction, fields...)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validating instruction: %w", err)
	}
	missing := &MissingFieldsError{}
	for _, fieldError := range validationErrors {
		missing.Fields = append(missing.Fields, fieldError.Field())
	}
	return missing
}
