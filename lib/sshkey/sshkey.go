// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sshkey materializes a builder's deploy key pair on disk and
// loads the private key into the running SSH agent.
//
// The on-disk files are what git uses (through GIT_SSH_COMMAND -i).
// The agent copy serves anything the build script itself does over
// SSH. Only the file write is required for a build to proceed.
package sshkey

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Paths locates a written key pair.
type Paths struct {
	Private string
	Public  string
}

// PathsFor returns where the key pair of the builder with the given
// slug lives under root: <root>/<slug>/<slug>-id_rsa and its .pub.
func PathsFor(root, slug string) Paths {
	private := filepath.Join(root, slug, slug+"-id_rsa")
	return Paths{Private: private, Public: private + ".pub"}
}

// Write stores the key pair under root, replacing any previous files.
// The private key is written 0600 and the public key 0644, each
// newline-terminated.
func Write(root, slug, privateKey, publicKey string) (Paths, error) {
	paths := PathsFor(root, slug)
	if err := os.MkdirAll(filepath.Dir(paths.Private), 0o700); err != nil {
		return Paths{}, fmt.Errorf("creating key directory: %w", err)
	}
	if err := writeFile(paths.Private, privateKey, 0o600); err != nil {
		return Paths{}, err
	}
	if err := writeFile(paths.Public, publicKey, 0o644); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

func writeFile(path, content string, mode os.FileMode) error {
	content = strings.TrimRight(content, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("setting mode of %s: %w", path, err)
	}
	return nil
}

// Fingerprint returns the SHA256 fingerprint of an authorized_keys
// formatted public key.
func Fingerprint(publicKey string) (string, error) {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("parsing public key: %w", err)
	}
	return ssh.FingerprintSHA256(parsed), nil
}
