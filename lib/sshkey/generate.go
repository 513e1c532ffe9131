// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Generate creates an ed25519 deploy key pair. The private key is in
// OpenSSH PEM form and the public key in authorized_keys form, the
// shapes a Builder stores.
func Generate(comment string) (privateKey, publicKey string, err error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generating ed25519 key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(private, comment)
	if err != nil {
		return "", "", fmt.Errorf("encoding private key: %w", err)
	}
	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		return "", "", fmt.Errorf("encoding public key: %w", err)
	}
	authorized := string(ssh.MarshalAuthorizedKey(sshPublic))
	if comment != "" {
		authorized = authorized[:len(authorized)-1] + " " + comment + "\n"
	}
	return string(pem.EncodeToMemory(block)), authorized, nil
}
