// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sshkey

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Agent loads private keys into an SSH agent.
type Agent interface {
	Add(privateKey, comment string) error
}

// ErrNoAgent is returned when SSH_AUTH_SOCK is not set.
var ErrNoAgent = errors.New("SSH_AUTH_SOCK is not set")

// SocketAgent talks to the agent listening on a unix socket.
type SocketAgent struct {
	// Socket is the agent socket path. Empty means $SSH_AUTH_SOCK at
	// the time of the call.
	Socket string

	// Lifetime, when non-zero, asks the agent to drop the key after
	// this long.
	Lifetime time.Duration
}

// Add parses privateKey (any format ssh.ParseRawPrivateKey accepts)
// and adds it to the agent.
func (a SocketAgent) Add(privateKey, comment string) error {
	socket := a.Socket
	if socket == "" {
		socket = os.Getenv("SSH_AUTH_SOCK")
	}
	if socket == "" {
		return ErrNoAgent
	}

	key, err := ssh.ParseRawPrivateKey([]byte(privateKey))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	connection, err := net.Dial("unix", socket)
	if err != nil {
		return fmt.Errorf("connecting to SSH agent: %w", err)
	}
	defer connection.Close()

	added := agent.AddedKey{
		PrivateKey:   key,
		Comment:      comment,
		LifetimeSecs: uint32(a.Lifetime / time.Second),
	}
	if err := agent.NewClient(connection).Add(added); err != nil {
		return fmt.Errorf("adding key to SSH agent: %w", err)
	}
	return nil
}
