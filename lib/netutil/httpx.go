// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O utilities.
//
// ReadResponse bounds response body reads at MaxResponseSize to prevent
// unbounded memory allocation from a misbehaving server. It is for
// JSON API responses (GitHub REST), not for streaming responses such as
// Docker pull progress or container logs, which are read incrementally.
package netutil

import "io"

// MaxResponseSize is the bound on JSON API response body reads: 16 MB.
// GitHub responses the build worker reads (deploy keys, hooks, commit
// statuses) are a few kilobytes.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
