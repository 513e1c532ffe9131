// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// FileDigest returns the hex-encoded BLAKE3-256 digest of the file at
// path. The file is streamed, so memory use does not grow with size.
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SelfDigest returns the digest and absolute path of the running
// binary. On Linux os.Executable reads /proc/self/exe, which still
// names the original file after the binary is replaced on disk.
func SelfDigest() (digest string, binaryPath string, err error) {
	executable, err := os.Executable()
	if err != nil {
		return "", "", fmt.Errorf("resolving own executable path: %w", err)
	}
	digest, err = FileDigest(executable)
	if err != nil {
		return "", "", err
	}
	return digest, executable, nil
}
