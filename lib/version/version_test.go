// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/blake3"
)

func TestInfo(t *testing.T) {
	defer func(commit, dirty, built string) {
		GitCommit, GitDirty, BuildTime = commit, dirty, built
	}(GitCommit, GitDirty, BuildTime)

	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-02-10T00:00:00Z"
	want := Version + " (abc1234-dirty, 2026-02-10T00:00:00Z)"
	if got := Info(); got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if !strings.HasPrefix(Full(), want+"\n  Go: ") {
		t.Errorf("Full() = %q", Full())
	}
}

func TestFileDigest(t *testing.T) {
	content := []byte("hello, buildwright")
	path := filepath.Join(t.TempDir(), "binary")
	if err := os.WriteFile(path, content, 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := FileDigest(path)
	if err != nil {
		t.Fatalf("FileDigest: %v", err)
	}
	sum := blake3.Sum256(content)
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("FileDigest = %s, want %s", got, want)
	}
}

func TestFileDigestMissing(t *testing.T) {
	if _, err := FileDigest(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestSelfDigest(t *testing.T) {
	digest, path, err := SelfDigest()
	if err != nil {
		t.Fatalf("SelfDigest: %v", err)
	}
	if len(digest) != 64 {
		t.Errorf("digest %q is not 32 hex-encoded bytes", digest)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("path %q is not absolute", path)
	}
}
