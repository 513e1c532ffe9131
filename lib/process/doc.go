// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the buildwright
// binaries. Fatal is the one place a binary writes raw text to stderr:
// errors from run() can happen before the structured logger exists.
package process
