// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the scaffolding shared by the buildwright
// binaries: the standard logger, a TCP HTTP server with graceful
// shutdown, and the operations router that exposes Prometheus metrics
// and a health check.
//
// Binaries compose these in their own main() function. The package
// provides building blocks, not a runtime.
package service
