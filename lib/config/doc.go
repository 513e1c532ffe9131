// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the build
// worker and the operator CLI.
//
// Configuration is loaded from a single file specified by either the
// BUILDWRIGHT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter:
// tracing is off unless configured.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${BUILDWRIGHT_ROOT}, and ${VAR:-default} patterns are
// expanded. Durations are written as Go duration strings ("10m",
// "1s").
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Redis, Docker, GitHub,
//     Timeouts, Stream, Git, Manifest, Server, Telemetry
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other buildwright packages.
package config
