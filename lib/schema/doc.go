// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the records that flow through the build
// pipeline.
//
// [Instruction] is the job payload carried from stage to stage through
// the durable queues. It is serialized as JSON and versioned with
// [InstructionVersion]. Each stage declares the fields it needs with
// [Require] on entry.
//
// [Build] is the persisted record of one execution attempt and
// [Builder] is the template it was created from. Build output is
// append-only and status transitions are checked by
// [Build.SetStatus]: succeeded and failed are terminal.
//
// [Manifest] is the in-tree build description parsed from YAML.
//
// This package depends on no other buildwright packages.
package schema
