// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for records at rest.
//
// JSON is the format of external interfaces: queue payloads, the
// GitHub API, and CLI output. CBOR is the format of the entity store,
// where Build and Builder records are rewritten on every output flush
// and a compact binary encoding keeps the write amplification down.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same record always produces identical bytes. Types without cbor
// struct tags are encoded through their json tags, which is how the
// schema package's records are stored without a second set of tags.
//
//	data, err := codec.Marshal(build)
//	err = codec.Unmarshal(data, &build)
package codec
